package escrow

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameerarsath/publicdocsafe-sub000/internal/keystore"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/auditlog"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

func setupTestManager(t *testing.T) (*Manager, *auditlog.RecordingSink) {
	t.Helper()
	testDir, err := os.MkdirTemp("", "docsafe_escrow_test_*")
	if err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(testDir); err != nil {
			t.Errorf("Failed to cleanup test directory: %v", err)
		}
	})

	store, err := keystore.NewStore(keystore.StoreConfig{Paths: []string{testDir}})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	sink := &auditlog.RecordingSink{}
	return New(store, sink, nil), sink
}

func TestCreateAndRecover(t *testing.T) {
	m, sink := setupTestManager(t)
	ctx := context.Background()

	material := []byte("wrapped key material, opaque to this subsystem")
	require.NoError(t, m.Create(ctx, "key-1", "alice", material, types.EscrowMethodAdmin, "ask the admin"))

	data, err := m.Recover(ctx, "key-1", "user lost password", "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, material, data)

	// The record survives recovery with stamped metadata.
	rec, err := m.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.NotNil(t, rec.RecoveredAt)
	assert.Equal(t, "admin@example.com", rec.RecoveredBy)
	assert.Equal(t, "user lost password", rec.RecoveryReason)

	// Audit: create + recover, both successful, recovery attributed to the
	// key owner.
	require.Len(t, sink.Events, 2)
	assert.Equal(t, auditlog.ActionCreateEscrow, sink.Events[0].Action)
	assert.Equal(t, auditlog.ActionRecoverKey, sink.Events[1].Action)
	assert.Equal(t, "alice", sink.Events[1].UserID)
}

func TestCreate_Duplicate(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "key-1", "alice", []byte("x"), types.EscrowMethodAdmin, ""))

	err := m.Create(ctx, "key-1", "alice", []byte("y"), types.EscrowMethodAdmin, "")
	assert.ErrorIs(t, err, types.ErrEscrowConflict)
}

func TestCreate_ParameterValidation(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	err := m.Create(ctx, "", "alice", []byte("x"), types.EscrowMethodAdmin, "")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	err = m.Create(ctx, "key-1", "alice", nil, types.EscrowMethodAdmin, "")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	err = m.Create(ctx, "key-1", "alice", []byte("x"), "carrier-pigeon", "")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestRecover_RequiresReasonAndActor(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "key-1", "alice", []byte("x"), types.EscrowMethodSplitKey, ""))

	_, err := m.Recover(ctx, "key-1", "", "admin")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = m.Recover(ctx, "key-1", "reason", "")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestRecover_NotFound(t *testing.T) {
	m, _ := setupTestManager(t)

	_, err := m.Recover(context.Background(), "ghost-key", "reason", "admin")
	assert.ErrorIs(t, err, types.ErrEscrowNotFound)
}
