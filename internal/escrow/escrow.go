// Package escrow persists and retrieves encrypted key material for
// admin-mediated recovery. The escrow payload stays opaque to this package:
// it is neither decrypted nor validated here, and recovery authorization is
// an RBAC concern outside this subsystem.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ameerarsath/publicdocsafe-sub000/internal/keystore"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/auditlog"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

type Manager struct {
	store *keystore.Store
	audit auditlog.Sink
	log   *logrus.Logger
}

func New(store *keystore.Store, audit auditlog.Sink, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if audit == nil {
		audit = auditlog.NopSink{}
	}
	return &Manager{store: store, audit: audit, log: logger}
}

var validMethods = map[string]bool{
	types.EscrowMethodAdmin:    true,
	types.EscrowMethodSplitKey: true,
	types.EscrowMethodHSM:      true,
}

// Create stores one escrow record for a key. Duplicate creation fails with
// ErrEscrowConflict.
func (m *Manager) Create(ctx context.Context, keyID, userID string, material []byte, method, hint string) error {
	start := time.Now()
	err := m.create(ctx, keyID, userID, material, method, hint)

	m.audit.Emit(auditlog.Event{
		UserID:    userID,
		KeyID:     keyID,
		Action:    auditlog.ActionCreateEscrow,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	})
	return err
}

func (m *Manager) create(ctx context.Context, keyID, userID string, material []byte, method, hint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if keyID == "" || len(material) == 0 {
		return fmt.Errorf("missing key id or escrow material: %w", types.ErrInvalidParameter)
	}
	if !validMethods[method] {
		return fmt.Errorf("unknown escrow method %q: %w", method, types.ErrInvalidParameter)
	}

	return m.store.CreateEscrow(&types.EscrowRecord{
		KeyID:        keyID,
		UserID:       userID,
		EscrowData:   material,
		EscrowMethod: method,
		RecoveryHint: hint,
		CreatedAt:    time.Now().UTC(),
	})
}

// Recover returns the opaque escrow payload for a key and stamps recovery
// metadata on the record. Records are logged as recovered, never consumed.
func (m *Manager) Recover(ctx context.Context, keyID, reason, actor string) ([]byte, error) {
	start := time.Now()
	data, userID, err := m.recover(ctx, keyID, reason, actor)

	m.audit.Emit(auditlog.Event{
		UserID:    userID,
		KeyID:     keyID,
		Action:    auditlog.ActionRecoverKey,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	})
	return data, err
}

func (m *Manager) recover(ctx context.Context, keyID, reason, actor string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if reason == "" || actor == "" {
		return nil, "", fmt.Errorf("recovery requires a reason and an actor: %w", types.ErrInvalidParameter)
	}

	rec, err := m.store.MarkEscrowRecovered(keyID, actor, reason)
	if err != nil {
		return nil, "", err
	}

	m.log.WithFields(logrus.Fields{
		"key_id": keyID,
		"actor":  actor,
	}).Warn("escrowed key material recovered")

	return rec.EscrowData, rec.UserID, nil
}

// Get returns the escrow record for a key without touching recovery state.
func (m *Manager) Get(ctx context.Context, keyID string) (*types.EscrowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.GetEscrow(keyID)
}
