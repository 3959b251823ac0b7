// Package keymanager implements the user key lifecycle: creation with
// validation-ciphertext cross-checking, rotation, deactivation, and listing.
// It owns the "at most one active key per user" invariant together with the
// keystore's transactional primitives.
package keymanager

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ameerarsath/publicdocsafe-sub000/internal/aead"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/derivepool"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/kdf"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/keystore"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/auditlog"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

// validationPrefix is the fixed known-plaintext template the caller seals
// under its own derivation of the key. See CreateParams.ValidationPayload.
const validationPrefix = "validation:"

type Manager struct {
	store *keystore.Store
	pool  *derivepool.Pool
	audit auditlog.Sink
	log   *logrus.Logger
}

func New(store *keystore.Store, pool *derivepool.Pool, audit auditlog.Sink, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if audit == nil {
		audit = auditlog.NopSink{}
	}
	return &Manager{store: store, pool: pool, audit: audit, log: logger}
}

// CreateParams are the inputs for key creation.
type CreateParams struct {
	UserID   string
	Username string // used in the validation template; falls back to UserID

	Password   string
	Iterations int
	Salt       []byte

	// ValidationPayload is an iv||ciphertext||tag frame produced by the
	// caller sealing "validation:<username>" under its own derivation of
	// the key. If the server-side derivation cannot open it, caller and
	// server disagree on the password or KDF parameters and nothing is
	// persisted.
	ValidationPayload []byte

	Hint            string
	ExpiresAt       *time.Time
	ReplaceExisting bool
}

// Create validates parameters, cross-checks the validation ciphertext, and
// persists the new active key record.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*types.UserKeyRecord, error) {
	start := time.Now()
	rec, err := m.create(ctx, p)

	ev := auditlog.Event{
		UserID:    p.UserID,
		Action:    auditlog.ActionCreateKey,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	}
	if rec != nil {
		ev.KeyID = rec.KeyID
	}
	m.audit.Emit(ev)

	return rec, err
}

func (m *Manager) create(ctx context.Context, p CreateParams) (*types.UserKeyRecord, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("missing user id: %w", types.ErrInvalidParameter)
	}
	if p.Iterations < kdf.MinIterations {
		return nil, fmt.Errorf("iteration count %d is below minimum %d: %w",
			p.Iterations, kdf.MinIterations, types.ErrInvalidParameter)
	}

	key, err := m.pool.Derive(ctx, p.Password, p.Salt, p.Iterations)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(key)

	name := p.Username
	if name == "" {
		name = p.UserID
	}
	plaintext, err := aead.OpenPayload(key, p.ValidationPayload, nil)
	if err != nil || !bytes.Equal(plaintext, []byte(validationPrefix+name)) {
		return nil, types.ErrKeyValidationMismatch
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := &types.UserKeyRecord{
		KeyID:          uuid.NewString(),
		UserID:         p.UserID,
		Algorithm:      types.AlgorithmAESGCM,
		KDFMethod:      types.KDFPBKDF2SHA256,
		Iterations:     p.Iterations,
		Salt:           p.Salt,
		ValidationHash: kdf.ValidationHash(key),
		Hint:           p.Hint,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
		ExpiresAt:      p.ExpiresAt,
	}

	if err := m.store.CreateUserKey(rec, p.ReplaceExisting, "replaced by new key"); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"user_id": p.UserID,
		"key_id":  rec.KeyID,
	}).Info("encryption key created")

	return rec, nil
}

// Rotate generates a fresh salt and key id for the user and deactivates the
// old record in the same transaction. Documents are not re-encrypted;
// Rotate records a migration-progress entry for the separate migration
// process instead. Unless force is set, the supplied password must match the
// old record's validation hash.
func (m *Manager) Rotate(ctx context.Context, userID, keyID, password string, force bool) (*types.UserKeyRecord, error) {
	start := time.Now()
	rec, err := m.rotate(ctx, userID, keyID, password, force)

	ev := auditlog.Event{
		UserID:    userID,
		KeyID:     keyID,
		Action:    auditlog.ActionRotateKey,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	}
	m.audit.Emit(ev)

	return rec, err
}

func (m *Manager) rotate(ctx context.Context, userID, keyID, password string, force bool) (*types.UserKeyRecord, error) {
	old, err := m.store.GetUserKey(userID, keyID)
	if err != nil {
		return nil, err
	}
	if !old.IsActive {
		return nil, types.ErrKeyInactive
	}

	oldKey, err := m.pool.Derive(ctx, password, old.Salt, old.Iterations)
	if err != nil {
		return nil, err
	}
	oldKeyMatches := bytes.Equal(kdf.ValidationHash(oldKey), old.ValidationHash)
	kdf.Zero(oldKey)
	if !oldKeyMatches && !force {
		return nil, types.ErrKeyValidationMismatch
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return nil, err
	}

	newKey, err := m.pool.Derive(ctx, password, salt, old.Iterations)
	if err != nil {
		return nil, err
	}
	validationHash := kdf.ValidationHash(newKey)
	kdf.Zero(newKey)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &types.UserKeyRecord{
		KeyID:          uuid.NewString(),
		UserID:         userID,
		Algorithm:      types.AlgorithmAESGCM,
		KDFMethod:      types.KDFPBKDF2SHA256,
		Iterations:     old.Iterations,
		Salt:           salt,
		ValidationHash: validationHash,
		Hint:           old.Hint,
		IsActive:       true,
		CreatedAt:      now,
	}

	migration := &types.MigrationProgress{
		ID:        uuid.NewString(),
		UserID:    userID,
		OldKeyID:  keyID,
		NewKeyID:  rec.KeyID,
		Status:    types.MigrationPending,
		StartedAt: now,
	}

	if err := m.store.RotateUserKey(userID, keyID, rec, migration); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"user_id":      userID,
		"old_key_id":   keyID,
		"new_key_id":   rec.KeyID,
		"migration_id": migration.ID,
	}).Info("encryption key rotated")

	return rec, nil
}

// Deactivate marks a key record inactive. An already-inactive key is an
// error, not a no-op.
func (m *Manager) Deactivate(ctx context.Context, userID, keyID, reason string) error {
	start := time.Now()

	err := ctx.Err()
	if err == nil {
		err = m.store.DeactivateUserKey(userID, keyID, reason)
	}

	m.audit.Emit(auditlog.Event{
		UserID:    userID,
		KeyID:     keyID,
		Action:    auditlog.ActionDeactivateKey,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	})
	return err
}

// Get returns one key record.
func (m *Manager) Get(ctx context.Context, userID, keyID string) (*types.UserKeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.GetUserKey(userID, keyID)
}

// List returns the user's key records, newest first.
func (m *Manager) List(ctx context.Context, userID string, includeInactive bool) ([]types.UserKeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.ListUserKeys(userID, includeInactive)
}

// Migration returns a migration progress record created by Rotate.
func (m *Manager) Migration(ctx context.Context, id string) (*types.MigrationProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.GetMigration(id)
}

// SealValidationPayload builds the validation triple for a given password
// and parameters, sealing "validation:<name>" under the derived key. It is
// what a client would do before calling Create; servers use it in tests and
// diagnostics.
func SealValidationPayload(password string, salt []byte, iterations int, name string) ([]byte, error) {
	key, err := kdf.Derive(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(key)
	return aead.SealPayload(key, []byte(validationPrefix+name), nil)
}
