// Package docsafe is the zero-knowledge document encryption and
// key-lifecycle subsystem. It derives user master keys from passwords,
// wraps per-document Data Encryption Keys under them, and manages key
// records, rotation, and escrow. The subsystem never decides whether a
// caller may read a document; it only decides whether a supplied password
// can correctly decrypt a given ciphertext.
package docsafe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ameerarsath/publicdocsafe-sub000/internal/aead"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/derivepool"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/envelope"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/escrow"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/kdf"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/keymanager"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/keystore"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/auditlog"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

var (
	ErrNotStarted = fmt.Errorf("docsafe: subsystem not started")
	ErrClosed     = fmt.Errorf("docsafe: subsystem closed")
)

// Config configures the subsystem instance. Only Paths[0] is used at the
// moment; future versions may use multiple paths for sharding.
type Config struct {
	// Paths contains data directories for the key store.
	Paths []string
	// MinimumFreeGB is a free-space threshold checked when the store opens.
	MinimumFreeGB int
	// DeriveWorkers bounds concurrent key derivations. 0 means one per CPU.
	DeriveWorkers int
	// Logger is an optional structured logger. If nil, a default logrus
	// logger is used.
	Logger *logrus.Logger
	// Audit receives one event per operation. If nil, events go to the
	// Logger as structured entries.
	Audit auditlog.Sink
}

// DocSafe is the subsystem handle. It owns the key store, the bounded
// derivation pool, and the managers built on them.
type DocSafe struct {
	log    *logrus.Logger
	config Config

	storeMu sync.RWMutex
	store   *keystore.Store

	pool      *derivepool.Pool
	audit     auditlog.Sink
	keys      *keymanager.Manager
	envelopes *envelope.Manager
	escrows   *escrow.Manager

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a handle. New does not perform I/O; call Start to open the
// key store.
func New(conf Config) (*DocSafe, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	return &DocSafe{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the key store and wires the managers. Start is safe to call
// multiple times; only the first call has effect.
func (ds *DocSafe) Start(ctx context.Context) error {
	var startErr error
	ds.startOnce.Do(func() {
		dataRoot := ds.config.Paths[0]
		if err := os.MkdirAll(dataRoot, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", dataRoot, err)
			return
		}

		store, err := keystore.NewStore(keystore.StoreConfig{
			Paths:            ds.config.Paths,
			MinimumFreeSpace: ds.config.MinimumFreeGB,
			Logger:           ds.log,
		})
		if err != nil {
			startErr = fmt.Errorf("init key store: %w", err)
			return
		}

		ds.audit = ds.config.Audit
		if ds.audit == nil {
			ds.audit = auditlog.NewLogrusSink(ds.log)
		}

		ds.pool = derivepool.New(ds.config.DeriveWorkers)

		ds.storeMu.Lock()
		ds.store = store
		ds.storeMu.Unlock()

		ds.keys = keymanager.New(store, ds.pool, ds.audit, ds.log)
		ds.envelopes = envelope.New(store, ds.pool, ds.audit, ds.log)
		ds.escrows = escrow.New(store, ds.audit, ds.log)

		ds.started.Store(true)
		ds.log.WithFields(logrus.Fields{"path": dataRoot}).Info("docsafe started")
	})
	return startErr
}

// Close releases the key store. Close is idempotent.
func (ds *DocSafe) Close(ctx context.Context) error {
	var closeErr error
	ds.closeOnce.Do(func() {
		ds.storeMu.Lock()
		store := ds.store
		ds.store = nil
		ds.storeMu.Unlock()

		if store != nil {
			if err := store.Close(); err != nil {
				closeErr = fmt.Errorf("close key store: %w", err)
			}
		}
		ds.log.Info("docsafe closed")
	})
	return closeErr
}

func (ds *DocSafe) ready() error {
	if !ds.started.Load() {
		return ErrNotStarted
	}
	ds.storeMu.RLock()
	store := ds.store
	ds.storeMu.RUnlock()
	if store == nil {
		return ErrClosed
	}
	return nil
}

// CreateKeyParams are the caller-facing inputs for CreateKey.
type CreateKeyParams struct {
	UserID   string
	Username string

	Password   string
	Iterations int
	Salt       []byte

	// ValidationPayload is the iv||ciphertext||tag frame of
	// "validation:<username>" sealed under the caller's own derivation of
	// the key, proving caller and server agree on password and parameters.
	ValidationPayload []byte

	Hint            string
	ExpiresAt       *time.Time
	ReplaceExisting bool
}

// CreateKey validates parameters and the validation ciphertext, then
// persists a new active key record for the user.
func (ds *DocSafe) CreateKey(ctx context.Context, p CreateKeyParams) (*types.UserKeyRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ds.keys.Create(ctx, keymanager.CreateParams{
		UserID:            p.UserID,
		Username:          p.Username,
		Password:          p.Password,
		Iterations:        p.Iterations,
		Salt:              p.Salt,
		ValidationPayload: p.ValidationPayload,
		Hint:              p.Hint,
		ExpiresAt:         p.ExpiresAt,
		ReplaceExisting:   p.ReplaceExisting,
	})
}

// ListKeys returns the user's key records, newest first.
func (ds *DocSafe) ListKeys(ctx context.Context, userID string, includeInactive bool) ([]types.UserKeyRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	return ds.keys.List(ctx, userID, includeInactive)
}

// GetKey returns one key record.
func (ds *DocSafe) GetKey(ctx context.Context, userID, keyID string) (*types.UserKeyRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	return ds.keys.Get(ctx, userID, keyID)
}

// DeactivateKey marks a key record inactive. Deactivating an inactive key
// is an error.
func (ds *DocSafe) DeactivateKey(ctx context.Context, userID, keyID, reason string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	return ds.keys.Deactivate(ctx, userID, keyID, reason)
}

// RotateKey replaces the user's active key with a freshly salted one and
// records a migration-progress entry. Documents are not re-encrypted here.
func (ds *DocSafe) RotateKey(ctx context.Context, userID, keyID, password string, force bool) (*types.UserKeyRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	return ds.keys.Rotate(ctx, userID, keyID, password, force)
}

// Migration returns the migration-progress record created by RotateKey.
func (ds *DocSafe) Migration(ctx context.Context, id string) (*types.MigrationProgress, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	return ds.keys.Migration(ctx, id)
}

// DeriveKey is a diagnostic that derives a key on the bounded pool. The
// caller owns the returned bytes and should zero them when done.
func (ds *DocSafe) DeriveKey(ctx context.Context, userID, password string, salt []byte, iterations int) ([]byte, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	key, err := ds.pool.Derive(ctx, password, salt, iterations)

	ds.audit.Emit(auditlog.Event{
		UserID:    userID,
		Action:    auditlog.ActionDeriveKey,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	})
	return key, err
}

// ValidateEncryption is a diagnostic round trip: it derives a key, seals a
// probe under it, and opens the result. It confirms that derivation and the
// AEAD codec agree end to end without touching any stored document.
func (ds *DocSafe) ValidateEncryption(ctx context.Context, userID, password string, salt []byte, iterations int) error {
	if err := ds.ready(); err != nil {
		return err
	}

	start := time.Now()
	err := ds.validateEncryption(ctx, password, salt, iterations)

	ds.audit.Emit(auditlog.Event{
		UserID:    userID,
		Action:    auditlog.ActionValidateEncryption,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	})
	return err
}

func (ds *DocSafe) validateEncryption(ctx context.Context, password string, salt []byte, iterations int) error {
	key, err := ds.pool.Derive(ctx, password, salt, iterations)
	if err != nil {
		return err
	}
	defer kdf.Zero(key)

	probe := []byte("docsafe encryption self-check")
	payload, err := aead.SealPayload(key, probe, nil)
	if err != nil {
		return err
	}
	got, err := aead.OpenPayload(key, payload, nil)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, probe) {
		return fmt.Errorf("round trip produced different plaintext")
	}
	return nil
}

// EncryptDocument seals a document in zero-knowledge mode and returns the
// envelope fields the Document Store persists.
func (ds *DocSafe) EncryptDocument(ctx context.Context, userID, password string, plaintext []byte) (types.DocumentMeta, error) {
	if err := ds.ready(); err != nil {
		return types.DocumentMeta{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.DocumentMeta{}, err
	}
	return ds.envelopes.Encrypt(ctx, userID, password, plaintext)
}

// DecryptDocument recovers a document's plaintext. The password comes from
// the caller or, for anonymous share recipients, from the share's
// decryption context.
func (ds *DocSafe) DecryptDocument(ctx context.Context, userID, password string, meta types.DocumentMeta, raw []byte, share *types.ShareDecryptionContext) ([]byte, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if password == "" && share != nil {
		password = share.Password
	}
	return ds.envelopes.Decrypt(ctx, userID, password, meta, raw)
}

// ResolveEnvelope classifies document metadata into exactly one envelope
// mode without decrypting anything.
func (ds *DocSafe) ResolveEnvelope(meta types.DocumentMeta) (types.Envelope, error) {
	return envelope.Resolve(meta)
}

// CreateEscrow stores opaque encrypted key material for admin-mediated
// recovery.
func (ds *DocSafe) CreateEscrow(ctx context.Context, keyID, userID string, material []byte, method, hint string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	return ds.escrows.Create(ctx, keyID, userID, material, method, hint)
}

// RecoverKey returns the escrow payload for a key and stamps recovery
// metadata. Authorizing the recovery is the caller's concern.
func (ds *DocSafe) RecoverKey(ctx context.Context, keyID, reason, actor string) ([]byte, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	return ds.escrows.Recover(ctx, keyID, reason, actor)
}
