// Package envelope implements per-document envelope encryption. In
// zero-knowledge mode every document gets its own Data Encryption Key (DEK),
// sealed under a master key derived from the owner's password; compromising
// one DEK never exposes other documents, and a password change only requires
// re-wrapping DEKs. Legacy mode decrypts documents directly under a key
// derived from a registry key's salt.
package envelope

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ameerarsath/publicdocsafe-sub000/internal/aead"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/classifier"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/derivepool"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/kdf"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/keystore"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/auditlog"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

// wrapIterations is the fixed iteration count for master-key derivation in
// both document modes.
const wrapIterations = kdf.DefaultIterations

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

// Resolve classifies document metadata into exactly one envelope mode. A
// document flagged encrypted that carries neither the zero-knowledge fields
// nor the legacy triple is inconsistent and must be surfaced for operator
// attention, never treated as one mode or the other.
func Resolve(meta types.DocumentMeta) (types.Envelope, error) {
	if !meta.IsEncrypted {
		return types.Envelope{Mode: types.EnvelopePlain}, nil
	}

	hasZK := meta.Salt != "" && meta.EncryptedDEK != "" && meta.Ciphertext != ""
	hasLegacy := meta.EncryptionKeyID != "" && meta.EncryptionIV != "" && meta.EncryptionAuthTag != ""

	switch {
	case hasZK && !hasLegacy:
		salt, err := aead.DecodePayload(meta.Salt)
		if err != nil {
			return types.Envelope{}, fmt.Errorf("salt: %w", err)
		}
		encryptedDEK, err := aead.DecodePayload(meta.EncryptedDEK)
		if err != nil {
			return types.Envelope{}, fmt.Errorf("encrypted_dek: %w", err)
		}
		ciphertext, err := aead.DecodePayload(meta.Ciphertext)
		if err != nil {
			return types.Envelope{}, fmt.Errorf("ciphertext: %w", err)
		}
		return types.Envelope{
			Mode:         types.EnvelopeZeroKnowledge,
			Salt:         salt,
			EncryptedDEK: encryptedDEK,
			Ciphertext:   ciphertext,
		}, nil

	case hasLegacy && !hasZK:
		iv, err := aead.DecodePayload(meta.EncryptionIV)
		if err != nil {
			return types.Envelope{}, fmt.Errorf("encryption_iv: %w", err)
		}
		tag, err := aead.DecodePayload(meta.EncryptionAuthTag)
		if err != nil {
			return types.Envelope{}, fmt.Errorf("encryption_auth_tag: %w", err)
		}
		return types.Envelope{
			Mode:    types.EnvelopeLegacy,
			KeyID:   meta.EncryptionKeyID,
			IV:      iv,
			AuthTag: tag,
		}, nil
	}

	return types.Envelope{}, types.ErrEncryptionMetadataInconsistent
}

// Encrypt seals a document in zero-knowledge mode: a fresh DEK seals the
// payload and a master key derived from the owner's password seals the DEK.
func (m *Manager) Encrypt(ctx context.Context, userID, password string, plaintext []byte) (types.DocumentMeta, error) {
	start := time.Now()
	meta, err := m.encrypt(ctx, password, plaintext)

	m.audit.Emit(auditlog.Event{
		UserID:    userID,
		Action:    auditlog.ActionEncryptDocument,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	})
	return meta, err
}

func (m *Manager) encrypt(ctx context.Context, password string, plaintext []byte) (types.DocumentMeta, error) {
	dek := make([]byte, aead.KeyLen)
	if _, err := rand.Read(dek); err != nil {
		return types.DocumentMeta{}, fmt.Errorf("generate dek: %w", err)
	}
	defer kdf.Zero(dek)

	ciphertext, err := aead.SealPayload(dek, plaintext, nil)
	if err != nil {
		return types.DocumentMeta{}, err
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return types.DocumentMeta{}, err
	}

	masterKey, err := m.pool.Derive(ctx, password, salt, wrapIterations)
	if err != nil {
		return types.DocumentMeta{}, err
	}
	defer kdf.Zero(masterKey)

	encryptedDEK, err := aead.SealPayload(masterKey, dek, nil)
	if err != nil {
		return types.DocumentMeta{}, err
	}

	return types.DocumentMeta{
		IsEncrypted:         true,
		EncryptionAlgorithm: types.AlgorithmAESGCM,
		Salt:                aead.EncodePayload(salt),
		EncryptedDEK:        aead.EncodePayload(encryptedDEK),
		Ciphertext:          aead.EncodePayload(ciphertext),
	}, nil
}

// Decrypt recovers a document's plaintext. raw carries the on-disk content
// bytes for plain and legacy documents; zero-knowledge documents carry their
// ciphertext in the metadata.
func (m *Manager) Decrypt(ctx context.Context, userID, password string, meta types.DocumentMeta, raw []byte) ([]byte, error) {
	start := time.Now()
	plaintext, err := m.decrypt(ctx, password, meta, raw)

	m.audit.Emit(auditlog.Event{
		UserID:    userID,
		KeyID:     meta.EncryptionKeyID,
		Action:    auditlog.ActionDecryptDocument,
		Success:   err == nil,
		ErrorKind: auditlog.Kind(err),
		Duration:  time.Since(start),
	})
	return plaintext, err
}

func (m *Manager) decrypt(ctx context.Context, password string, meta types.DocumentMeta, raw []byte) ([]byte, error) {
	env, err := Resolve(meta)
	if err != nil {
		if err == types.ErrEncryptionMetadataInconsistent {
			// Advisory only: the classifier helps the operator decide
			// whether the stored bytes are ciphertext, but the bytes are
			// never handed back as plaintext on this path.
			m.log.WithFields(logrus.Fields{
				"looks_encrypted": classifier.LooksEncrypted(raw, true),
				"content_bytes":   len(raw),
			}).Error("document flagged encrypted but carries no usable encryption metadata")
		}
		return nil, err
	}

	switch env.Mode {
	case types.EnvelopePlain:
		return raw, nil

	case types.EnvelopeZeroKnowledge:
		return m.decryptZeroKnowledge(ctx, password, env)

	case types.EnvelopeLegacy:
		return m.decryptLegacy(ctx, password, env, raw)
	}

	return nil, types.ErrEncryptionMetadataInconsistent
}

func (m *Manager) decryptZeroKnowledge(ctx context.Context, password string, env types.Envelope) ([]byte, error) {
	masterKey, err := m.pool.Derive(ctx, password, env.Salt, wrapIterations)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(masterKey)

	// A failure unwrapping the DEK means the wrong password, distinct from
	// a corrupted document body.
	dek, err := aead.OpenPayload(masterKey, env.EncryptedDEK, nil)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(dek)

	return aead.OpenPayload(dek, env.Ciphertext, nil)
}

func (m *Manager) decryptLegacy(ctx context.Context, password string, env types.Envelope, raw []byte) ([]byte, error) {
	registryKey, err := m.store.GetRegistryKey(env.KeyID)
	if err != nil {
		if err == types.ErrKeyNotFound {
			m.log.WithFields(logrus.Fields{
				"key_id": env.KeyID,
			}).Error("legacy document references missing registry key")
			return nil, types.ErrMissingEncryptionMaterial
		}
		return nil, err
	}
	if len(registryKey.Salt) == 0 {
		m.log.WithFields(logrus.Fields{
			"key_id": env.KeyID,
		}).Error("legacy registry key has no salt")
		return nil, types.ErrMissingEncryptionMaterial
	}

	iterations := registryKey.Iterations
	if iterations == 0 {
		iterations = wrapIterations
	}

	key, err := m.pool.Derive(ctx, password, registryKey.Salt, iterations)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(key)

	return aead.Open(key, env.IV, raw, env.AuthTag, nil)
}
