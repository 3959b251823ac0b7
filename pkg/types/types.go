// Package types holds the shared record types and sentinel errors of the
// document encryption subsystem.
package types

import "time"

// Algorithm and KDF identifiers stored on records.
const (
	AlgorithmAESGCM = "AES-256-GCM"
	KDFPBKDF2SHA256 = "PBKDF2-SHA256"
)

// Escrow methods.
const (
	EscrowMethodAdmin    = "admin_escrow"
	EscrowMethodSplitKey = "split_key"
	EscrowMethodHSM      = "hsm"
)

// Migration statuses.
const (
	MigrationPending    = "pending"
	MigrationInProgress = "in_progress"
	MigrationCompleted  = "completed"
	MigrationFailed     = "failed"
)

// UserKeyRecord is a user's password-derived encryption key registration.
// The key itself is never stored; the record carries the derivation
// parameters and a SHA-256 hash of the derived key for validation.
type UserKeyRecord struct {
	KeyID  string `json:"key_id"`
	UserID string `json:"user_id"`

	Algorithm  string `json:"algorithm"`
	KDFMethod  string `json:"kdf_method"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`

	// ValidationHash is the SHA-256 of the derived key. It lets the server
	// check a supplied password without holding the key.
	ValidationHash []byte `json:"validation_hash"`

	Hint string `json:"hint,omitempty"`

	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty"`
	DeactivatedReason string     `json:"deactivated_reason,omitempty"`
}

// EscrowRecord holds opaque, pre-encrypted key material deposited for
// recovery. The subsystem never decrypts EscrowData.
type EscrowRecord struct {
	KeyID        string `json:"key_id"`
	UserID       string `json:"user_id"`
	EscrowData   []byte `json:"escrow_data"`
	EscrowMethod string `json:"escrow_method"`
	RecoveryHint string `json:"recovery_hint,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	RecoveredAt    *time.Time `json:"recovered_at,omitempty"`
	RecoveredBy    string     `json:"recovered_by,omitempty"`
	RecoveryReason string     `json:"recovery_reason,omitempty"`
}

// RegistryKey is a server-side key registration used by legacy documents:
// the document key is derived from the registry key's salt rather than
// wrapped per document.
type RegistryKey struct {
	KeyID      string    `json:"key_id"`
	Salt       []byte    `json:"salt"`
	Algorithm  string    `json:"algorithm"`
	Iterations int       `json:"iterations"`
	CreatedAt  time.Time `json:"created_at"`
}

// MigrationProgress tracks re-encryption of a user's documents from an old
// key to its rotation successor.
type MigrationProgress struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	OldKeyID string `json:"old_key_id"`
	NewKeyID string `json:"new_key_id"`

	Status            string `json:"status"`
	TotalDocuments    int    `json:"total_documents"`
	MigratedDocuments int    `json:"migrated_documents"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// DocumentMeta is the encryption-relevant slice of a stored document's
// metadata. Binary fields are base64-encoded for storage alongside the rest
// of the document record.
//
// A zero-knowledge document carries Salt, EncryptedDEK, and Ciphertext. A
// legacy document carries EncryptionKeyID, EncryptionIV, and
// EncryptionAuthTag, with the ciphertext living in the document body.
type DocumentMeta struct {
	IsEncrypted         bool   `json:"is_encrypted"`
	EncryptionAlgorithm string `json:"encryption_algorithm,omitempty"`

	Salt         string `json:"salt,omitempty"`
	EncryptedDEK string `json:"encrypted_dek,omitempty"`
	Ciphertext   string `json:"ciphertext,omitempty"`

	EncryptionKeyID   string `json:"encryption_key_id,omitempty"`
	EncryptionIV      string `json:"encryption_iv,omitempty"`
	EncryptionAuthTag string `json:"encryption_auth_tag,omitempty"`
}

// EnvelopeMode says how a document's content is protected.
type EnvelopeMode int

const (
	// EnvelopePlain is an unencrypted document.
	EnvelopePlain EnvelopeMode = iota
	// EnvelopeZeroKnowledge is a document sealed under its own DEK, with
	// the DEK wrapped by a password-derived master key.
	EnvelopeZeroKnowledge
	// EnvelopeLegacy is a document sealed directly under a key derived
	// from a registry key's salt.
	EnvelopeLegacy
)

// Envelope is the resolved, decoded form of DocumentMeta. Exactly the
// fields of the resolved mode are populated.
type Envelope struct {
	Mode EnvelopeMode

	// Zero-knowledge fields.
	Salt         []byte
	EncryptedDEK []byte
	Ciphertext   []byte

	// Legacy fields.
	KeyID   string
	IV      []byte
	AuthTag []byte
}

// ShareDecryptionContext carries the decryption password embedded in a
// share grant, letting a recipient without their own key open a shared
// document. It is input-only and never persisted by this subsystem.
type ShareDecryptionContext struct {
	Password string
}
