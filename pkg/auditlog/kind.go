package auditlog

import (
	"context"
	"errors"

	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

// Kind maps an error to the short error_kind tag carried on audit events.
// Returns "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, types.ErrKeyValidationMismatch):
		return "validation_mismatch"
	case errors.Is(err, types.ErrKeyConflict):
		return "key_conflict"
	case errors.Is(err, types.ErrKeyInactive):
		return "key_inactive"
	case errors.Is(err, types.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, types.ErrEscrowConflict):
		return "escrow_conflict"
	case errors.Is(err, types.ErrEscrowNotFound):
		return "escrow_not_found"
	case errors.Is(err, types.ErrAuthentication):
		return "authentication"
	case errors.Is(err, types.ErrMalformedCiphertext):
		return "malformed_ciphertext"
	case errors.Is(err, types.ErrMissingEncryptionMaterial):
		return "missing_material"
	case errors.Is(err, types.ErrEncryptionMetadataInconsistent):
		return "metadata_inconsistent"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}
