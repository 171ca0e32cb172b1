package domain

import (
	"errors"
	"strings"
)

var (
	ErrConnectivity     = errors.New("cannot reach database")
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")

	ErrIntegrityViolation = errors.New("integrity violation")
	ErrEncryption         = errors.New("encryption failure")

	// ErrNotFoundOrForbidden deliberately does not distinguish a missing
	// record from one owned by someone else.
	ErrNotFoundOrForbidden = errors.New("Record not found or access denied")

	ErrNotFound        = errors.New("not found")
	ErrInvalidTable    = errors.New("invalid logical table name")
	ErrInvalidOrdering = errors.New("invalid ordering field")
)

// ErrSchemaViolation carries the individual findings of a failed schema
// check, one human-readable string per violated constraint.
type ErrSchemaViolation struct {
	Errors []string
}

func (e *ErrSchemaViolation) Error() string {
	if len(e.Errors) == 0 {
		return "schema violation"
	}
	return "schema violation: " + strings.Join(e.Errors, "; ")
}

// KindOf maps an error to its stable taxonomy name, "internal" for anything
// outside the taxonomy. CLI output and logs use these instead of raw
// messages.
func KindOf(err error) string {
	var sv *ErrSchemaViolation
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.As(err, &sv):
		return "schema_violation"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTable), errors.Is(err, ErrInvalidOrdering):
		return "validation"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity_violation"
	case errors.Is(err, ErrNotFoundOrForbidden):
		return "not_found_or_forbidden"
	case errors.Is(err, ErrEncryption):
		return "encryption"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
