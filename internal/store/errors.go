package store

import (
	"errors"
	"fmt"

	"mission-control/board/internal/table"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrValidation         = errors.New("validation failed")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

// translate maps table-level outcomes onto the store taxonomy. Anything the
// table layer does not classify is an I/O failure.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, table.ErrItemNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, table.ErrConditionFailed):
		return fmt.Errorf("%s: %w", what, ErrDuplicateKey)
	case errors.Is(err, table.ErrInvalidItem), errors.Is(err, table.ErrUnknownIndex):
		return fmt.Errorf("%s: %w: %w", what, ErrValidation, err)
	default:
		return fmt.Errorf("%s: %w: %w", what, ErrBackendUnavailable, err)
	}
}

// Validation builds an ErrValidation with a caller-facing message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
