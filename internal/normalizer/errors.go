package normalizer

import (
	"fmt"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

// RejectedError reports why a raw record was discarded.
type RejectedError struct {
	Field  string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("article rejected: %s", e.Reason)
	}
	return fmt.Sprintf("article rejected (%s): %s", e.Field, e.Reason)
}

// Unwrap lets callers match rejections with errors.Is(err, domain.ErrValidation).
func (e *RejectedError) Unwrap() error { return domain.ErrValidation }

func reject(field, reason string) error {
	return &RejectedError{Field: field, Reason: reason}
}
