package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrDescriptionLength = errors.New("description too long (max 200 characters)")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidCategory   = errors.New("unknown category")
	ErrInvalidFundKind   = errors.New("unknown fund kind")
	ErrInvalidPeriod     = errors.New("invalid periodicity")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrUnknownUser       = errors.New("not a ledger participant")
	ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")
	ErrNoParticipantPair = errors.New("ledger needs exactly two active participants")
)

// ValidationError ties a validation failure to the input field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFound returns an ErrNotFound wrapped with the missing entity.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// WarningCode identifies a non-fatal advisory returned next to a successful write.
type WarningCode string

const (
	WarnInsufficientFunds WarningCode = "insufficient_funds"
	WarnFundNotFound      WarningCode = "fund_not_found"
)

// Warning never blocks a write; it is surfaced to the submitter.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
