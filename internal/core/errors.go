package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidPeriod      = errors.New("invalid period")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEndBeforeStart     = errors.New("end date must not be before start date")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidDueDay      = errors.New("due day must be between 1 and 31")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("username already taken")
	ErrNoActiveUser       = errors.New("no active user")
	ErrEMIClosed          = errors.New("emi already closed")
)

// ValidationError reports user input that is missing, zero or malformed.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err for the named field.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NotFoundError is returned for unknown records. Login failures use it with a
// generic message so a missing user is indistinguishable from a bad password.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.What == "credentials" {
		return ErrInvalidCredentials.Error()
	}
	return fmt.Sprintf("%s %q not found", e.What, e.ID)
}

// ImportFormatError reports a CSV upload that yields nothing to import.
type ImportFormatError struct {
	Reason  string
	Missing []string
}

func (e *ImportFormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("import: %s: %v", e.Reason, e.Missing)
	}
	return "import: " + e.Reason
}

// StorageError wraps a persistence failure. It is non-fatal: the in-memory
// state that triggered the save remains authoritative.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

// IsImportFormat reports whether err is (or wraps) an ImportFormatError.
func IsImportFormat(err error) bool {
	var v *ImportFormatError
	return errors.As(err, &v)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var v *StorageError
	return errors.As(err, &v)
}
