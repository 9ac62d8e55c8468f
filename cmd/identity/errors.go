package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Logical field names carried by ConflictError and FieldError.
const (
	FieldEmail    = "email"
	FieldHandle   = "handle"
	FieldName     = "name"
	FieldPassword = "password"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; never secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness violation on a logical field (FieldEmail or FieldHandle).
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// FieldError is one rejected input field. Msg is user-facing.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// ValidationError collects every rejected field of one request.
type ValidationError struct {
	Op     string
	Fields []FieldError
}

func (e ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrInvalidInput, strings.Join(names, ","))
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsDuplicateEmail reports a conflict on the email field.
func IsDuplicateEmail(err error) bool { return conflictOn(err, FieldEmail) }

// IsHandleTaken reports a conflict on the handle field.
func IsHandleTaken(err error) bool { return conflictOn(err, FieldHandle) }

func conflictOn(err error, field string) bool {
	var ce ConflictError
	return errors.As(err, &ce) && ce.Field == field
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsInvalidCredentials reports whether err represents ErrInvalidCredentials.
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }

// IsInvalidToken reports whether err represents ErrInvalidToken.
func IsInvalidToken(err error) bool { return errors.Is(err, ErrInvalidToken) }

// AsValidation extracts the field list of a ValidationError.
func AsValidation(err error) (ValidationError, bool) {
	var ve ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// isDomainError separates expected outcomes from store or primitive failures.
func isDomainError(err error) bool {
	return IsInvalidInput(err) ||
		IsNotFound(err) ||
		IsConflict(err) ||
		IsInvalidCredentials(err) ||
		IsInvalidToken(err)
}
