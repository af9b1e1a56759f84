package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) check(field, value string) {
	switch {
	case value == "":
		e.Errors = append(e.Errors, FieldError{Field: field, Message: "is required"})
	case len(value) > MaxIdentifierLength:
		e.Errors = append(e.Errors, FieldError{
			Field:   field,
			Message: fmt.Sprintf("must be %d bytes or fewer, got %d", MaxIdentifierLength, len(value)),
		})
	case !utf8.ValidString(value):
		e.Errors = append(e.Errors, FieldError{Field: field, Message: "must be valid UTF-8"})
	case strings.IndexByte(value, 0) >= 0:
		e.Errors = append(e.Errors, FieldError{Field: field, Message: "must not contain NUL bytes"})
	}
}

func (e *ValidationError) orNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateNamespace checks a namespace identifier.
func ValidateNamespace(ns string) error {
	var ve ValidationError
	ve.check("namespace", ns)
	return ve.orNil()
}

// ValidatePartition checks a (namespace, type) pair.
func ValidatePartition(ns, typ string) error {
	var ve ValidationError
	ve.check("namespace", ns)
	ve.check("type", typ)
	return ve.orNil()
}

// Validate checks every component of the composite key. It returns a
// *ValidationError listing all failures, or nil.
func (r Ref) Validate() error {
	var ve ValidationError
	ve.check("namespace", r.Namespace)
	ve.check("type", r.Type)
	ve.check("key", r.Key)
	return ve.orNil()
}

// Validate checks the window bounds.
func (o ListOptions) Validate() error {
	var ve ValidationError
	if o.Offset < 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "offset", Message: fmt.Sprintf("must be non-negative, got %d", o.Offset)})
	}
	if o.Limit < 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "limit", Message: fmt.Sprintf("must be non-negative, got %d", o.Limit)})
	}
	return ve.orNil()
}
