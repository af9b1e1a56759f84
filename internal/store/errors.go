package store

import (
	"errors"
	"strings"

	"github.com/nfinity/nfindb/internal/model"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorageInit     = errors.New("storage init failed")
	ErrStorageRead     = errors.New("storage read failed")
	ErrStorageWrite    = errors.New("storage write failed")
	ErrSerialization   = errors.New("document serialization failed")
	ErrCorruptRecord   = errors.New("corrupt record")
)

// Error describes a failed store operation.
type Error struct {
	Kind error     // one of the Err* kinds above
	Op   string    // operation name, e.g. "put"
	Ref  model.Ref // the addressed record or partition, as far as known
	Err  error     // underlying cause, may be nil
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Op)
	if ref := refString(e.Ref); ref != "" {
		buf.WriteByte(' ')
		buf.WriteString(ref)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Kind.Error())
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// Unwrap exposes both the kind and the cause, so errors.Is(err,
// ErrCorruptRecord) and errors.As(err, &driverErr) both work.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func refString(r model.Ref) string {
	switch {
	case r.Key != "":
		return r.String()
	case r.Type != "":
		return r.Namespace + "/" + r.Type
	}
	return r.Namespace
}

// NewError builds an *Error. Backends use it to classify failures.
func NewError(kind error, op string, ref model.Ref, err error) *Error {
	return &Error{Kind: kind, Op: op, Ref: ref, Err: err}
}

// IsNotFound reports whether err is a missing-document result.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
