package store

import (
	"errors"
	"io"
	"testing"

	"github.com/nfinity/nfindb/internal/model"
)

func TestErrorMessage(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "Record",
			err:  NewError(ErrCorruptRecord, "get", model.Ref{Namespace: "app", Type: "user", Key: "u1"}, io.ErrUnexpectedEOF),
			want: "get app/user/u1: corrupt record: unexpected EOF",
		},
		{
			name: "Partition",
			err:  NewError(ErrStorageWrite, "drop type", model.Ref{Namespace: "app", Type: "user"}, errors.New("disk full")),
			want: "drop type app/user: storage write failed: disk full",
		},
		{
			name: "Namespace",
			err:  NewError(ErrNotFound, "get", model.Ref{Namespace: "app"}, nil),
			want: "get app: not found",
		},
		{
			name: "NoRef",
			err:  NewError(ErrStorageRead, "list namespaces", model.Ref{}, io.EOF),
			want: "list namespaces: storage read failed: EOF",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := &model.DecodeError{Err: io.ErrUnexpectedEOF}
	err := error(NewError(ErrCorruptRecord, "list", model.Ref{Namespace: "a", Type: "b", Key: "c"}, cause))

	if !errors.Is(err, ErrCorruptRecord) {
		t.Error("expected errors.Is(err, ErrCorruptRecord)")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("corrupt record must not match ErrNotFound")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected cause chain to be reachable")
	}
	var de *model.DecodeError
	if !errors.As(err, &de) {
		t.Error("expected errors.As to find *model.DecodeError")
	}
	var se *Error
	if !errors.As(err, &se) || se.Op != "list" {
		t.Errorf("expected *Error with op list, got %v", se)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewError(ErrNotFound, "get", model.Ref{}, nil)) {
		t.Error("IsNotFound should match a not-found error")
	}
	if IsNotFound(NewError(ErrStorageRead, "get", model.Ref{}, nil)) {
		t.Error("IsNotFound should not match a read error")
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound(nil) should be false")
	}
}
