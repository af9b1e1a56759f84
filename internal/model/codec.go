package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// EncodeError reports a document that cannot be represented as JSON text.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "encode document: " + e.Err.Error() }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports stored text that is not a single JSON value.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode document: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes d to compact JSON text. HTML characters are not
// escaped so the stored text stays readable. Strings and field names must
// be valid UTF-8; encoding/json would otherwise replace bad bytes with
// U+FFFD and the document would not read back unchanged.
func Encode(d Document) (string, error) {
	if err := checkUTF8(d, "$"); err != nil {
		return "", &EncodeError{Err: err}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d.Any()); err != nil {
		return "", &EncodeError{Err: err}
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func checkUTF8(d Document, path string) error {
	switch d.kind {
	case KindString:
		if !utf8.ValidString(d.s) {
			return fmt.Errorf("%s: string is not valid UTF-8", path)
		}
	case KindArray:
		for i, item := range d.arr {
			if err := checkUTF8(item, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
	case KindObject:
		for k, item := range d.obj {
			if !utf8.ValidString(k) {
				return fmt.Errorf("%s: field name %q is not valid UTF-8", path, k)
			}
			if err := checkUTF8(item, path+"."+k); err != nil {
				return err
			}
		}
	}
	return nil
}

// Decode parses text holding exactly one JSON value.
func Decode(text string) (Document, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Document{}, &DecodeError{Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Document{}, &DecodeError{Err: errors.New("trailing data after value")}
	}
	return fromDecoded(v), nil
}

// fromDecoded converts the output of a json.Decoder with UseNumber set.
func fromDecoded(v any) Document {
	switch t := v.(type) {
	case bool:
		return Bool(t)
	case json.Number:
		return Number(t)
	case string:
		return String(t)
	case []any:
		items := make([]Document, len(t))
		for i, item := range t {
			items[i] = fromDecoded(item)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Document, len(t))
		for k, item := range t {
			fields[k] = fromDecoded(item)
		}
		return Object(fields)
	}
	return Null()
}

// FromAny converts a Go value into a Document. Common shapes are
// converted directly; anything else goes through encoding/json, so
// tagged structs are accepted and channels, funcs, complex numbers and
// non-finite floats are rejected with an *EncodeError.
func FromAny(v any) (Document, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Document:
		return t, nil
	case *Document:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if _, err := Encode(Number(t)); err != nil {
			return Document{}, err
		}
		return Number(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case json.RawMessage:
		d, err := Decode(string(t))
		if err != nil {
			return Document{}, &EncodeError{Err: err}
		}
		return d, nil
	case []Document:
		return Array(t...), nil
	case map[string]Document:
		return Object(t), nil
	case []any:
		items := make([]Document, len(t))
		for i, item := range t {
			d, err := FromAny(item)
			if err != nil {
				return Document{}, err
			}
			items[i] = d
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Document, len(t))
		for k, item := range t {
			d, err := FromAny(item)
			if err != nil {
				return Document{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields[k] = d
		}
		return Object(fields), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Document{}, &EncodeError{Err: err}
	}
	d, err := Decode(string(data))
	if err != nil {
		return Document{}, &EncodeError{Err: err}
	}
	return d, nil
}

// MustFromAny is FromAny for values known to be representable, such as
// literals in tests and fixtures. It panics on error.
func MustFromAny(v any) Document {
	d, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return d
}
