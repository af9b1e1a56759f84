package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
)

// Kind identifies which variant a Document holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Document is a schemaless JSON-compatible value: null, bool, number,
// string, array or object. The zero value is null.
//
// Numbers keep their textual form so that a document survives a
// store round-trip without losing precision.
type Document struct {
	kind Kind
	b    bool
	s    string
	arr  []Document
	obj  map[string]Document
}

// Null returns the null document.
func Null() Document { return Document{} }

// Bool returns a boolean document.
func Bool(b bool) Document { return Document{kind: KindBool, b: b} }

// Number returns a number document holding n verbatim. An invalid number
// literal is only detected when the document is encoded.
func Number(n json.Number) Document { return Document{kind: KindNumber, s: string(n)} }

// Int returns a number document for i.
func Int(i int64) Document { return Number(json.Number(strconv.FormatInt(i, 10))) }

// Float returns a number document for f. NaN and infinities cannot be
// encoded and fail at Encode time.
func Float(f float64) Document {
	return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// String returns a string document.
func String(s string) Document { return Document{kind: KindString, s: s} }

// Array returns an array document holding items.
func Array(items ...Document) Document {
	if items == nil {
		items = []Document{}
	}
	return Document{kind: KindArray, arr: items}
}

// Object returns an object document holding fields. A nil map yields an
// empty object.
func Object(fields map[string]Document) Document {
	if fields == nil {
		fields = map[string]Document{}
	}
	return Document{kind: KindObject, obj: fields}
}

// Kind reports the variant held by d.
func (d Document) Kind() Kind { return d.kind }

// IsNull reports whether d is null.
func (d Document) IsNull() bool { return d.kind == KindNull }

func (d Document) AsBool() (bool, bool) { return d.b, d.kind == KindBool }

func (d Document) AsNumber() (json.Number, bool) {
	return json.Number(d.s), d.kind == KindNumber
}

func (d Document) AsString() (string, bool) {
	if d.kind != KindString {
		return "", false
	}
	return d.s, true
}

func (d Document) AsArray() ([]Document, bool) {
	if d.kind != KindArray {
		return nil, false
	}
	return d.arr, true
}

func (d Document) AsObject() (map[string]Document, bool) {
	if d.kind != KindObject {
		return nil, false
	}
	return d.obj, true
}

// Len returns the number of elements of an array or fields of an object,
// and 0 for every other kind.
func (d Document) Len() int {
	switch d.kind {
	case KindArray:
		return len(d.arr)
	case KindObject:
		return len(d.obj)
	}
	return 0
}

// Field returns the named field of an object document.
func (d Document) Field(name string) (Document, bool) {
	if d.kind != KindObject {
		return Document{}, false
	}
	v, ok := d.obj[name]
	return v, ok
}

// Keys returns the field names of an object document in sorted order.
func (d Document) Keys() []string {
	if d.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(d.obj))
	for k := range d.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Any converts d into plain Go values: nil, bool, json.Number, string,
// []any and map[string]any.
func (d Document) Any() any {
	switch d.kind {
	case KindBool:
		return d.b
	case KindNumber:
		return json.Number(d.s)
	case KindString:
		return d.s
	case KindArray:
		out := make([]any, len(d.arr))
		for i, v := range d.arr {
			out[i] = v.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(d.obj))
		for k, v := range d.obj {
			out[k] = v.Any()
		}
		return out
	}
	return nil
}

// Equal reports whether d and other hold the same value. Numbers compare
// by value, so 1, 1.0 and 1e0 are equal.
func (d Document) Equal(other Document) bool {
	if d.kind != other.kind {
		return false
	}
	switch d.kind {
	case KindNull:
		return true
	case KindBool:
		return d.b == other.b
	case KindString:
		return d.s == other.s
	case KindNumber:
		if d.s == other.s {
			return true
		}
		a, okA := new(big.Rat).SetString(d.s)
		b, okB := new(big.Rat).SetString(other.s)
		return okA && okB && a.Cmp(b) == 0
	case KindArray:
		if len(d.arr) != len(other.arr) {
			return false
		}
		for i := range d.arr {
			if !d.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(d.obj) != len(other.obj) {
			return false
		}
		for k, v := range d.obj {
			ov, ok := other.obj[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders d as compact JSON, or a diagnostic when d cannot be
// encoded.
func (d Document) String() string {
	text, err := Encode(d)
	if err != nil {
		return fmt.Sprintf("!(%s: %v)", d.kind, err)
	}
	return text
}

func (d Document) MarshalJSON() ([]byte, error) {
	text, err := Encode(d)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	v, err := Decode(string(data))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
