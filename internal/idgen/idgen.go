// Package idgen generates document keys for writes that do not name one.
package idgen

import (
	"fmt"
	"unicode/utf8"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/nfinity/nfindb/internal/model"
)

// Alphabet defines the character set used for the random portion of the key.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding any prefix).
// 62^16 keys make collisions within one partition negligible.
const Length = 16

// NewKey returns a new random key.
func NewKey() (string, error) {
	return NewKeyWithPrefix("")
}

// NewKeyWithPrefix returns a new random key with the given prefix. The
// result must still fit in a record identifier.
func NewKeyWithPrefix(prefix string) (string, error) {
	if !utf8.ValidString(prefix) || len(prefix)+Length > model.MaxIdentifierLength {
		return "", fmt.Errorf("idgen: prefix %q too long or not UTF-8", prefix)
	}
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
