package idgen

import (
	"regexp"
	"strings"
	"testing"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9]{16}$`)

func TestNewKey_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		key, err := NewKey()
		if err != nil {
			t.Fatalf("NewKey() error on iteration %d: %v", i, err)
		}
		if !keyPattern.MatchString(key) {
			t.Fatalf("NewKey() = %q, does not match expected charset pattern", key)
		}
	}
}

func TestNewKey_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		key, err := NewKey()
		if err != nil {
			t.Fatalf("NewKey() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key after %d generations: %q", i, key)
		}
		seen[key] = struct{}{}
	}
}

func TestNewKeyWithPrefix(t *testing.T) {
	prefix := "user-"
	key, err := NewKeyWithPrefix(prefix)
	if err != nil {
		t.Fatalf("NewKeyWithPrefix(%q) error: %v", prefix, err)
	}
	if !strings.HasPrefix(key, prefix) {
		t.Errorf("NewKeyWithPrefix(%q) = %q, want prefix %q", prefix, key, prefix)
	}
	if !keyPattern.MatchString(strings.TrimPrefix(key, prefix)) {
		t.Errorf("NewKeyWithPrefix(%q) = %q, does not match expected charset pattern", prefix, key)
	}
}

func TestNewKeyWithPrefix_TooLong(t *testing.T) {
	if _, err := NewKeyWithPrefix(strings.Repeat("p", 240)); err == nil {
		t.Fatal("expected error for a prefix that overflows the key length")
	}
	if _, err := NewKeyWithPrefix(strings.Repeat("p", 239)); err != nil {
		t.Fatalf("unexpected error for a prefix that just fits: %v", err)
	}
	if _, err := NewKeyWithPrefix("\xff"); err == nil {
		t.Fatal("expected error for an invalid UTF-8 prefix")
	}
}
