package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store/memstore"
)

var seedTime = time.Unix(1_700_000_000, 0)

// seedStore returns a memstore holding records spread over two namespaces.
// Keys are inserted out of order to check that export orders them.
func seedStore(t *testing.T) *memstore.Store {
	t.Helper()
	now := seedTime
	ms := memstore.New(func() time.Time { return now })
	for _, r := range []struct{ ns, typ, key string }{
		{"shop", "order", "o2"},
		{"app", "user", "u2"},
		{"app", "session", "s1"},
		{"app", "user", "u1"},
		{"shop", "order", "o1"},
	} {
		doc := model.MustFromAny(map[string]any{"id": r.key, "tags": []any{"x", 1}})
		if err := ms.Put(context.Background(), r.ns, r.typ, r.key, doc); err != nil {
			t.Fatalf("seed %s/%s/%s: %v", r.ns, r.typ, r.key, err)
		}
		now = now.Add(time.Second)
	}
	return ms
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
