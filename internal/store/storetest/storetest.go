// Package storetest holds the behavioural suite every store.Store backend
// must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock for stamping writes.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Tick advances the clock by one second, the resolution of Created.
func (c *Clock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
}

// Factory returns a fresh, empty store that stamps writes with clock.Now.
type Factory func(t *testing.T, clock *Clock) store.Store

// Run executes the whole suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	for _, tc := range []struct {
		name string
		fn   func(t *testing.T, s store.Store, clock *Clock)
	}{
		{"EmptyStore", testEmptyStore},
		{"RoundTrip", testRoundTrip},
		{"Uniqueness", testUniqueness},
		{"PartitionIsolation", testPartitionIsolation},
		{"Enumeration", testEnumeration},
		{"PaginationCompleteness", testPaginationCompleteness},
		{"OrderReversal", testOrderReversal},
		{"TieBreakByKey", testTieBreakByKey},
		{"LimitZero", testLimitZero},
		{"Delete", testDelete},
		{"Restore", testRestore},
		{"InvalidArguments", testInvalidArguments},
		{"ConcurrentPutsSameKey", testConcurrentPutsSameKey},
		{"ScenarioListInCreationOrder", testScenarioList},
		{"ScenarioDropNamespace", testScenarioDropNamespace},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clock := NewClock()
			s := newStore(t, clock)
			tc.fn(t, s, clock)
		})
	}
}

func doc(v any) model.Document {
	return model.MustFromAny(v)
}

func mustPut(t *testing.T, s store.Store, ns, typ, key string, d model.Document) {
	t.Helper()
	if err := s.Put(context.Background(), ns, typ, key, d); err != nil {
		t.Fatalf("Put(%s/%s/%s): %v", ns, typ, key, err)
	}
}

func mustList(t *testing.T, s store.Store, ns, typ string, offset, limit int, asc bool) []model.Item {
	t.Helper()
	items, err := s.List(context.Background(), ns, typ, model.ListOptions{Offset: offset, Limit: limit, Ascending: asc})
	if err != nil {
		t.Fatalf("List(%s/%s, %d, %d, %v): %v", ns, typ, offset, limit, asc, err)
	}
	return items
}

func keys(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key
	}
	return out
}

func requireNotFound(t *testing.T, s store.Store, ns, typ, key string) {
	t.Helper()
	_, err := s.Get(context.Background(), ns, typ, key)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get(%s/%s/%s) error = %v, want ErrNotFound", ns, typ, key, err)
	}
}

func testEmptyStore(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()

	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("ListNamespaces: %v", err)
	}
	if len(namespaces) != 0 {
		t.Fatalf("ListNamespaces = %v, want empty", namespaces)
	}
	types, err := s.ListTypes(ctx, "app")
	if err != nil {
		t.Fatalf("ListTypes: %v", err)
	}
	if len(types) != 0 {
		t.Fatalf("ListTypes = %v, want empty", types)
	}
	requireNotFound(t, s, "app", "user", "u1")

	if items := mustList(t, s, "app", "user", 0, 10, true); len(items) != 0 {
		t.Fatalf("List = %v, want empty", items)
	}
	if n, err := s.Count(ctx, "app", "user"); err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0", n, err)
	}
	for name, fn := range map[string]func() (bool, error){
		"DropNamespace": func() (bool, error) { return s.DropNamespace(ctx, "app") },
		"DropType":      func() (bool, error) { return s.DropType(ctx, "app", "user") },
		"Delete":        func() (bool, error) { return s.Delete(ctx, "app", "user", "u1") },
	} {
		got, err := fn()
		if err != nil || got {
			t.Errorf("%s on empty store = %v, %v; want false, nil", name, got, err)
		}
	}
}

func testRoundTrip(t *testing.T, s store.Store, _ *Clock) {
	docs := map[string]model.Document{
		"null":   model.Null(),
		"bool":   model.Bool(false),
		"number": model.Number("3.141592653589793238462643383279"),
		"string": model.String("héllo <world> & \"quotes\""),
		"empty":  model.Object(nil),
		"array":  model.Array(),
		"nested": doc(map[string]any{
			"name":  "Ann",
			"tags":  []any{"a", "b", nil, true, 1.25},
			"inner": map[string]any{"deep": map[string]any{"n": -7}},
		}),
	}
	for key, d := range docs {
		mustPut(t, s, "app", "doc", key, d)
	}
	for key, want := range docs {
		got, err := s.Get(context.Background(), "app", "doc", key)
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Get(%s) mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func testUniqueness(t *testing.T, s store.Store, clock *Clock) {
	for i := 0; i < 3; i++ {
		mustPut(t, s, "app", "user", "u1", doc(map[string]any{"version": i}))
		clock.Tick()
	}
	mustPut(t, s, "app", "user", "u2", doc(map[string]any{"version": 0}))
	clock.Tick()
	// Rewriting u1 after u2 moves it to the end of the ascending order.
	mustPut(t, s, "app", "user", "u1", doc(map[string]any{"version": "last"}))

	got, err := s.Get(context.Background(), "app", "user", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(doc(map[string]any{"version": "last"}), got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}

	items := mustList(t, s, "app", "user", 0, 10, true)
	if diff := cmp.Diff([]string{"u2", "u1"}, keys(items)); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if items[1].Created != clock.Now().Unix() {
		t.Errorf("u1 Created = %d, want %d (timestamp replaced)", items[1].Created, clock.Now().Unix())
	}
	if n, _ := s.Count(context.Background(), "app", "user"); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func testPartitionIsolation(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	mustPut(t, s, "A", "X", "k", doc("ax"))
	mustPut(t, s, "A", "Y", "k", doc("ay"))
	mustPut(t, s, "B", "X", "k", doc("bx"))
	mustPut(t, s, "a", "X", "k", doc("lower-case namespace"))

	dropped, err := s.DropType(ctx, "A", "X")
	if err != nil || !dropped {
		t.Fatalf("DropType(A, X) = %v, %v; want true", dropped, err)
	}
	requireNotFound(t, s, "A", "X", "k")
	for _, ref := range []model.Ref{{Namespace: "A", Type: "Y", Key: "k"}, {Namespace: "B", Type: "X", Key: "k"}, {Namespace: "a", Type: "X", Key: "k"}} {
		if _, err := s.Get(ctx, ref.Namespace, ref.Type, ref.Key); err != nil {
			t.Fatalf("DropType(A, X) removed %s: %v", ref, err)
		}
	}
	if dropped, _ := s.DropType(ctx, "A", "X"); dropped {
		t.Error("second DropType(A, X) = true, want false")
	}

	dropped, err = s.DropNamespace(ctx, "A")
	if err != nil || !dropped {
		t.Fatalf("DropNamespace(A) = %v, %v; want true", dropped, err)
	}
	requireNotFound(t, s, "A", "Y", "k")
	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("ListNamespaces: %v", err)
	}
	if diff := cmp.Diff([]string{"B", "a"}, namespaces); diff != "" {
		t.Errorf("namespaces after drop mismatch (-want +got):\n%s", diff)
	}
}

func testEnumeration(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	for _, ref := range []model.Ref{
		{Namespace: "shop", Type: "order", Key: "o1"}, {Namespace: "shop", Type: "order", Key: "o2"}, {Namespace: "shop", Type: "user", Key: "u1"},
		{Namespace: "app", Type: "user", Key: "u1"}, {Namespace: "app", Type: "session", Key: "s1"},
	} {
		mustPut(t, s, ref.Namespace, ref.Type, ref.Key, model.Null())
	}

	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("ListNamespaces: %v", err)
	}
	if diff := cmp.Diff([]string{"app", "shop"}, namespaces); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}

	types, err := s.ListTypes(ctx, "shop")
	if err != nil {
		t.Fatalf("ListTypes: %v", err)
	}
	if diff := cmp.Diff([]string{"order", "user"}, types); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}

	types, err = s.ListTypes(ctx, "missing")
	if err != nil || len(types) != 0 {
		t.Errorf("ListTypes(missing) = %v, %v; want empty", types, err)
	}
}

func seedPartition(t *testing.T, s store.Store, clock *Clock, n int) []string {
	t.Helper()
	var want []string
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("k%02d", n-i) // keys sort opposite to creation order
		mustPut(t, s, "app", "item", key, doc(map[string]any{"i": i}))
		want = append(want, key)
		clock.Tick()
	}
	return want
}

func testPaginationCompleteness(t *testing.T, s store.Store, clock *Clock) {
	const n = 7
	want := seedPartition(t, s, clock, n)

	if diff := cmp.Diff(want, keys(mustList(t, s, "app", "item", 0, n, true))); diff != "" {
		t.Fatalf("full listing mismatch (-want +got):\n%s", diff)
	}
	if tail := mustList(t, s, "app", "item", n, 100, true); len(tail) != 0 {
		t.Fatalf("List past the end = %v, want empty", keys(tail))
	}

	for window := 1; window <= n+1; window++ {
		var got []string
		for offset := 0; offset < n; offset += window {
			got = append(got, keys(mustList(t, s, "app", "item", offset, window, true))...)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("window %d mismatch (-want +got):\n%s", window, diff)
		}
	}
}

func testOrderReversal(t *testing.T, s store.Store, clock *Clock) {
	const n = 5
	seedPartition(t, s, clock, n)

	asc := keys(mustList(t, s, "app", "item", 0, n, true))
	desc := keys(mustList(t, s, "app", "item", 0, n, false))
	slices.Reverse(desc)
	if diff := cmp.Diff(asc, desc); diff != "" {
		t.Errorf("descending is not the reverse of ascending (-asc +reversed desc):\n%s", diff)
	}
}

func testTieBreakByKey(t *testing.T, s store.Store, clock *Clock) {
	for _, key := range []string{"b", "c", "a"} {
		mustPut(t, s, "app", "tie", key, model.Null())
	}
	clock.Tick()
	mustPut(t, s, "app", "tie", "0-later", model.Null())

	if diff := cmp.Diff([]string{"a", "b", "c", "0-later"}, keys(mustList(t, s, "app", "tie", 0, 10, true))); diff != "" {
		t.Errorf("ascending mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0-later", "c", "b", "a"}, keys(mustList(t, s, "app", "tie", 0, 10, false))); diff != "" {
		t.Errorf("descending mismatch (-want +got):\n%s", diff)
	}
	// Windows over tied rows are deterministic.
	if diff := cmp.Diff([]string{"b"}, keys(mustList(t, s, "app", "tie", 1, 1, true))); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func testLimitZero(t *testing.T, s store.Store, _ *Clock) {
	mustPut(t, s, "app", "user", "u1", model.Null())
	items := mustList(t, s, "app", "user", 0, 0, true)
	if items == nil || len(items) != 0 {
		t.Fatalf("List with limit 0 = %#v, want empty non-nil", items)
	}
}

func testDelete(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	mustPut(t, s, "app", "user", "u1", model.Null())
	mustPut(t, s, "app", "user", "u2", model.Null())

	deleted, err := s.Delete(ctx, "app", "user", "u1")
	if err != nil || !deleted {
		t.Fatalf("Delete(u1) = %v, %v; want true", deleted, err)
	}
	requireNotFound(t, s, "app", "user", "u1")
	if _, err := s.Get(ctx, "app", "user", "u2"); err != nil {
		t.Fatalf("Delete(u1) removed u2: %v", err)
	}
	if deleted, _ := s.Delete(ctx, "app", "user", "u1"); deleted {
		t.Error("second Delete(u1) = true, want false")
	}
}

func testRestore(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	mustPut(t, s, "app", "user", "new", model.Null())
	rec := &model.Record{Namespace: "app", Type: "user", Key: "old", Value: doc(map[string]any{"restored": true}), Created: 1}
	if err := s.Restore(ctx, rec); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	items := mustList(t, s, "app", "user", 0, 10, true)
	if diff := cmp.Diff([]string{"old", "new"}, keys(items)); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if items[0].Created != 1 {
		t.Errorf("restored Created = %d, want 1", items[0].Created)
	}
}

func testInvalidArguments(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	checks := map[string]error{
		"PutEmptyKey":       s.Put(ctx, "app", "user", "", model.Null()),
		"PutEmptyNamespace": s.Put(ctx, "", "user", "u1", model.Null()),
		"GetEmptyType":      func() error { _, err := s.Get(ctx, "app", "", "u1"); return err }(),
		"ListNegative":      func() error { _, err := s.List(ctx, "app", "user", model.ListOptions{Offset: -1, Limit: 1}); return err }(),
		"DropEmpty":         func() error { _, err := s.DropNamespace(ctx, ""); return err }(),
	}
	for name, err := range checks {
		if !errors.Is(err, store.ErrInvalidArgument) {
			t.Errorf("%s: error = %v, want ErrInvalidArgument", name, err)
		}
	}
	if err := s.Put(ctx, "app", "user", "nan", model.Float(math.NaN())); !errors.Is(err, store.ErrSerialization) {
		t.Errorf("Put(NaN): error = %v, want ErrSerialization", err)
	}
	requireNotFound(t, s, "app", "user", "nan")

	for name, d := range map[string]model.Document{
		"bad-string": model.String("a\xffb"),
		"bad-field":  model.Object(map[string]model.Document{"k\xfe": model.Null()}),
		"bad-nested": model.Array(model.Int(1), model.MustFromAny(map[string]any{"s": model.String("\xc3")})),
	} {
		if err := s.Put(ctx, "app", "user", name, d); !errors.Is(err, store.ErrSerialization) {
			t.Errorf("Put(%s): error = %v, want ErrSerialization", name, err)
		}
		requireNotFound(t, s, "app", "user", name)
	}
}

func testConcurrentPutsSameKey(t *testing.T, s store.Store, _ *Clock) {
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Put(context.Background(), "app", "race", "k", doc(map[string]any{"writer": i}))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Put: %v", err)
		}
	}
	if n, err := s.Count(context.Background(), "app", "race"); err != nil || n != 1 {
		t.Fatalf("Count after racing puts = %d, %v; want 1", n, err)
	}
}

func testScenarioList(t *testing.T, s store.Store, clock *Clock) {
	mustPut(t, s, "app", "user", "u1", doc(map[string]any{"name": "Ann"}))
	clock.Tick()
	mustPut(t, s, "app", "user", "u2", doc(map[string]any{"name": "Bo"}))

	got := mustList(t, s, "app", "user", 0, 10, true)
	want := []model.Item{
		{Key: "u1", Value: doc(map[string]any{"name": "Ann"}), Created: Start.Unix()},
		{Key: "u2", Value: doc(map[string]any{"name": "Bo"}), Created: Start.Unix() + 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func testScenarioDropNamespace(t *testing.T, s store.Store, clock *Clock) {
	testScenarioList(t, s, clock)

	dropped, err := s.DropNamespace(context.Background(), "app")
	if err != nil || !dropped {
		t.Fatalf("DropNamespace(app) = %v, %v; want true", dropped, err)
	}
	requireNotFound(t, s, "app", "user", "u1")
}
