// Package memstore is an in-memory store.Store. It backs the CLI's tests and
// the sync package's tests, and serves as the reference the PostgreSQL
// backend is checked against.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

type partition struct {
	namespace, typ string
}

type entry struct {
	text    string // encoded value, so stored documents cannot be aliased
	created int64
}

// Store implements store.Store in memory.
type Store struct {
	mu   sync.RWMutex
	data map[partition]map[string]entry
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store stamping writes with now, or time.Now if nil.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{data: make(map[partition]map[string]entry), now: now}
}

func (s *Store) ListNamespaces(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	out := []string{}
	for p := range s.data {
		if !seen[p.namespace] {
			seen[p.namespace] = true
			out = append(out, p.namespace)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListTypes(_ context.Context, namespace string) ([]string, error) {
	if err := model.ValidateNamespace(namespace); err != nil {
		return nil, store.NewError(store.ErrInvalidArgument, "list types", model.Ref{Namespace: namespace}, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []string{}
	for p := range s.data {
		if p.namespace == namespace {
			out = append(out, p.typ)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DropNamespace(_ context.Context, namespace string) (bool, error) {
	if err := model.ValidateNamespace(namespace); err != nil {
		return false, store.NewError(store.ErrInvalidArgument, "drop namespace", model.Ref{Namespace: namespace}, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := false
	for p := range s.data {
		if p.namespace == namespace {
			delete(s.data, p)
			dropped = true
		}
	}
	return dropped, nil
}

func (s *Store) DropType(_ context.Context, namespace, typ string) (bool, error) {
	if err := model.ValidatePartition(namespace, typ); err != nil {
		return false, store.NewError(store.ErrInvalidArgument, "drop type", model.Ref{Namespace: namespace, Type: typ}, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := partition{namespace, typ}
	if _, ok := s.data[p]; !ok {
		return false, nil
	}
	delete(s.data, p)
	return true, nil
}

func (s *Store) Put(_ context.Context, namespace, typ, key string, doc model.Document) error {
	return s.write("put", &model.Record{
		Namespace: namespace,
		Type:      typ,
		Key:       key,
		Value:     doc,
		Created:   s.now().Unix(),
	})
}

func (s *Store) Restore(_ context.Context, rec *model.Record) error {
	return s.write("restore", rec)
}

func (s *Store) write(op string, rec *model.Record) error {
	ref := rec.Ref()
	if err := ref.Validate(); err != nil {
		return store.NewError(store.ErrInvalidArgument, op, ref, err)
	}
	text, err := model.Encode(rec.Value)
	if err != nil {
		return store.NewError(store.ErrSerialization, op, ref, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := partition{rec.Namespace, rec.Type}
	if s.data[p] == nil {
		s.data[p] = make(map[string]entry)
	}
	s.data[p][rec.Key] = entry{text: text, created: rec.Created}
	return nil
}

func (s *Store) Get(_ context.Context, namespace, typ, key string) (model.Document, error) {
	ref := model.Ref{Namespace: namespace, Type: typ, Key: key}
	if err := ref.Validate(); err != nil {
		return model.Document{}, store.NewError(store.ErrInvalidArgument, "get", ref, err)
	}
	s.mu.RLock()
	e, ok := s.data[partition{namespace, typ}][key]
	s.mu.RUnlock()
	if !ok {
		return model.Document{}, store.NewError(store.ErrNotFound, "get", ref, nil)
	}
	doc, err := model.Decode(e.text)
	if err != nil {
		return model.Document{}, store.NewError(store.ErrCorruptRecord, "get", ref, err)
	}
	return doc, nil
}

func (s *Store) Delete(_ context.Context, namespace, typ, key string) (bool, error) {
	ref := model.Ref{Namespace: namespace, Type: typ, Key: key}
	if err := ref.Validate(); err != nil {
		return false, store.NewError(store.ErrInvalidArgument, "delete", ref, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := partition{namespace, typ}
	if _, ok := s.data[p][key]; !ok {
		return false, nil
	}
	delete(s.data[p], key)
	if len(s.data[p]) == 0 {
		delete(s.data, p)
	}
	return true, nil
}

func (s *Store) List(_ context.Context, namespace, typ string, opts model.ListOptions) ([]model.Item, error) {
	ref := model.Ref{Namespace: namespace, Type: typ}
	if err := model.ValidatePartition(namespace, typ); err != nil {
		return nil, store.NewError(store.ErrInvalidArgument, "list", ref, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, store.NewError(store.ErrInvalidArgument, "list", ref, err)
	}
	if opts.Limit == 0 {
		return []model.Item{}, nil
	}

	type row struct {
		key string
		entry
	}
	s.mu.RLock()
	rows := make([]row, 0, len(s.data[partition{namespace, typ}]))
	for k, e := range s.data[partition{namespace, typ}] {
		rows = append(rows, row{k, e})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !opts.Ascending {
			a, b = b, a
		}
		if a.created != b.created {
			return a.created < b.created
		}
		return a.key < b.key
	})

	if opts.Offset >= len(rows) {
		return []model.Item{}, nil
	}
	rows = rows[opts.Offset:]
	if len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	items := make([]model.Item, 0, len(rows))
	for _, r := range rows {
		doc, err := model.Decode(r.text)
		if err != nil {
			ref.Key = r.key
			return nil, store.NewError(store.ErrCorruptRecord, "list", ref, err)
		}
		items = append(items, model.Item{Key: r.key, Value: doc, Created: r.created})
	}
	return items, nil
}

func (s *Store) Count(_ context.Context, namespace, typ string) (int, error) {
	if err := model.ValidatePartition(namespace, typ); err != nil {
		return 0, store.NewError(store.ErrInvalidArgument, "count", model.Ref{Namespace: namespace, Type: typ}, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[partition{namespace, typ}]), nil
}

func (s *Store) Close() error {
	return nil
}

// Corrupt overwrites the stored text of an existing record, bypassing
// encoding. It exists so callers can exercise corrupt-record handling.
func (s *Store) Corrupt(ref model.Ref, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[partition{ref.Namespace, ref.Type}][ref.Key]
	if !ok {
		return false
	}
	e.text = text
	s.data[partition{ref.Namespace, ref.Type}][ref.Key] = e
	return true
}
