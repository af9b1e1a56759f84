package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

var testNow = time.Unix(1_700_000_000, 0)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// newTestStore wires a PostgresStore to sqlmock without running migrations.
func newTestStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return &PostgresStore{
		db:   db,
		name: "documents",
		tbl:  pq.QuoteIdentifier("documents"),
		now:  func() time.Time { return testNow },
	}, mock
}

// itemColumns is the column list returned by queryList.
var itemColumns = []string{"key", "value", "created"}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func TestTableNamePattern(t *testing.T) {
	for _, tc := range []struct {
		name string
		ok   bool
	}{
		{"documents", true},
		{"_docs2", true},
		{"Docs", true},
		{strings.Repeat("t", 48), true},
		{strings.Repeat("t", 49), false},
		{"", false},
		{"2docs", false},
		{"docs; DROP TABLE x", false},
		{`"docs"`, false},
		{"public.docs", false},
	} {
		if got := tableNamePattern.MatchString(tc.name); got != tc.ok {
			t.Errorf("tableNamePattern.MatchString(%q) = %v, want %v", tc.name, got, tc.ok)
		}
	}
}

func TestRenderMigrations(t *testing.T) {
	rendered, err := renderMigrations("docs")
	if err != nil {
		t.Fatalf("renderMigrations: %v", err)
	}

	up, err := fs.ReadFile(rendered, "migrations/000001_create_documents.up.sql")
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "docs" (`,
		`CREATE INDEX IF NOT EXISTS "docs_ns" ON "docs" (namespace);`,
		`CREATE INDEX IF NOT EXISTS "docs_ns_type_created" ON "docs" (namespace, type, created);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS "docs_ns_type_key" ON "docs" (namespace, type, key);`,
	} {
		if !strings.Contains(string(up), want) {
			t.Errorf("up migration missing %q:\n%s", want, up)
		}
	}
	if strings.Contains(string(up), "{{") {
		t.Errorf("up migration has unrendered template markers:\n%s", up)
	}

	down, err := fs.ReadFile(rendered, "migrations/000001_create_documents.down.sql")
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}
	if !strings.Contains(string(down), `DROP TABLE IF EXISTS "docs"`) {
		t.Errorf("down migration = %q", down)
	}
}

func TestOpen_InvalidTableName(t *testing.T) {
	db, _ := newMockDB(t)
	_, err := Open(context.Background(), db, "bad-name", WithClock(nil))
	requireKind(t, err, store.ErrStorageInit)
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(ctx, "postgres://nobody@127.0.0.1:1/nfindb?sslmode=disable&connect_timeout=1", "documents")
	requireKind(t, err, store.ErrStorageInit)
}

func TestListNamespaces(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT DISTINCT namespace FROM "documents" ORDER BY namespace`).
		WillReturnRows(sqlmock.NewRows([]string{"namespace"}).AddRow("app").AddRow("billing"))

	got, err := s.ListNamespaces(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"app", "billing"}, got); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestListNamespaces_Empty(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT DISTINCT namespace FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"namespace"}))

	got, err := s.ListNamespaces(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestListNamespaces_Error(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT DISTINCT namespace`).WillReturnError(sql.ErrConnDone)

	_, err := s.ListNamespaces(context.Background())
	requireKind(t, err, store.ErrStorageRead)
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}

func TestListTypes(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT DISTINCT type FROM "documents" WHERE namespace = \$1 ORDER BY type`).
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("order").AddRow("user"))

	got, err := s.ListTypes(context.Background(), "app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"order", "user"}, got); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestListTypes_InvalidNamespace(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.ListTypes(context.Background(), "")
	requireKind(t, err, store.ErrInvalidArgument)
}

func TestDropNamespace(t *testing.T) {
	for _, tc := range []struct {
		name     string
		affected int64
		want     bool
	}{
		{"Dropped", 3, true},
		{"Absent", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.ExpectExec(`DELETE FROM "documents" WHERE namespace = \$1$`).WithArgs("app").
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			got, err := s.DropNamespace(context.Background(), "app")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("DropNamespace = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDropNamespace_Error(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`DELETE FROM "documents"`).WithArgs("app").WillReturnError(errors.New("connection reset"))

	_, err := s.DropNamespace(context.Background(), "app")
	requireKind(t, err, store.ErrStorageWrite)
}

func TestDropType(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`DELETE FROM "documents" WHERE namespace = \$1 AND type = \$2$`).WithArgs("app", "user").
		WillReturnResult(sqlmock.NewResult(0, 2))

	got, err := s.DropType(context.Background(), "app", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("DropType = false, want true")
	}
}

func TestDropType_InvalidArgument(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.DropType(context.Background(), "app", "")
	requireKind(t, err, store.ErrInvalidArgument)
}

func TestPut(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO "documents" \(namespace, type, key, value, created\).+ON CONFLICT \(namespace, type, key\)\s+DO UPDATE SET value = EXCLUDED.value, created = EXCLUDED.created`).
		WithArgs("app", "user", "u1", `{"name":"Ann"}`, testNow.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := model.MustFromAny(map[string]any{"name": "Ann"})
	if err := s.Put(context.Background(), "app", "user", "u1", doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPut_SerializationError(t *testing.T) {
	s, _ := newTestStore(t)
	doc := model.Object(map[string]model.Document{"bad": model.Number("not-a-number")})

	err := s.Put(context.Background(), "app", "user", "u1", doc)
	requireKind(t, err, store.ErrSerialization)
	var ee *model.EncodeError
	if !errors.As(err, &ee) {
		t.Errorf("expected *model.EncodeError cause, got %v", err)
	}
}

func TestPut_InvalidArgument(t *testing.T) {
	s, _ := newTestStore(t)
	for _, ref := range []model.Ref{
		{Type: "user", Key: "u1"},
		{Namespace: "app", Key: "u1"},
		{Namespace: "app", Type: "user"},
		{Namespace: "app", Type: "user", Key: strings.Repeat("k", 256)},
	} {
		err := s.Put(context.Background(), ref.Namespace, ref.Type, ref.Key, model.Null())
		requireKind(t, err, store.ErrInvalidArgument)
	}
}

func TestPut_StorageErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		cause error
		kind  error
	}{
		{"Generic", errors.New("connection reset"), store.ErrStorageWrite},
		{"DataException", &pq.Error{Code: "22001", Message: "value too long"}, store.ErrInvalidArgument},
		{"Constraint", &pq.Error{Code: "23505", Message: "duplicate key"}, store.ErrStorageWrite},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.ExpectExec(`INSERT INTO "documents"`).WillReturnError(tc.cause)

			err := s.Put(context.Background(), "app", "user", "u1", model.String("x"))
			requireKind(t, err, tc.kind)
		})
	}
}

func TestRestore_KeepsCreated(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO "documents"`).
		WithArgs("app", "user", "u1", `[1,2]`, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &model.Record{Namespace: "app", Type: "user", Key: "u1", Value: model.Array(model.Int(1), model.Int(2)), Created: 42}
	if err := s.Restore(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGet(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT value FROM "documents" WHERE namespace = \$1 AND type = \$2 AND key = \$3`).
		WithArgs("app", "user", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`{"name":"Ann","age":30}`))

	got, err := s.Get(context.Background(), "app", "user", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.MustFromAny(map[string]any{"name": "Ann", "age": 30})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestGet_EmptyDocumentIsNotNotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT value FROM "documents"`).WithArgs("app", "user", "empty").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`{}`))

	got, err := s.Get(context.Background(), "app", "user", "empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind() != model.KindObject || got.Len() != 0 {
		t.Fatalf("expected empty object, got %v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT value FROM "documents"`).WithArgs("app", "user", "nope").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "app", "user", "nope")
	requireKind(t, err, store.ErrNotFound)
	if !store.IsNotFound(err) {
		t.Error("IsNotFound = false")
	}
}

func TestGet_CorruptRecord(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT value FROM "documents"`).WithArgs("app", "user", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`{"name":`))

	_, err := s.Get(context.Background(), "app", "user", "u1")
	requireKind(t, err, store.ErrCorruptRecord)
	var se *store.Error
	if !errors.As(err, &se) || se.Ref.Key != "u1" {
		t.Errorf("expected *store.Error naming u1, got %v", err)
	}
}

func TestGet_ReadError(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT value FROM "documents"`).WillReturnError(context.DeadlineExceeded)

	_, err := s.Get(context.Background(), "app", "user", "u1")
	requireKind(t, err, store.ErrStorageRead)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	for _, tc := range []struct {
		name     string
		affected int64
		want     bool
	}{
		{"Deleted", 1, true},
		{"Absent", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.ExpectExec(`DELETE FROM "documents" WHERE namespace = \$1 AND type = \$2 AND key = \$3`).
				WithArgs("app", "user", "u1").
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			got, err := s.Delete(context.Background(), "app", "user", "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Delete = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestList(t *testing.T) {
	for _, tc := range []struct {
		name  string
		opts  model.ListOptions
		order string
	}{
		{"Ascending", model.ListOptions{Offset: 0, Limit: 10, Ascending: true}, `ORDER BY created ASC, key ASC`},
		{"Descending", model.ListOptions{Offset: 5, Limit: 2, Ascending: false}, `ORDER BY created DESC, key DESC`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.ExpectQuery(`SELECT key, value, created FROM "documents"\s+WHERE namespace = \$1 AND type = \$2\s+`+tc.order+`\s+LIMIT \$3 OFFSET \$4`).
				WithArgs("app", "user", tc.opts.Limit, tc.opts.Offset).
				WillReturnRows(sqlmock.NewRows(itemColumns).
					AddRow("u1", `{"name":"Ann"}`, 100).
					AddRow("u2", `{"name":"Bo"}`, 101))

			got, err := s.List(context.Background(), "app", "user", tc.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := []model.Item{
				{Key: "u1", Value: model.MustFromAny(map[string]any{"name": "Ann"}), Created: 100},
				{Key: "u2", Value: model.MustFromAny(map[string]any{"name": "Bo"}), Created: 101},
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestList_ZeroLimitSkipsQuery(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.List(context.Background(), "app", "user", model.ListOptions{Offset: 3, Limit: 0, Ascending: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestList_InvalidWindow(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.List(context.Background(), "app", "user", model.ListOptions{Offset: -1, Limit: 10})
	requireKind(t, err, store.ErrInvalidArgument)
}

func TestList_CorruptRecordAborts(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT key, value, created FROM "documents"`).
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow("u1", `{"name":"Ann"}`, 100).
			AddRow("u2", `not json`, 101).
			AddRow("u3", `{}`, 102))

	got, err := s.List(context.Background(), "app", "user", model.DefaultListOptions())
	requireKind(t, err, store.ErrCorruptRecord)
	if got != nil {
		t.Errorf("expected no partial result, got %v", got)
	}
	var se *store.Error
	if !errors.As(err, &se) || se.Ref.Key != "u2" {
		t.Errorf("expected error naming u2, got %v", err)
	}
}

func TestList_ScanError(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT key, value, created FROM "documents"`).
		WillReturnRows(sqlmock.NewRows(itemColumns).AddRow("u1", `{}`, "not-a-number"))

	_, err := s.List(context.Background(), "app", "user", model.DefaultListOptions())
	requireKind(t, err, store.ErrStorageRead)
}

func TestCount(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "documents" WHERE namespace = \$1 AND type = \$2`).
		WithArgs("app", "user").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.Count(context.Background(), "app", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("Count = %d, want 7", n)
	}
}

func TestClose_BorrowedHandle(t *testing.T) {
	s, mock := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// The borrowed pool must still be usable.
	mock.ExpectQuery(`SELECT DISTINCT namespace`).WillReturnRows(sqlmock.NewRows([]string{"namespace"}))
	if _, err := s.ListNamespaces(context.Background()); err != nil {
		t.Fatalf("store unusable after Close of borrowed handle: %v", err)
	}
}
