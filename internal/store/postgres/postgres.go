// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"testing/fstest"
	"text/template"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// tableNamePattern bounds table names so that the derived index and
// migration table names stay within PostgreSQL's 63-byte identifier limit.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,47}$`)

// PostgresStore implements store.Store on a single PostgreSQL table.
type PostgresStore struct {
	db     *sql.DB
	name   string // unquoted table name
	tbl    string // quoted table name, safe to splice into SQL
	now    func() time.Time
	ownsDB bool
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// Option customizes a PostgresStore.
type Option func(*PostgresStore)

// WithClock replaces the clock used to stamp Created on writes.
func WithClock(now func() time.Time) Option {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and initializes the document table.
// The returned store owns the connection and closes it on Close.
func New(ctx context.Context, databaseURL, table string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, initError(table, fmt.Errorf("open database: %w", err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, initError(table, fmt.Errorf("ping database: %w", err))
	}

	s, err := Open(ctx, db, table, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Open initializes the document table on an existing connection pool.
// It is safe to call repeatedly; an existing schema is left untouched.
// The caller keeps ownership of db.
func Open(ctx context.Context, db *sql.DB, table string, opts ...Option) (*PostgresStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, initError(table, fmt.Errorf("invalid table name %q", table))
	}
	if err := runMigrations(ctx, db, table); err != nil {
		return nil, initError(table, fmt.Errorf("run migrations: %w", err))
	}

	s := &PostgresStore{
		db:   db,
		name: table,
		tbl:  pq.QuoteIdentifier(table),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initError(table string, err error) error {
	return store.NewError(store.ErrStorageInit, "initialize "+table, model.Ref{}, err)
}

// schemaNames holds the quoted identifiers substituted into the migration
// templates.
type schemaNames struct {
	Table          string
	NamespaceIndex string
	CreatedIndex   string
	KeyIndex       string
}

func newSchemaNames(table string) schemaNames {
	return schemaNames{
		Table:          pq.QuoteIdentifier(table),
		NamespaceIndex: pq.QuoteIdentifier(table + "_ns"),
		CreatedIndex:   pq.QuoteIdentifier(table + "_ns_type_created"),
		KeyIndex:       pq.QuoteIdentifier(table + "_ns_type_key"),
	}
}

// renderMigrations expands the embedded migration templates for table.
func renderMigrations(table string) (fs.FS, error) {
	names := newSchemaNames(table)
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}

	out := fstest.MapFS{}
	for _, name := range files {
		tmpl, err := template.ParseFS(migrationsFS, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path.Base(name), err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, names); err != nil {
			return nil, fmt.Errorf("render %s: %w", path.Base(name), err)
		}
		out[name] = &fstest.MapFile{Data: buf.Bytes(), Mode: 0o444}
	}
	return out, nil
}

// runMigrations applies the schema on a connection borrowed from db for
// the duration of the call. Cancelling ctx stops between migrations, and a
// deadline on ctx bounds each statement.
func runMigrations(ctx context.Context, db *sql.DB, table string) error {
	rendered, err := renderMigrations(table)
	if err != nil {
		return fmt.Errorf("render migrations: %w", err)
	}

	sourceDriver, err := iofs.New(rendered, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	cfg := &postgres.Config{MigrationsTable: table + "_migrations"}
	if deadline, ok := ctx.Deadline(); ok {
		cfg.StatementTimeout = time.Until(deadline)
	}
	dbDriver, err := postgres.WithConnection(ctx, conn, cfg)
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return ctx.Err()
}

// Table returns the unquoted name of the backing table.
func (s *PostgresStore) Table() string {
	return s.name
}

// Close closes the underlying database connection if the store opened it.
func (s *PostgresStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ListNamespaces(ctx context.Context) ([]string, error) {
	names, err := queryListNamespaces(ctx, s.db, s.tbl)
	if err != nil {
		return nil, storageError(store.ErrStorageRead, "list namespaces", model.Ref{}, err)
	}
	return names, nil
}

func (s *PostgresStore) ListTypes(ctx context.Context, namespace string) ([]string, error) {
	ref := model.Ref{Namespace: namespace}
	if err := model.ValidateNamespace(namespace); err != nil {
		return nil, store.NewError(store.ErrInvalidArgument, "list types", ref, err)
	}
	types, err := queryListTypes(ctx, s.db, s.tbl, namespace)
	if err != nil {
		return nil, storageError(store.ErrStorageRead, "list types", ref, err)
	}
	return types, nil
}

func (s *PostgresStore) DropNamespace(ctx context.Context, namespace string) (bool, error) {
	ref := model.Ref{Namespace: namespace}
	if err := model.ValidateNamespace(namespace); err != nil {
		return false, store.NewError(store.ErrInvalidArgument, "drop namespace", ref, err)
	}
	dropped, err := queryDropNamespace(ctx, s.db, s.tbl, namespace)
	if err != nil {
		return false, storageError(store.ErrStorageWrite, "drop namespace", ref, err)
	}
	return dropped, nil
}

func (s *PostgresStore) DropType(ctx context.Context, namespace, typ string) (bool, error) {
	ref := model.Ref{Namespace: namespace, Type: typ}
	if err := model.ValidatePartition(namespace, typ); err != nil {
		return false, store.NewError(store.ErrInvalidArgument, "drop type", ref, err)
	}
	dropped, err := queryDropType(ctx, s.db, s.tbl, namespace, typ)
	if err != nil {
		return false, storageError(store.ErrStorageWrite, "drop type", ref, err)
	}
	return dropped, nil
}

func (s *PostgresStore) Put(ctx context.Context, namespace, typ, key string, doc model.Document) error {
	return s.write(ctx, "put", &model.Record{
		Namespace: namespace,
		Type:      typ,
		Key:       key,
		Value:     doc,
		Created:   s.now().Unix(),
	})
}

func (s *PostgresStore) Restore(ctx context.Context, rec *model.Record) error {
	return s.write(ctx, "restore", rec)
}

func (s *PostgresStore) write(ctx context.Context, op string, rec *model.Record) error {
	ref := rec.Ref()
	if err := ref.Validate(); err != nil {
		return store.NewError(store.ErrInvalidArgument, op, ref, err)
	}
	text, err := model.Encode(rec.Value)
	if err != nil {
		return store.NewError(store.ErrSerialization, op, ref, err)
	}
	if err := queryUpsert(ctx, s.db, s.tbl, ref, text, rec.Created); err != nil {
		return storageError(store.ErrStorageWrite, op, ref, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, namespace, typ, key string) (model.Document, error) {
	ref := model.Ref{Namespace: namespace, Type: typ, Key: key}
	if err := ref.Validate(); err != nil {
		return model.Document{}, store.NewError(store.ErrInvalidArgument, "get", ref, err)
	}
	text, err := queryGet(ctx, s.db, s.tbl, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, store.NewError(store.ErrNotFound, "get", ref, nil)
	}
	if err != nil {
		return model.Document{}, storageError(store.ErrStorageRead, "get", ref, err)
	}
	doc, err := model.Decode(text)
	if err != nil {
		return model.Document{}, store.NewError(store.ErrCorruptRecord, "get", ref, err)
	}
	return doc, nil
}

func (s *PostgresStore) Delete(ctx context.Context, namespace, typ, key string) (bool, error) {
	ref := model.Ref{Namespace: namespace, Type: typ, Key: key}
	if err := ref.Validate(); err != nil {
		return false, store.NewError(store.ErrInvalidArgument, "delete", ref, err)
	}
	deleted, err := queryDelete(ctx, s.db, s.tbl, ref)
	if err != nil {
		return false, storageError(store.ErrStorageWrite, "delete", ref, err)
	}
	return deleted, nil
}

// List returns one window of the partition. A stored value that cannot be
// decoded aborts the whole call with ErrCorruptRecord naming its key.
func (s *PostgresStore) List(ctx context.Context, namespace, typ string, opts model.ListOptions) ([]model.Item, error) {
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

	raw, err := queryList(ctx, s.db, s.tbl, namespace, typ, opts)
	if err != nil {
		return nil, storageError(store.ErrStorageRead, "list", ref, err)
	}
	items, err := decodeItems(raw)
	if err != nil {
		var ce *corruptValueError
		if errors.As(err, &ce) {
			ref.Key = ce.key
			return nil, store.NewError(store.ErrCorruptRecord, "list", ref, ce.err)
		}
		return nil, storageError(store.ErrStorageRead, "list", ref, err)
	}
	return items, nil
}

func (s *PostgresStore) Count(ctx context.Context, namespace, typ string) (int, error) {
	ref := model.Ref{Namespace: namespace, Type: typ}
	if err := model.ValidatePartition(namespace, typ); err != nil {
		return 0, store.NewError(store.ErrInvalidArgument, "count", ref, err)
	}
	n, err := queryCount(ctx, s.db, s.tbl, namespace, typ)
	if err != nil {
		return 0, storageError(store.ErrStorageRead, "count", ref, err)
	}
	return n, nil
}

// storageError classifies a database error. PostgreSQL data exceptions
// (SQLSTATE class 22, e.g. a value too long for its column) are the
// caller's fault and become ErrInvalidArgument.
func storageError(kind error, op string, ref model.Ref, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "22" {
		kind = store.ErrInvalidArgument
	}
	return store.NewError(kind, op, ref, err)
}
