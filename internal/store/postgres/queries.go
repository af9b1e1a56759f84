package postgres

import (
	"context"
	"database/sql"

	"github.com/nfinity/nfindb/internal/model"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Every query takes the already-quoted table name as tbl.

func queryListNamespaces(ctx context.Context, db executor, tbl string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT namespace FROM `+tbl+` ORDER BY namespace`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func queryListTypes(ctx context.Context, db executor, tbl, namespace string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT type FROM `+tbl+` WHERE namespace = $1 ORDER BY type`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func queryDropNamespace(ctx context.Context, db executor, tbl, namespace string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM `+tbl+` WHERE namespace = $1`, namespace)
	if err != nil {
		return false, err
	}
	return anyRowsAffected(res)
}

func queryDropType(ctx context.Context, db executor, tbl, namespace, typ string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM `+tbl+` WHERE namespace = $1 AND type = $2`, namespace, typ)
	if err != nil {
		return false, err
	}
	return anyRowsAffected(res)
}

// queryUpsert inserts the record or replaces the value and timestamp of the
// existing one. The unique (namespace, type, key) index arbitrates racing
// writers.
func queryUpsert(ctx context.Context, db executor, tbl string, ref model.Ref, value string, created int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO `+tbl+` (namespace, type, key, value, created)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace, type, key)
		DO UPDATE SET value = EXCLUDED.value, created = EXCLUDED.created`,
		ref.Namespace, ref.Type, ref.Key, value, created,
	)
	return err
}

// queryGet returns the stored text of a record, or sql.ErrNoRows.
func queryGet(ctx context.Context, db executor, tbl string, ref model.Ref) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM `+tbl+` WHERE namespace = $1 AND type = $2 AND key = $3`,
		ref.Namespace, ref.Type, ref.Key,
	).Scan(&value)
	return value, err
}

func queryDelete(ctx context.Context, db executor, tbl string, ref model.Ref) (bool, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM `+tbl+` WHERE namespace = $1 AND type = $2 AND key = $3`,
		ref.Namespace, ref.Type, ref.Key,
	)
	if err != nil {
		return false, err
	}
	return anyRowsAffected(res)
}

func queryList(ctx context.Context, db executor, tbl, namespace, typ string, opts model.ListOptions) ([]rawItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, value, created FROM `+tbl+`
		WHERE namespace = $1 AND type = $2
		ORDER BY `+orderClause(opts.Ascending)+`
		LIMIT $3 OFFSET $4`,
		namespace, typ, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRawItems(rows)
}

func queryCount(ctx context.Context, db executor, tbl, namespace, typ string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+tbl+` WHERE namespace = $1 AND type = $2`, namespace, typ,
	).Scan(&n)
	return n, err
}

// orderClause sorts by creation time and breaks ties by key in the same
// direction, so a descending listing is the exact reverse of an ascending one.
func orderClause(ascending bool) string {
	if ascending {
		return "created ASC, key ASC"
	}
	return "created DESC, key DESC"
}

func anyRowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
