package postgres

import (
	"database/sql"

	"github.com/nfinity/nfindb/internal/model"
)

// rawItem is a listed row before its value is decoded.
type rawItem struct {
	key     string
	value   string
	created int64
}

// corruptValueError carries the key of a row whose value failed to decode.
type corruptValueError struct {
	key string
	err error
}

func (e *corruptValueError) Error() string { return e.key + ": " + e.err.Error() }
func (e *corruptValueError) Unwrap() error { return e.err }

// scanStrings collects a single text column. It never returns a nil slice.
func scanStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanRawItems scans rows holding key, value, created.
func scanRawItems(rows *sql.Rows) ([]rawItem, error) {
	var out []rawItem
	for rows.Next() {
		var it rawItem
		if err := rows.Scan(&it.key, &it.value, &it.created); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// decodeItems decodes every value, stopping at the first corrupt one.
func decodeItems(raw []rawItem) ([]model.Item, error) {
	items := make([]model.Item, 0, len(raw))
	for _, r := range raw {
		doc, err := model.Decode(r.value)
		if err != nil {
			return nil, &corruptValueError{key: r.key, err: err}
		}
		items = append(items, model.Item{Key: r.key, Value: doc, Created: r.created})
	}
	return items, nil
}
