package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

// FormatVersion is written in the header line and checked on import.
const FormatVersion = "1"

// exportPageSize is the window used to walk each partition.
const exportPageSize = 500

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int       `json:"record_count"`
}

// line wraps a single JSONL line with a type discriminator.
type line struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every record in the store as JSONL to w. Records are
// grouped by namespace and type, both in sorted order, and each partition
// is written oldest first.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	records, err := collect(ctx, s)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	// Write header.
	if err := enc.Encode(header{
		Version:     FormatVersion,
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		RecordCount: len(records),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, rec := range records {
		if err := enc.Encode(line{Type: "record", Data: rec}); err != nil {
			return fmt.Errorf("encode record %s: %w", rec.Ref(), err)
		}
	}
	return nil
}

func collect(ctx context.Context, s store.Store) ([]*model.Record, error) {
	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	var records []*model.Record
	for _, ns := range namespaces {
		types, err := s.ListTypes(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("list types in %s: %w", ns, err)
		}
		for _, typ := range types {
			for offset := 0; ; offset += exportPageSize {
				items, err := s.List(ctx, ns, typ, model.ListOptions{Offset: offset, Limit: exportPageSize, Ascending: true})
				if err != nil {
					return nil, fmt.Errorf("list %s/%s: %w", ns, typ, err)
				}
				for _, it := range items {
					records = append(records, &model.Record{
						Namespace: ns,
						Type:      typ,
						Key:       it.Key,
						Value:     it.Value,
						Created:   it.Created,
					})
				}
				if len(items) < exportPageSize {
					break
				}
			}
		}
	}
	return records, nil
}
