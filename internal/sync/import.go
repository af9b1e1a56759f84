package sync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

// maxLineSize bounds a single JSONL line, and so a single document.
const maxLineSize = 64 << 20

// rawLine is a JSONL line whose payload is decoded once its type is known.
type rawLine struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ImportJSONL reads an export produced by ExportJSONL and restores every
// record into s, keeping each record's original Created timestamp.
// Records already present are overwritten. It returns the number of
// records restored; on error, records before the failing line remain.
func ImportJSONL(ctx context.Context, s store.Store, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	next := func() ([]byte, bool) {
		for sc.Scan() {
			lineNo++
			if b := sc.Bytes(); len(b) > 0 {
				return b, true
			}
		}
		return nil, false
	}

	first, ok := next()
	if !ok {
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("read header: %w", err)
		}
		return 0, errors.New("read header: empty input")
	}
	if _, err := decodeHeader(first); err != nil {
		return 0, fmt.Errorf("line %d: %w", lineNo, err)
	}

	n := 0
	for {
		b, ok := next()
		if !ok {
			break
		}
		var l rawLine
		if err := json.Unmarshal(b, &l); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if l.Type != "record" {
			return n, fmt.Errorf("line %d: unknown line type %q", lineNo, l.Type)
		}
		var rec model.Record
		if err := json.Unmarshal(l.Data, &rec); err != nil {
			return n, fmt.Errorf("line %d: decode record: %w", lineNo, err)
		}
		if err := s.Restore(ctx, &rec); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("line %d: %w", lineNo+1, err)
	}
	return n, nil
}

// decodeHeader parses and checks the first line of an export.
func decodeHeader(b []byte) (header, error) {
	var h header
	if err := json.Unmarshal(b, &h); err != nil {
		return header{}, fmt.Errorf("decode header: %w", err)
	}
	if h.Type != "header" {
		return header{}, fmt.Errorf("expected header, got %q", h.Type)
	}
	if h.Version != FormatVersion {
		return header{}, fmt.Errorf("unsupported export version %q", h.Version)
	}
	return h, nil
}

// parseHeader decodes the header of a complete export payload.
func parseHeader(data []byte) (header, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	return decodeHeader(data)
}
