package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfinity/nfindb/internal/store"
)

// ErrNoBackup is returned by Source.Read when nothing has been written yet.
var ErrNoBackup = errors.New("no backup found")

// Destination is the interface for a sync target (S3, git, etc.).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Source is a destination that backups can be read back from.
type Source interface {
	// Read returns the last JSONL payload written.
	Read(ctx context.Context) ([]byte, error)
}

// Report describes one sync run. Destinations are named by their String
// method when they have one.
type Report struct {
	Bytes   int      `json:"bytes"`
	Written []string `json:"written"`
	Skipped []string `json:"skipped"` // unchanged since their last successful write
	Failed  []string `json:"failed"`
	Err     error    `json:"-"` // export failure; every destination is then Failed
}

// OK reports whether the export succeeded and no destination failed.
func (r Report) OK() bool {
	return r.Err == nil && len(r.Failed) == 0
}

// Scheduler runs periodic syncs to one or more destinations. A
// destination is only rewritten when the exported records differ from
// what it last received.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	last map[int][sha256.Size]byte // destination index -> records digest

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		last:         make(map[int][sha256.Size]byte),
	}
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick. A non-positive interval runs the initial sync only.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.SyncOnce(ctx)
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce exports the store and writes the payload to every destination
// whose copy is out of date.
func (s *Scheduler) SyncOnce(ctx context.Context) Report {
	var rep Report
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		s.logger.Error("sync export failed", "err", err)
		rep.Err = err
		for i, dest := range s.destinations {
			rep.Failed = append(rep.Failed, destName(i, dest))
		}
		return rep
	}
	data := buf.Bytes()
	rep.Bytes = len(data)
	digest := recordsDigest(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, dest := range s.destinations {
		name := destName(i, dest)
		if prev, ok := s.last[i]; ok && prev == digest {
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		if err := dest.Write(ctx, data); err != nil {
			rep.Failed = append(rep.Failed, name)
			s.logger.Error("sync destination write failed", "destination", name, "err", err)
			continue
		}
		s.last[i] = digest
		rep.Written = append(rep.Written, name)
	}

	s.logger.Info("sync completed",
		"written", len(rep.Written), "skipped", len(rep.Skipped), "failed", len(rep.Failed), "bytes", rep.Bytes)
	return rep
}

// recordsDigest hashes everything after the header line, which carries
// the export timestamp and so differs on every run.
func recordsDigest(data []byte) [sha256.Size]byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	return sha256.Sum256(data)
}

func destName(i int, dest Destination) string {
	if st, ok := dest.(fmt.Stringer); ok && st.String() != "" {
		return st.String()
	}
	return fmt.Sprintf("destination %d", i)
}
