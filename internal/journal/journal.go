// Package journal keeps a diagnostic trail of submitted swaps. It is write-only from the loop's point of view.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"swaploop/internal/execution"
)

// Entry describes one submitted swap.
type Entry struct {
	Cycle     string         `json:"cycle"`
	Side      execution.Side `json:"side"`
	TokenIn   string         `json:"token_in"`
	TokenOut  string         `json:"token_out"`
	Amount    float64        `json:"amount"`
	Signature string         `json:"signature"`
	Endpoint  string         `json:"endpoint"`
	Ts        time.Time      `json:"ts"`
}

// Recorder captures swap entries.
type Recorder interface {
	Record(Entry)
}

// Discard drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) {}

// Multi fans entries out to several recorders.
type Multi []Recorder

func (m Multi) Record(e Entry) {
	for _, r := range m {
		r.Record(e)
	}
}

// Ledger keeps the most recent entries in memory plus a running count of everything recorded.
type Ledger struct {
	mu      sync.Mutex
	limit   int
	total   int
	entries []Entry
}

// NewLedger retains at most limit entries; limit <= 0 retains everything.
func NewLedger(limit int) *Ledger {
	if limit < 0 {
		limit = 0
	}
	return &Ledger{limit: limit, entries: make([]Entry, 0, limit)}
}

// Record appends an entry, evicting the oldest once the limit is reached.
func (l *Ledger) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	if l.limit > 0 && len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, e)
}

// Snapshot returns a copy of the retained entries, oldest first.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Total counts every entry ever recorded, evicted ones included.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// JSONLRecorder appends entries as JSON lines. Batch members record concurrently, so writes are serialized.
type JSONLRecorder struct {
	mu   sync.Mutex
	log  zerolog.Logger
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder opens path for appending, creating parent directories as needed.
func NewJSONLRecorder(path string, log zerolog.Logger) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JSONLRecorder{log: log.With().Str("journal", path).Logger(), file: file, enc: json.NewEncoder(file)}, nil
}

// Record writes a single entry. Write failures are logged; the swap already happened and is not undone.
// Writes after Close are dropped.
func (r *JSONLRecorder) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if err := r.enc.Encode(e); err != nil {
		r.log.Error().Err(err).Str("cycle", e.Cycle).Str("sig", e.Signature).Msg("journal write failed")
	}
}

// Close closes the file handle. Safe to call more than once.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
