// Package strikes counts how many maintenance cycles a job has been seen in
// the same state. A stuck job is only acted on once its count reaches the
// configured maximum, and the counts survive restarts through a JSON file.
package strikes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Record is one tracked job.
type Record struct {
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Operation string    `json:"operation"`
	Type      string    `json:"type,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithFs persists strikes on fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(h *Handler) {
		if fsys != nil {
			h.fs = fsys
		}
	}
}

// Handler tracks strikes keyed by "type:state:job id".
type Handler struct {
	records     map[string]*Record
	mu          sync.RWMutex
	fs          afero.Fs
	persistPath string
	logger      *slog.Logger
	added       int // current cycle
	reset       int // current cycle
}

// NewHandler creates a handler and loads persistPath when it is set.
func NewHandler(persistPath string, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		records:     make(map[string]*Record),
		fs:          afero.NewOsFs(),
		persistPath: persistPath,
		logger:      logger.With("component", "strikes"),
	}
	for _, opt := range opts {
		opt(h)
	}

	if persistPath != "" {
		if err := h.Load(); err != nil {
			h.logger.Warn("failed to load persisted strikes, starting fresh", "error", err)
		}
	}

	return h
}

// Add records one more sighting of key and returns the new count.
func (h *Handler) Add(key, operation, jobType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	rec, ok := h.records[key]
	if !ok {
		rec = &Record{FirstSeen: now}
		h.records[key] = rec
	}
	rec.Count++
	rec.LastSeen = now
	rec.Operation = operation
	if jobType != "" {
		rec.Type = jobType
	}

	h.added++
	return rec.Count
}

// Get returns the strike count for key.
func (h *Handler) Get(key string) int {
	rec, _ := h.record(key)
	return rec.Count
}

// record returns a copy of the record for key.
func (h *Handler) record(key string) (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, ok := h.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Reset forgets key.
func (h *Handler) Reset(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.records[key]; ok {
		delete(h.records, key)
		h.reset++
	}
}

// HasExceeded reports whether key has reached maxStrikes.
func (h *Handler) HasExceeded(key string, maxStrikes int) bool {
	return h.Get(key) >= maxStrikes
}

// Count returns the number of tracked keys.
func (h *Handler) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// snapshot returns a copy of every record.
func (h *Handler) snapshot() map[string]Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]Record, len(h.records))
	for k, v := range h.records {
		out[k] = *v
	}
	return out
}

// ResetCycleCounters returns the strikes added and reset since the previous
// call and zeroes them.
func (h *Handler) ResetCycleCounters() (added, reset int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	added, reset = h.added, h.reset
	h.added, h.reset = 0, 0
	return added, reset
}

// Save writes the records to the persist path through a temp file.
func (h *Handler) Save() error {
	if h.persistPath == "" {
		return nil
	}

	records := h.snapshot()
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal strikes: %w", err)
	}

	if err := h.fs.MkdirAll(filepath.Dir(h.persistPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := h.persistPath + ".tmp"
	if err := afero.WriteFile(h.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := h.fs.Rename(tmp, h.persistPath); err != nil {
		_ = h.fs.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}

	h.logger.Debug("persisted strikes", "path", h.persistPath, "count", len(records))
	return nil
}

// Load replaces the records with the persisted ones. A missing file is not
// an error.
func (h *Handler) Load() error {
	if h.persistPath == "" {
		return nil
	}

	data, err := afero.ReadFile(h.fs, h.persistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read file: %w", err)
	}

	records := make(map[string]*Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("unmarshal strikes: %w", err)
	}

	h.mu.Lock()
	h.records = records
	h.mu.Unlock()

	h.logger.Debug("loaded persisted strikes", "path", h.persistPath, "count", len(records))
	return nil
}

// Cleanup drops records not seen within maxAge, which covers jobs that left
// the state between cycles.
func (h *Handler) Cleanup(maxAge time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, rec := range h.records {
		if rec.LastSeen.Before(cutoff) {
			delete(h.records, key)
			removed++
		}
	}

	if removed > 0 {
		h.logger.Debug("cleaned up stale strikes", "removed", removed, "max_age", maxAge)
	}
	return removed
}
