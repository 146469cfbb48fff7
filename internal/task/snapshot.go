package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avelines/taskwatch/internal/store/kv"
	"github.com/avelines/taskwatch/internal/telemetry"
)

// DefaultSnapshotTTL is how long a persisted snapshot stays trustworthy.
// Anything older is discarded wholesale on load, never partially trusted.
const DefaultSnapshotTTL = 30 * time.Minute

// snapshotKey is versioned so a future format change can simply start
// writing under a new key.
const DefaultSnapshotKey = "taskwatch:snapshot:v1"

// Synchronizer shadows every store mutation into a key-value backend and
// restores the store from the backend at startup. Persistence is strictly
// best-effort: a failing backend is logged and otherwise ignored, it never
// blocks or fails the in-memory operation it is shadowing.
type Synchronizer struct {
	store   *Store
	backend kv.Store
	key     string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger

	// mu serializes writes; lastStamp drops snapshots that arrive after
	// a newer one was already persisted (two pollers can finish close
	// together and deliver their change hooks out of order).
	mu        sync.Mutex
	lastStamp time.Time

	now func() time.Time
}

// SynchronizerOption adjusts a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithSnapshotKey overrides the backend key the snapshot is stored under.
func WithSnapshotKey(key string) SynchronizerOption {
	return func(s *Synchronizer) { s.key = key }
}

// WithSnapshotTTL overrides the snapshot time-to-live.
func WithSnapshotTTL(ttl time.Duration) SynchronizerOption {
	return func(s *Synchronizer) { s.ttl = ttl }
}

// NewSynchronizer creates a Synchronizer for the given store and backend.
// Call Attach to start shadowing mutations.
func NewSynchronizer(store *Store, backend kv.Store, logger *slog.Logger, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		store:   store,
		backend: backend,
		key:     DefaultSnapshotKey,
		ttl:     DefaultSnapshotTTL,
		timeout: 5 * time.Second,
		logger:  logger.With("component", "snapshot_synchronizer"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach installs the synchronizer as the store's change hook.
func (s *Synchronizer) Attach() {
	s.store.SetOnChange(s.persist)
}

// persist serializes and writes one snapshot. Failures are logged and
// swallowed. Stale snapshots, older than one already written, are dropped
// so the backend always ends up holding the newest state.
func (s *Synchronizer) persist(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Timestamp.Before(s.lastStamp) {
		return
	}
	s.lastStamp = snap.Timestamp

	data, err := json.Marshal(snap)
	if err != nil {
		telemetry.SnapshotSaveFailures.Inc()
		s.logger.Error("failed to encode snapshot", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		telemetry.SnapshotSaveFailures.Inc()
		s.logger.Error("failed to persist snapshot",
			"error", err,
			"tasks", len(snap.Tasks))
	}
}

// Load reads and validates the persisted snapshot. Expired or structurally
// invalid payloads are discarded, the backend is cleared, and nil is
// returned; no failure mode escapes as an error to the caller.
func (s *Synchronizer) Load(ctx context.Context) *Snapshot {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			telemetry.SnapshotLoadFailures.Inc()
			s.logger.Error("failed to read snapshot", "error", err)
		}
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		telemetry.SnapshotLoadFailures.Inc()
		s.logger.Warn("discarding corrupt snapshot", "error", err)
		s.Clear(ctx)
		return nil
	}
	if snap.Timestamp.IsZero() {
		telemetry.SnapshotLoadFailures.Inc()
		s.logger.Warn("discarding snapshot without timestamp")
		s.Clear(ctx)
		return nil
	}

	if age := s.now().Sub(snap.Timestamp); age > s.ttl {
		s.logger.Info("discarding expired snapshot",
			"age", age, "ttl", s.ttl)
		s.Clear(ctx)
		return nil
	}

	return &snap
}

// Restore loads the persisted snapshot and, when valid, repopulates the
// store. It returns the number of restored descriptors. Pollers for the
// restored non-terminal descriptors are not re-attached here; the owning
// application does that explicitly (see Tracker.Resume).
func (s *Synchronizer) Restore(ctx context.Context) int {
	snap := s.Load(ctx)
	if snap == nil {
		return 0
	}
	s.store.Restore(*snap)
	return len(snap.Tasks)
}

// Clear drops the persisted snapshot. Failures are logged and swallowed.
func (s *Synchronizer) Clear(ctx context.Context) {
	if err := s.backend.Delete(ctx, s.key); err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.logger.Error("failed to clear snapshot", "error", err)
	}
}
