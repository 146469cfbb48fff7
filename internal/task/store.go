package task

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store is the authoritative in-memory view of active descriptors plus the
// derived per-entity status projection. It is the single shared mutable
// resource of the subsystem: the Launcher registers, Pollers update and
// remove, and the consumer surface cancels. All mutations are synchronous
// under one mutex; persistence is triggered through a change hook that runs
// after the mutation and can never fail it.
type Store struct {
	mu       sync.RWMutex
	tasks    map[Key]Descriptor
	reserved map[Key]struct{}
	entities map[string]ProjectionEntry
	onChange func(Snapshot)
	logger   *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		tasks:    make(map[Key]Descriptor),
		reserved: make(map[Key]struct{}),
		entities: make(map[string]ProjectionEntry),
		logger:   logger.With("component", "task_store"),
		now:      time.Now,
	}
}

// Reserve claims a key ahead of a launch, so at most one launch request per
// key can be in flight against the remote service. The claim is released by
// Register (the launch succeeded) or Release (it did not). Reserving a key
// that is active or already reserved returns ErrAlreadyRunning.
func (s *Store) Reserve(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	if _, exists := s.reserved[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	s.reserved[key] = struct{}{}
	return nil
}

// Release drops a reservation that did not lead to a registration.
func (s *Store) Release(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, key)
}

// SetOnChange installs the hook invoked with a fresh snapshot after every
// mutation. The hook runs outside the store lock.
func (s *Store) SetOnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Register adds a new descriptor, enforcing the one-active-task-per-key
// invariant, and seeds the entity projection with the descriptor's status.
func (s *Store) Register(d Descriptor) error {
	s.mu.Lock()
	key := d.Key()
	if _, exists := s.tasks[key]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	if d.LastUpdate.IsZero() {
		d.LastUpdate = s.now()
	}
	delete(s.reserved, key)
	s.tasks[key] = d
	s.projectLocked(key.EntityID, key.Type, d.Status)
	s.logger.Debug("descriptor registered",
		"entity_id", d.EntityID,
		"task_type", d.Type,
		"task_id", d.TaskID)
	s.notifyLocked()
	return nil
}

// UpdateStatus applies a non-terminal status observed by a poller to the
// descriptor and the entity projection. Updating a key with no active
// descriptor returns ErrNoActiveTask so a stale in-flight response is
// discarded rather than resurrected.
func (s *Store) UpdateStatus(key Key, status Status) error {
	s.mu.Lock()
	d, ok := s.tasks[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoActiveTask, key)
	}
	d.Status = status
	d.LastUpdate = s.now()
	s.tasks[key] = d
	s.projectLocked(key.EntityID, key.Type, status)
	s.notifyLocked()
	return nil
}

// BumpAttempts increments the poll counter of an active descriptor and
// returns the new count. The second return is false when the descriptor is
// gone, which tells the poller to stop.
func (s *Store) BumpAttempts(key Key) (int, bool) {
	s.mu.Lock()
	d, ok := s.tasks[key]
	if !ok {
		s.mu.Unlock()
		return 0, false
	}
	d.Attempts++
	d.LastUpdate = s.now()
	s.tasks[key] = d
	attempts := d.Attempts
	s.notifyLocked()
	return attempts, true
}

// Finish applies a terminal status: the entity projection is updated and the
// descriptor removed, in that order. It reports whether the transition was
// applied; a second terminal application for the same key is a no-op, which
// makes stale in-flight responses after cancellation harmless.
func (s *Store) Finish(key Key, status Status) bool {
	s.mu.Lock()
	if _, ok := s.tasks[key]; !ok {
		s.mu.Unlock()
		return false
	}
	s.projectLocked(key.EntityID, key.Type, status)
	delete(s.tasks, key)
	s.logger.Debug("descriptor finished",
		"entity_id", key.EntityID,
		"task_type", key.Type,
		"status", status)
	s.notifyLocked()
	return true
}

// Remove drops a descriptor without touching the projection. Used by
// cancellation, which must leave the last applied status visible.
func (s *Store) Remove(key Key) bool {
	s.mu.Lock()
	if _, ok := s.tasks[key]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.tasks, key)
	s.notifyLocked()
	return true
}

// Has reports whether a descriptor is active for the key.
func (s *Store) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tasks[key]
	return ok
}

// Get returns a copy of the active descriptor for the key.
func (s *Store) Get(key Key) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.tasks[key]
	return d, ok
}

// Active returns copies of all active descriptors, ordered by start time for
// stable display.
func (s *Store) Active() []Descriptor {
	s.mu.RLock()
	out := make([]Descriptor, 0, len(s.tasks))
	for _, d := range s.tasks {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// EntityStatus returns the last known status for the entity and task type,
// whether or not a descriptor is still active.
func (s *Store) EntityStatus(entityID string, t Type) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entities[entityID]
	if !ok {
		return "", false
	}
	status, ok := entry.StatusByType[t]
	return status, ok
}

// Projection returns a copy of the full projection entry for an entity.
func (s *Store) Projection(entityID string) (ProjectionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entities[entityID]
	if !ok {
		return ProjectionEntry{}, false
	}
	return copyProjection(entry), true
}

// ApplyStatuses projects stored statuses onto a batch of freshly fetched
// entity records, overriding the status embedded in a record only when the
// store holds a more recent projection for that entity.
func (s *Store) ApplyStatuses(entities []StatusCarrier) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range entities {
		entry, ok := s.entities[e.EntityID()]
		if !ok || !entry.LastUpdate.After(e.StatusTimestamp()) {
			continue
		}
		for t, status := range entry.StatusByType {
			e.SetTaskStatus(t, status)
		}
	}
}

// Snapshot captures the full store state for persistence.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Restore replaces the store contents with a previously persisted snapshot.
// It is meant to run once at startup, before any launch.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	s.tasks = make(map[Key]Descriptor, len(snap.Tasks))
	s.entities = make(map[string]ProjectionEntry, len(snap.Entities))
	for _, d := range snap.Tasks {
		s.tasks[d.Key()] = d
	}
	for _, entry := range snap.Entities {
		s.entities[entry.EntityID] = copyProjection(entry)
	}
	restored := len(s.tasks)
	s.mu.Unlock()
	s.logger.Info("store restored from snapshot",
		"tasks", restored,
		"entities", len(snap.Entities),
		"snapshot_time", snap.Timestamp)
}

// projectLocked updates the per-entity projection. Caller holds the lock.
func (s *Store) projectLocked(entityID string, t Type, status Status) {
	entry, ok := s.entities[entityID]
	if !ok {
		entry = ProjectionEntry{
			EntityID:     entityID,
			StatusByType: make(map[Type]Status),
		}
	}
	entry.StatusByType[t] = status
	entry.LastUpdate = s.now()
	s.entities[entityID] = entry
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Timestamp: s.now(),
		Tasks:     make([]Descriptor, 0, len(s.tasks)),
		Entities:  make([]ProjectionEntry, 0, len(s.entities)),
	}
	for _, d := range s.tasks {
		snap.Tasks = append(snap.Tasks, d)
	}
	for _, entry := range s.entities {
		snap.Entities = append(snap.Entities, copyProjection(entry))
	}
	return snap
}

// notifyLocked builds a snapshot under the lock, releases it, and hands the
// snapshot to the change hook. Must be called with the lock held; the lock
// is released on return.
func (s *Store) notifyLocked() {
	hook := s.onChange
	var snap Snapshot
	if hook != nil {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
}

func copyProjection(entry ProjectionEntry) ProjectionEntry {
	byType := make(map[Type]Status, len(entry.StatusByType))
	for t, status := range entry.StatusByType {
		byType[t] = status
	}
	return ProjectionEntry{
		EntityID:     entry.EntityID,
		StatusByType: byType,
		LastUpdate:   entry.LastUpdate,
	}
}
