package task

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testDescriptor(entityID string, t Type) Descriptor {
	return Descriptor{
		EntityID:  entityID,
		Type:      t,
		TaskID:    "task-" + entityID,
		Status:    StatusPending,
		StartTime: time.Now(),
		Config: PollConfig{
			MaxAttempts:    5,
			Interval:       10 * time.Millisecond,
			TimeoutMessage: "took too long",
		},
	}
}

func TestStore_Register_Uniqueness(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())

	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))

	err := s.Register(testDescriptor("42", TypeIndexing))
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// Same entity, different type is a different key.
	assert.NoError(t, s.Register(testDescriptor("42", TypeQualityAnalysis)))

	// Same type, different entity as well.
	assert.NoError(t, s.Register(testDescriptor("43", TypeIndexing)))

	assert.Len(t, s.Active(), 3)
}

func TestStore_ReserveRelease(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	key := Key{EntityID: "42", Type: TypeIndexing}

	require.NoError(t, s.Reserve(key))

	// A reserved key rejects further reservations until released or
	// registered.
	assert.ErrorIs(t, s.Reserve(key), ErrAlreadyRunning)

	s.Release(key)
	require.NoError(t, s.Reserve(key))

	// Registering consumes the reservation; the key stays taken through
	// the active descriptor.
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	assert.ErrorIs(t, s.Reserve(key), ErrAlreadyRunning)

	// An active descriptor blocks reservation even after a stray Release.
	s.Release(key)
	assert.ErrorIs(t, s.Reserve(key), ErrAlreadyRunning)
}

func TestStore_Register_SeedsProjection(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))

	status, ok := s.EntityStatus("42", TypeIndexing)
	require.True(t, ok)
	assert.Equal(t, StatusPending, status)
}

func TestStore_UpdateStatus(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	key := Key{EntityID: "42", Type: TypeIndexing}

	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	require.NoError(t, s.UpdateStatus(key, StatusRunning))

	d, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, d.Status)

	status, ok := s.EntityStatus("42", TypeIndexing)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, status)

	// Updating a key with no descriptor is rejected.
	err := s.UpdateStatus(Key{EntityID: "absent", Type: TypeIndexing}, StatusRunning)
	assert.ErrorIs(t, err, ErrNoActiveTask)
}

func TestStore_Finish_ProjectionOutlivesDescriptor(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	key := Key{EntityID: "42", Type: TypeIndexing}

	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	require.True(t, s.Finish(key, StatusCompleted))

	assert.False(t, s.Has(key))
	assert.Empty(t, s.Active())

	// The terminal status stays visible on the entity.
	status, ok := s.EntityStatus("42", TypeIndexing)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, status)
}

func TestStore_Finish_Idempotent(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	key := Key{EntityID: "42", Type: TypeIndexing}

	var changes int
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	s.SetOnChange(func(Snapshot) { changes++ })

	require.True(t, s.Finish(key, StatusFailed))
	applied := changes

	// A second terminal application for the same key is a no-op: no
	// error, no extra projection write, no persistence trigger.
	assert.False(t, s.Finish(key, StatusCompleted))
	assert.Equal(t, applied, changes)

	status, _ := s.EntityStatus("42", TypeIndexing)
	assert.Equal(t, StatusFailed, status)
}

func TestStore_Remove_KeepsProjection(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	key := Key{EntityID: "42", Type: TypeIndexing}

	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	require.NoError(t, s.UpdateStatus(key, StatusRunning))
	require.True(t, s.Remove(key))
	assert.False(t, s.Remove(key))

	// Cancellation leaves the last applied status visible.
	status, ok := s.EntityStatus("42", TypeIndexing)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, status)
}

func TestStore_SnapshotRestore(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	require.NoError(t, s.Register(testDescriptor("43", TypeQualityAnalysis)))
	require.True(t, s.Finish(Key{EntityID: "43", Type: TypeQualityAnalysis}, StatusCompleted))

	snap := s.Snapshot()
	require.Len(t, snap.Tasks, 1)
	require.Len(t, snap.Entities, 2)
	assert.False(t, snap.Timestamp.IsZero())

	restored := NewStore(testLogger())
	restored.Restore(snap)

	assert.True(t, restored.Has(Key{EntityID: "42", Type: TypeIndexing}))
	status, ok := restored.EntityStatus("43", TypeQualityAnalysis)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, status)
}

func TestStore_ChangeHookFiresAfterMutations(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	var snapshots []Snapshot
	s.SetOnChange(func(snap Snapshot) { snapshots = append(snapshots, snap) })

	key := Key{EntityID: "42", Type: TypeIndexing}
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	require.NoError(t, s.UpdateStatus(key, StatusRunning))
	require.True(t, s.Finish(key, StatusCompleted))

	require.Len(t, snapshots, 3)
	assert.Len(t, snapshots[0].Tasks, 1)
	assert.Len(t, snapshots[2].Tasks, 0)
	assert.Len(t, snapshots[2].Entities, 1)
}

type fakeEntity struct {
	id        string
	fetchedAt time.Time
	statuses  map[Type]Status
}

func (f *fakeEntity) EntityID() string { return f.id }

func (f *fakeEntity) StatusTimestamp() time.Time { return f.fetchedAt }
func (f *fakeEntity) SetTaskStatus(t Type, s Status) {
	if f.statuses == nil {
		f.statuses = make(map[Type]Status)
	}
	f.statuses[t] = s
}

func TestStore_ApplyStatuses(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	require.NoError(t, s.UpdateStatus(Key{EntityID: "42", Type: TypeIndexing}, StatusRunning))

	stale := &fakeEntity{id: "42", fetchedAt: time.Now().Add(-time.Minute)}
	fresh := &fakeEntity{id: "42", fetchedAt: time.Now().Add(time.Minute)}
	unknown := &fakeEntity{id: "99", fetchedAt: time.Now().Add(-time.Minute)}

	s.ApplyStatuses([]StatusCarrier{stale, fresh, unknown})

	// Overridden: the store projection is newer than the fetched record.
	assert.Equal(t, StatusRunning, stale.statuses[TypeIndexing])

	// Not overridden: the record is fresher than the projection.
	assert.Empty(t, fresh.statuses)

	// Not overridden: no projection exists for the entity.
	assert.Empty(t, unknown.statuses)
}
