package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelines/taskwatch/internal/store/kv"
)

// failingBackend always errors, to prove persistence failures never reach
// the in-memory operation they shadow.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("backend down")
}
func (failingBackend) Set(context.Context, string, []byte) error {
	return errors.New("backend down")
}
func (failingBackend) Delete(context.Context, string) error {
	return errors.New("backend down")
}
func (failingBackend) Close() error { return nil }

func TestSynchronizer_RoundTrip(t *testing.T) {
	t.Parallel()

	backend := kv.NewMemory()
	s := NewStore(testLogger())
	sync := NewSynchronizer(s, backend, testLogger())
	sync.Attach()

	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	require.NoError(t, s.UpdateStatus(Key{EntityID: "42", Type: TypeIndexing}, StatusRunning))

	snap := sync.Load(context.Background())
	require.NotNil(t, snap)
	require.Len(t, snap.Tasks, 1)

	got := snap.Tasks[0]
	want, _ := s.Get(Key{EntityID: "42", Type: TypeIndexing})
	assert.Equal(t, want.TaskID, got.TaskID)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Config, got.Config)
	require.Len(t, snap.Entities, 1)
	assert.Equal(t, StatusRunning, snap.Entities[0].StatusByType[TypeIndexing])
}

func TestSynchronizer_RestoreRepopulatesStore(t *testing.T) {
	t.Parallel()

	backend := kv.NewMemory()
	original := NewStore(testLogger())
	sync := NewSynchronizer(original, backend, testLogger())
	sync.Attach()
	require.NoError(t, original.Register(testDescriptor("42", TypeIndexing)))

	// A fresh process: new store, same backend.
	restored := NewStore(testLogger())
	restoredSync := NewSynchronizer(restored, backend, testLogger())
	require.Equal(t, 1, restoredSync.Restore(context.Background()))
	assert.True(t, restored.Has(Key{EntityID: "42", Type: TypeIndexing}))
}

func TestSynchronizer_ExpiredSnapshotDiscarded(t *testing.T) {
	t.Parallel()

	backend := kv.NewMemory()
	s := NewStore(testLogger())
	sync := NewSynchronizer(s, backend, testLogger(), WithSnapshotTTL(30*time.Minute))
	sync.Attach()
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))

	// Jump the synchronizer's clock past the TTL.
	sync.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	assert.Nil(t, sync.Load(context.Background()))

	// The backend was cleared, so the snapshot is gone even for a reader
	// with a sane clock.
	_, err := backend.Get(context.Background(), DefaultSnapshotKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSynchronizer_GarbagePayloadDiscarded(t *testing.T) {
	t.Parallel()

	backend := kv.NewMemory()
	require.NoError(t, backend.Set(context.Background(), DefaultSnapshotKey, []byte("{not json")))

	sync := NewSynchronizer(NewStore(testLogger()), backend, testLogger())
	assert.Nil(t, sync.Load(context.Background()))

	_, err := backend.Get(context.Background(), DefaultSnapshotKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSynchronizer_MissingTimestampDiscarded(t *testing.T) {
	t.Parallel()

	backend := kv.NewMemory()
	require.NoError(t, backend.Set(context.Background(), DefaultSnapshotKey, []byte(`{"tasks":[]}`)))

	sync := NewSynchronizer(NewStore(testLogger()), backend, testLogger())
	assert.Nil(t, sync.Load(context.Background()))
}

func TestSynchronizer_EmptyBackendLoadsNil(t *testing.T) {
	t.Parallel()

	sync := NewSynchronizer(NewStore(testLogger()), kv.NewMemory(), testLogger())
	assert.Nil(t, sync.Load(context.Background()))
	assert.Equal(t, 0, sync.Restore(context.Background()))
}

func TestSynchronizer_PersistenceFailuresSwallowed(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	sync := NewSynchronizer(s, failingBackend{}, testLogger())
	sync.Attach()

	// The mutation itself must succeed even though every save fails.
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))
	assert.True(t, s.Has(Key{EntityID: "42", Type: TypeIndexing}))

	// Load against the broken backend resolves to empty, not an error.
	assert.Nil(t, sync.Load(context.Background()))
}

func TestSynchronizer_StaleSnapshotNotPersisted(t *testing.T) {
	t.Parallel()

	backend := kv.NewMemory()
	s := NewStore(testLogger())
	sync := NewSynchronizer(s, backend, testLogger())

	base := time.Now()
	newer := Snapshot{
		Timestamp: base,
		Tasks:     []Descriptor{testDescriptor("42", TypeIndexing)},
	}
	older := Snapshot{Timestamp: base.Add(-time.Second)}

	// Two change hooks racing can deliver in either order; the write for
	// the older snapshot must not clobber the newer one.
	sync.persist(newer)
	sync.persist(older)

	data, err := backend.Get(context.Background(), DefaultSnapshotKey)
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Tasks, 1)
	assert.True(t, got.Timestamp.Equal(newer.Timestamp))
}

func TestSynchronizer_CustomKey(t *testing.T) {
	t.Parallel()

	backend := kv.NewMemory()
	s := NewStore(testLogger())
	sync := NewSynchronizer(s, backend, testLogger(), WithSnapshotKey("custom:v2"))
	sync.Attach()
	require.NoError(t, s.Register(testDescriptor("42", TypeIndexing)))

	_, err := backend.Get(context.Background(), "custom:v2")
	assert.NoError(t, err)
	_, err = backend.Get(context.Background(), DefaultSnapshotKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}
