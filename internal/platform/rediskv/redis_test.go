package rediskv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelines/taskwatch/internal/store/kv"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Get(ctx, "snapshot")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Set(ctx, "snapshot", []byte(`{"timestamp":"now"}`)))
	got, err := s.Get(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"timestamp":"now"}`), got)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Set(ctx, "snapshot", []byte("x")))
	require.NoError(t, s.Delete(ctx, "snapshot"))

	_, err := s.Get(ctx, "snapshot")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "snapshot"))
}

func TestStore_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	s := New(Config{Addr: mr.Addr()})
	defer func() {
		require.NoError(t, s.Close())
	}()

	assert.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
