package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewTaskEvent(t *testing.T) {
	t.Parallel()

	e := NewTaskEvent("42", "indexing", "task-1", "failed", "OOM")

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, "42", e.EntityID)
	assert.Equal(t, "indexing", e.TaskType)
	assert.Equal(t, "task-1", e.TaskID)
	assert.Equal(t, "failed", e.Status)
	assert.Equal(t, "OOM", e.Message)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestInMemoryEmitter_FanOut(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEmitter(testLogger())

	var first, second []*TaskEvent
	emitter.RegisterHandler(HandlerFunc(func(_ context.Context, e *TaskEvent) error {
		first = append(first, e)
		return nil
	}))
	emitter.RegisterHandler(HandlerFunc(func(_ context.Context, e *TaskEvent) error {
		second = append(second, e)
		return nil
	}))

	event := NewTaskEvent("42", "indexing", "task-1", "completed", "")
	require.NoError(t, emitter.Emit(context.Background(), event))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Same(t, event, first[0])
}

func TestInMemoryEmitter_NoHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEmitter(testLogger())
	assert.NoError(t, emitter.Emit(context.Background(),
		NewTaskEvent("42", "indexing", "task-1", "completed", "")))
}

func TestInMemoryEmitter_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEmitter(testLogger())

	errFirst := errors.New("first handler broken")
	emitter.RegisterHandler(HandlerFunc(func(context.Context, *TaskEvent) error {
		return errFirst
	}))

	delivered := false
	emitter.RegisterHandler(HandlerFunc(func(context.Context, *TaskEvent) error {
		delivered = true
		return errors.New("second handler broken")
	}))

	err := emitter.Emit(context.Background(),
		NewTaskEvent("42", "indexing", "task-1", "failed", "OOM"))

	// All handlers ran; the first error is the one reported.
	assert.True(t, delivered)
	assert.ErrorIs(t, err, errFirst)
}
