package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskEvent describes one terminal task transition. Status strings mirror
// the tracker's vocabulary; Message carries the server error or timeout
// message for failed outcomes and is empty on success.
type TaskEvent struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	// EntityID and TaskType identify the tracked job.
	EntityID string `json:"entity_id"`
	TaskType string `json:"task_type"`

	// TaskID is the remote job identifier.
	TaskID string `json:"task_id"`

	// Status is the terminal status the job reached.
	Status string `json:"status"`

	// Message is the human-readable error or timeout message, if any.
	Message string `json:"message,omitempty"`

	// OccurredAt is when the transition was observed.
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent creates a TaskEvent with a fresh identifier and timestamp.
func NewTaskEvent(entityID, taskType, taskID, status, message string) *TaskEvent {
	return &TaskEvent{
		ID:         uuid.New(),
		EntityID:   entityID,
		TaskType:   taskType,
		TaskID:     taskID,
		Status:     status,
		Message:    message,
		OccurredAt: time.Now(),
	}
}

// EventHandler defines an interface for components that consume task events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a plain function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// Emitter defines an interface for components that publish task events.
// This allows the tracker to announce terminal transitions without direct
// knowledge of handlers.
type Emitter interface {
	// Emit publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	Emit(ctx context.Context, event *TaskEvent) error
}
