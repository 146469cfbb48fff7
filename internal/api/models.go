package api

import (
	"time"

	"github.com/avelines/taskwatch/internal/domain"
	"github.com/avelines/taskwatch/internal/task"
)

// LaunchRequest is the body of POST /api/tasks.
type LaunchRequest struct {
	EntityID string         `json:"entity_id" validate:"required"`
	TaskType string         `json:"task_type" validate:"required"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// TaskResponse is the wire shape of one descriptor.
type TaskResponse struct {
	EntityID   string    `json:"entity_id"`
	TaskType   string    `json:"task_type"`
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
	Attempts   int       `json:"attempts"`
}

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// EntityStatusResponse is the body of GET /api/entities/{id}/status.
// Absent statuses serialize as null.
type EntityStatusResponse struct {
	EntityID       string       `json:"entity_id"`
	IndexingStatus *task.Status `json:"indexing_status"`
	QAStatus       *task.Status `json:"qa_status"`
}

// ApplyStatusesRequest is the body of POST /api/entities/statuses: batches
// of freshly fetched records whose embedded statuses may be stale.
type ApplyStatusesRequest struct {
	Sources     []domain.Source     `json:"sources,omitempty"`
	Collections []domain.Collection `json:"collections,omitempty"`
}

// ApplyStatusesResponse returns the same batches with tracked statuses
// overlaid.
type ApplyStatusesResponse struct {
	Sources     []domain.Source     `json:"sources,omitempty"`
	Collections []domain.Collection `json:"collections,omitempty"`
}

func toTaskResponse(d task.Descriptor) TaskResponse {
	return TaskResponse{
		EntityID:   d.EntityID,
		TaskType:   string(d.Type),
		TaskID:     d.TaskID,
		Status:     string(d.Status),
		StartTime:  d.StartTime,
		LastUpdate: d.LastUpdate,
		Attempts:   d.Attempts,
	}
}
