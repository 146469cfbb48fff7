package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the tracked state of a remote job.
type Status string

// Possible status values. Completed, failed, timeout and unknown are
// terminal: once a descriptor reaches one of them no further transition
// occurs.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusUnknown   Status = "unknown"
)

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusUnknown:
		return true
	}
	return false
}

// ParseRemoteStatus maps a status string returned by the job-status endpoint
// onto a tracked Status. Anything outside the known vocabulary maps to
// StatusUnknown so a malformed server response cannot keep a poller looping
// forever.
func ParseRemoteStatus(raw string) Status {
	switch Status(raw) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return Status(raw)
	}
	return StatusUnknown
}

// Type identifies the kind of job being tracked. The set is open; these are
// the types the remote content service currently exposes.
type Type string

const (
	TypeIndexing        Type = "indexing"
	TypeQualityAnalysis Type = "quality-analysis"
	TypeInitialization  Type = "initialization"
)

// Key identifies one tracked job by the entity it acts on and the task type.
// Value equality on the struct replaces the separator-joined string keys the
// tracker previously relied on, so identifiers containing separators cannot
// collide.
type Key struct {
	EntityID string `json:"entityId"`
	Type     Type   `json:"taskType"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.EntityID, k.Type)
}

// PollConfig is the per-task polling budget.
type PollConfig struct {
	// MaxAttempts bounds how many status queries are issued before the
	// tracker gives up and marks the job timed out.
	MaxAttempts int

	// Interval is the delay between consecutive status queries.
	Interval time.Duration

	// TimeoutMessage is delivered through the error callback when the
	// attempt budget is exhausted.
	TimeoutMessage string
}

// DefaultPollConfig returns the budget applied when a caller does not
// provide one.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts:    120,
		Interval:       5 * time.Second,
		TimeoutMessage: "task did not finish in the allotted time",
	}
}

// pollConfigJSON is the persisted shape of PollConfig. The interval is
// stored in milliseconds to keep the snapshot format language-neutral.
type pollConfigJSON struct {
	MaxAttempts    int    `json:"maxAttempts"`
	IntervalMs     int64  `json:"intervalMs"`
	TimeoutMessage string `json:"timeoutMessage"`
}

func (c PollConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(pollConfigJSON{
		MaxAttempts:    c.MaxAttempts,
		IntervalMs:     c.Interval.Milliseconds(),
		TimeoutMessage: c.TimeoutMessage,
	})
}

func (c *PollConfig) UnmarshalJSON(data []byte) error {
	var raw pollConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.MaxAttempts = raw.MaxAttempts
	c.Interval = time.Duration(raw.IntervalMs) * time.Millisecond
	c.TimeoutMessage = raw.TimeoutMessage
	return nil
}

// Descriptor is the client-side record of one in-flight job. Descriptors are
// created by the Launcher, mutated by the Poller, and removed on terminal
// transition or explicit cancellation.
type Descriptor struct {
	EntityID   string     `json:"entityId"`
	Type       Type       `json:"taskType"`
	TaskID     string     `json:"taskId"`
	Status     Status     `json:"status"`
	StartTime  time.Time  `json:"startTime"`
	LastUpdate time.Time  `json:"lastUpdate"`
	Attempts   int        `json:"attempts"`
	Config     PollConfig `json:"config"`
}

// Key returns the composite identity of the descriptor.
func (d Descriptor) Key() Key {
	return Key{EntityID: d.EntityID, Type: d.Type}
}

// ProjectionEntry carries the last known status per task type for one domain
// entity. Entries outlive their originating descriptor: a job that completed
// and was dropped from the store still shows its terminal status here.
type ProjectionEntry struct {
	EntityID     string          `json:"entityId"`
	StatusByType map[Type]Status `json:"statusByTaskType"`
	LastUpdate   time.Time       `json:"lastUpdate"`
}

// Snapshot is the serialization unit persisted after every store mutation.
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Tasks     []Descriptor      `json:"tasks"`
	Entities  []ProjectionEntry `json:"entityStatuses"`
}

// LaunchResult is the decoded response of the job-launch endpoint.
type LaunchResult struct {
	Status  string `json:"status"`
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RemoteStatus is the decoded response of the job-status endpoint.
type RemoteStatus struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// LaunchSource submits a new job to the remote service.
// Implemented by the HTTP client in internal/client.
type LaunchSource interface {
	LaunchTask(ctx context.Context, t Type, entityID string, payload map[string]any) (LaunchResult, error)
}

// StatusSource queries the remote status endpoint for a previously launched
// job.
type StatusSource interface {
	TaskStatus(ctx context.Context, taskID string) (RemoteStatus, error)
}

// StatusCarrier is implemented by domain records that expose projected task
// statuses to the presentation layer.
type StatusCarrier interface {
	// EntityID returns the identifier the projection is keyed by.
	EntityID() string

	// StatusTimestamp returns when the record's embedded statuses were
	// produced, so fresher store projections can override them.
	StatusTimestamp() time.Time

	// SetTaskStatus overrides the record's displayed status for one task
	// type.
	SetTaskStatus(t Type, s Status)
}
