package domain

import (
	"time"

	"github.com/avelines/taskwatch/internal/task"
)

// Source is a content source inside a collection (a crawled site, a file, a
// notion page). IndexingStatus and QAStatus are the projected task statuses;
// nil means no job of that type has been observed for the record.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`

	IndexingStatus  *task.Status `json:"indexing_status"`
	QAStatus        *task.Status `json:"qa_status"`
	StatusUpdatedAt time.Time    `json:"status_updated_at,omitempty"`
}

// EntityID implements task.StatusCarrier.
func (s *Source) EntityID() string { return s.ID }

// StatusTimestamp implements task.StatusCarrier.
func (s *Source) StatusTimestamp() time.Time { return s.StatusUpdatedAt }

// SetTaskStatus implements task.StatusCarrier.
func (s *Source) SetTaskStatus(t task.Type, status task.Status) {
	setStatusField(t, status, &s.IndexingStatus, &s.QAStatus)
}

// Collection groups sources and questions. Initialization is tracked under
// the indexing slot alongside regular indexing runs, matching how the
// service reports it.
type Collection struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	IndexingStatus  *task.Status `json:"indexing_status"`
	QAStatus        *task.Status `json:"qa_status"`
	StatusUpdatedAt time.Time    `json:"status_updated_at,omitempty"`
}

// EntityID implements task.StatusCarrier.
func (c *Collection) EntityID() string { return c.ID }

// StatusTimestamp implements task.StatusCarrier.
func (c *Collection) StatusTimestamp() time.Time { return c.StatusUpdatedAt }

// SetTaskStatus implements task.StatusCarrier.
func (c *Collection) SetTaskStatus(t task.Type, status task.Status) {
	setStatusField(t, status, &c.IndexingStatus, &c.QAStatus)
}

func setStatusField(t task.Type, status task.Status, indexing, qa **task.Status) {
	switch t {
	case task.TypeIndexing, task.TypeInitialization:
		*indexing = &status
	case task.TypeQualityAnalysis:
		*qa = &status
	}
}
