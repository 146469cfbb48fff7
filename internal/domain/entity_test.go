package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelines/taskwatch/internal/task"
)

func TestSource_SetTaskStatus(t *testing.T) {
	t.Parallel()

	s := &Source{ID: "src-1", Title: "Docs"}

	s.SetTaskStatus(task.TypeIndexing, task.StatusRunning)
	require.NotNil(t, s.IndexingStatus)
	assert.Equal(t, task.StatusRunning, *s.IndexingStatus)
	assert.Nil(t, s.QAStatus)

	s.SetTaskStatus(task.TypeQualityAnalysis, task.StatusCompleted)
	require.NotNil(t, s.QAStatus)
	assert.Equal(t, task.StatusCompleted, *s.QAStatus)
}

func TestCollection_InitializationMapsToIndexingSlot(t *testing.T) {
	t.Parallel()

	c := &Collection{ID: "col-1"}
	c.SetTaskStatus(task.TypeInitialization, task.StatusPending)

	require.NotNil(t, c.IndexingStatus)
	assert.Equal(t, task.StatusPending, *c.IndexingStatus)
}

func TestSource_JSONNullStatuses(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(&Source{ID: "src-1", Title: "Docs"})
	require.NoError(t, err)

	// Untracked statuses serialize as null, matching the projected
	// contract of the presentation layer.
	assert.Contains(t, string(data), `"indexing_status":null`)
	assert.Contains(t, string(data), `"qa_status":null`)
}

func TestSource_ImplementsStatusCarrier(t *testing.T) {
	t.Parallel()

	fetched := time.Now().Add(-time.Minute)
	var carrier task.StatusCarrier = &Source{ID: "src-1", StatusUpdatedAt: fetched}

	assert.Equal(t, "src-1", carrier.EntityID())
	assert.Equal(t, fetched, carrier.StatusTimestamp())
}
