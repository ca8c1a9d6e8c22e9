package models

import (
	"encoding/json"
	"testing"

	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("valid page", func(t *testing.T) {
		page := Page[Playlist]{
			Items:    []Playlist{{ID: "p1", Name: "Chill", TrackCount: 3}},
			Total:    1,
			Page:     1,
			PageSize: 20,
		}
		assert.NoError(t, Validate(&page))
	})

	t.Run("page item missing id", func(t *testing.T) {
		page := Page[Track]{Items: []Track{{Name: "No ID"}}, Total: 1, Page: 1, PageSize: 20}
		assert.ErrorIs(t, Validate(&page), shared.ErrInvalidResponse)
	})

	t.Run("zero page number", func(t *testing.T) {
		page := Page[Album]{Page: 0, PageSize: 20}
		assert.ErrorIs(t, Validate(&page), shared.ErrInvalidResponse)
	})

	t.Run("feature out of range", func(t *testing.T) {
		a := PlaylistAnalysis{PlaylistID: "p1", Features: []AudioFeatures{{TrackID: "t1", Energy: 1.5}}}
		assert.ErrorIs(t, Validate(&a), shared.ErrInvalidResponse)
	})

	t.Run("receipt requires task id", func(t *testing.T) {
		assert.Error(t, Validate(&TaskReceipt{Status: StatusPending}))
		assert.NoError(t, Validate(&TaskReceipt{TaskID: "t-1"}))
	})
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("analyze")
	require.NoError(t, err)
	assert.Equal(t, OperationAnalyze, op)
	assert.Equal(t, TaskTypeAnalyzePlaylist, op.TaskType())

	_, err = ParseOperation("delete")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestParseMessage(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		raw := `{"type":"task","notification":{"id":"n1","task_id":"t1","task_name":"analyze","task_status":"SUCCESS","extras":{"task_type":"analyze_playlist","playlist_id":"P1"}}}`
		msg, err := ParseMessage([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "n1", msg.Notification.ID)
		assert.Equal(t, TaskTypeAnalyzePlaylist, msg.Notification.Extras.TaskType())
		assert.Equal(t, "P1", msg.Notification.Extras.PlaylistID())
	})

	t.Run("numeric playlist id", func(t *testing.T) {
		raw := `{"type":"task","notification":{"id":"n1","task_id":"t1","task_status":"PENDING","extras":{"playlist_id":42}}}`
		msg, err := ParseMessage([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "42", msg.Notification.Extras.PlaylistID())
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseMessage([]byte("not json"))
		assert.ErrorIs(t, err, shared.ErrMalformedNotice)
	})

	t.Run("missing notification", func(t *testing.T) {
		_, err := ParseMessage([]byte(`{"type":"task"}`))
		assert.ErrorIs(t, err, shared.ErrMalformedNotice)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := ParseMessage([]byte(`{"type":"task","notification":{"task_id":"t1","task_status":"SUCCESS"}}`))
		assert.ErrorIs(t, err, shared.ErrMalformedNotice)
	})

	t.Run("extras absent", func(t *testing.T) {
		msg, err := ParseMessage([]byte(`{"type":"task","notification":{"id":"n","task_id":"t","task_status":"STARTED"}}`))
		require.NoError(t, err)
		assert.Empty(t, msg.Notification.Extras.TaskType())
	})
}

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range []string{StatusSuccess, StatusFailure, StatusRevoked} {
		assert.True(t, IsTerminalStatus(s), s)
	}
	for _, s := range []string{StatusPending, StatusStarted, StatusRetry, ""} {
		assert.False(t, IsTerminalStatus(s), s)
	}
}

func TestPlaylistDetailJSON(t *testing.T) {
	raw := `{"id":"p1","name":"Mix","track_count":1,"tracks":[{"id":"t1","name":"Song","artist":"A","duration_ms":1000}]}`
	var d PlaylistDetail
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.NoError(t, Validate(&d))
	assert.Equal(t, "p1", d.ID)
	assert.Len(t, d.Tracks, 1)
}
