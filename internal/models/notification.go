package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/tunedeck/internal/shared"
)

// Task types reported in [NotificationExtras].
const (
	TaskTypeSyncPlaylist    = "sync_playlist"
	TaskTypeAnalyzePlaylist = "analyze_playlist"
)

// Task statuses reported by the backend task queue.
const (
	StatusPending = "PENDING"
	StatusStarted = "STARTED"
	StatusRetry   = "RETRY"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
	StatusRevoked = "REVOKED"
)

// IsTerminalStatus reports whether a task in status will not change again.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	}
	return false
}

// Message is the envelope of every frame on the notification websocket.
type Message struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification" validate:"required"`
}

// Notification describes one lifecycle event of a backend task.
type Notification struct {
	ID         string             `json:"id" validate:"required"`
	TaskID     string             `json:"task_id" validate:"required"`
	TaskName   string             `json:"task_name"`
	TaskStatus string             `json:"task_status" validate:"required"`
	Extras     NotificationExtras `json:"extras,omitempty"`
}

// NotificationExtras is the free-form extras object. Known keys have accessors.
type NotificationExtras map[string]any

// TaskType returns extras.task_type or "".
func (e NotificationExtras) TaskType() string {
	return e.str("task_type")
}

// PlaylistID returns extras.playlist_id or "". Numeric ids are formatted as integers.
func (e NotificationExtras) PlaylistID() string {
	return e.str("playlist_id")
}

func (e NotificationExtras) str(key string) string {
	switch v := e[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// ParseMessage decodes and validates one websocket frame.
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedNotice, err)
	}

	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedNotice, err)
	}
	return &msg, nil
}

// NotificationRecord is a notification persisted to the local log.
type NotificationRecord struct {
	ID             string          `json:"id"`
	NotificationID string          `json:"notification_id"`
	TaskID         string          `json:"task_id"`
	TaskName       string          `json:"task_name"`
	TaskStatus     string          `json:"task_status"`
	TaskType       string          `json:"task_type,omitempty"`
	PlaylistID     string          `json:"playlist_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	ReceivedAt     time.Time       `json:"received_at"`
}
