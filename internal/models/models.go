package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct validation on v and wraps failures in [shared.ErrInvalidResponse].
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidResponse, err)
	}
	return nil
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items    []T `json:"items" validate:"dive"`
	Total    int `json:"total" validate:"gte=0"`
	Page     int `json:"page" validate:"gte=1"`
	PageSize int `json:"page_size" validate:"gte=1"`
}

// Playlist is a synced playlist as listed by the backend.
type Playlist struct {
	ID           string     `json:"id" validate:"required"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Public       bool       `json:"public"`
	Owned        bool       `json:"owned"`
	TrackCount   int        `json:"track_count" validate:"gte=0"`
	ImageURL     string     `json:"image_url,omitempty"`
	Analyzed     bool       `json:"analyzed"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// PlaylistDetail is a playlist together with its tracks.
type PlaylistDetail struct {
	Playlist
	Tracks []Track `json:"tracks" validate:"dive"`
}

// Track is a single song in the library.
type Track struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMS int    `json:"duration_ms" validate:"gte=0"`
	Popularity int    `json:"popularity" validate:"gte=0,lte=100"`
	Explicit   bool   `json:"explicit"`
	ISRC       string `json:"isrc,omitempty"`
}

// Album is an album in the library.
type Album struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name"`
	Artist      string   `json:"artist"`
	ReleaseDate string   `json:"release_date,omitempty"`
	TotalTracks int      `json:"total_tracks" validate:"gte=0"`
	Genres      []string `json:"genres,omitempty"`
}

// Artist is an artist in the library.
type Artist struct {
	ID         string   `json:"id" validate:"required"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres,omitempty"`
	Popularity int      `json:"popularity" validate:"gte=0,lte=100"`
	Followers  int      `json:"followers" validate:"gte=0"`
}

// AudioFeatures holds the computed audio characteristics of one track.
type AudioFeatures struct {
	TrackID          string  `json:"track_id" validate:"required"`
	Danceability     float64 `json:"danceability" validate:"gte=0,lte=1"`
	Energy           float64 `json:"energy" validate:"gte=0,lte=1"`
	Valence          float64 `json:"valence" validate:"gte=0,lte=1"`
	Acousticness     float64 `json:"acousticness" validate:"gte=0,lte=1"`
	Instrumentalness float64 `json:"instrumentalness" validate:"gte=0,lte=1"`
	Liveness         float64 `json:"liveness" validate:"gte=0,lte=1"`
	Speechiness      float64 `json:"speechiness" validate:"gte=0,lte=1"`
	Tempo            float64 `json:"tempo" validate:"gte=0"`
	Loudness         float64 `json:"loudness"`
	Key              int     `json:"key" validate:"gte=-1,lte=11"`
	Mode             int     `json:"mode" validate:"gte=0,lte=1"`
	DurationMS       int     `json:"duration_ms" validate:"gte=0"`
}

// PlaylistAnalysis is the analysis endpoint response for one playlist.
type PlaylistAnalysis struct {
	PlaylistID string          `json:"playlist_id" validate:"required"`
	AnalyzedAt *time.Time      `json:"analyzed_at,omitempty"`
	Features   []AudioFeatures `json:"features" validate:"dive"`
}

// Operation is a task trigger accepted by PATCH /api/playlists/{id}.
type Operation string

const (
	OperationSync    Operation = "sync"
	OperationAnalyze Operation = "analyze"
)

// ParseOperation validates a user supplied operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OperationSync, OperationAnalyze:
		return op, nil
	default:
		return "", fmt.Errorf("%w: operation must be sync or analyze, got %q", shared.ErrInvalidArgument, s)
	}
}

// TaskType returns the task type the backend reports for this operation.
func (o Operation) TaskType() string {
	switch o {
	case OperationAnalyze:
		return TaskTypeAnalyzePlaylist
	case OperationSync:
		return TaskTypeSyncPlaylist
	}
	return ""
}

// TaskReceipt acknowledges a triggered task.
type TaskReceipt struct {
	TaskID     string `json:"task_id" validate:"required"`
	TaskName   string `json:"task_name,omitempty"`
	Status     string `json:"status,omitempty"`
	PlaylistID string `json:"playlist_id,omitempty"`
}

// User is the account behind a valid token.
type User struct {
	ID          string `json:"id" validate:"required"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
}
