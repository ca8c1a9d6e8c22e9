package models

import "time"

// TaskOutcome is the result of one task started on behalf of a playlist.
type TaskOutcome struct {
	PlaylistID string `json:"playlist_id"`
	TaskID     string `json:"task_id,omitempty"`
	Status     string `json:"status,omitempty"` // last status seen, empty when not waited on
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// BulkResult summarizes a batch of sync or analyze tasks.
type BulkResult struct {
	Operation  Operation     `json:"operation"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Results    []TaskOutcome `json:"results"`
}

// Add records an outcome and updates the counters.
func (r *BulkResult) Add(o TaskOutcome) {
	if o.Err != nil && o.Error == "" {
		o.Error = o.Err.Error()
	}
	r.Results = append(r.Results, o)
	if o.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}
