package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
	tu "github.com/desertthunder/tunedeck/internal/testing"
)

func TestBulk(t *testing.T) {
	ctx := context.Background()
	fast := BulkOpts{NumWorkers: 2, RateLimit: 1000}

	tests := []struct {
		name          string
		ids           []string
		fail          map[string]error
		wantSucceeded int
		wantFailed    int
	}{
		{
			name:          "single playlist",
			ids:           []string{"P1"},
			wantSucceeded: 1,
		},
		{
			name:          "multiple playlists",
			ids:           []string{"P1", "P2", "P3", "P4"},
			wantSucceeded: 4,
		},
		{
			name:          "partial failure",
			ids:           []string{"P1", "P2", "P3"},
			fail:          map[string]error{"P2": shared.ErrPlaylistNotFound},
			wantSucceeded: 2,
			wantFailed:    1,
		},
		{
			name:       "all fail",
			ids:        []string{"P1", "P2"},
			fail:       map[string]error{"P1": shared.ErrAPIRequest, "P2": shared.ErrAPIRequest},
			wantFailed: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := &fakeTrigger{fail: tt.fail}
			engine := NewEngine(trigger, nil, nil)

			result, err := engine.Bulk(ctx, nil, tt.ids, models.OperationSync, fast)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Total != len(tt.ids) {
				t.Errorf("expected total %d, got %d", len(tt.ids), result.Total)
			}
			if result.Succeeded != tt.wantSucceeded || result.Failed != tt.wantFailed {
				t.Errorf("expected %d/%d succeeded/failed, got %d/%d",
					tt.wantSucceeded, tt.wantFailed, result.Succeeded, result.Failed)
			}
			if len(result.Results) != len(tt.ids) {
				t.Fatalf("expected %d results, got %d", len(tt.ids), len(result.Results))
			}

			var seen []string
			for _, r := range result.Results {
				seen = append(seen, r.PlaylistID)
				if _, failed := tt.fail[r.PlaylistID]; failed {
					if r.Success || r.Error == "" {
						t.Errorf("expected %s to fail with a message, got %+v", r.PlaylistID, r)
					}
				} else if !r.Success || r.TaskID == "" {
					t.Errorf("expected %s to succeed with a task id, got %+v", r.PlaylistID, r)
				}
			}
			sort.Strings(seen)
			want := append([]string(nil), tt.ids...)
			sort.Strings(want)
			for i := range want {
				if seen[i] != want[i] {
					t.Errorf("results do not cover every id: got %v, want %v", seen, want)
					break
				}
			}
			if result.FinishedAt.Before(result.StartedAt) {
				t.Error("finish time before start time")
			}
		})
	}
}

func TestBulk_Errors(t *testing.T) {
	t.Run("no ids", func(t *testing.T) {
		engine := NewEngine(&fakeTrigger{}, nil, nil)
		_, err := engine.Bulk(context.Background(), nil, nil, models.OperationSync, BulkOpts{})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		trigger := &fakeTrigger{}
		engine := NewEngine(trigger, nil, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := engine.Bulk(ctx, nil, []string{"P1", "P2"}, models.OperationSync, BulkOpts{})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if result == nil {
			t.Fatal("expected partial result")
		}
		if len(trigger.Calls()) != 0 {
			t.Errorf("expected no triggers, got %v", trigger.Calls())
		}
	})
}

func TestBulk_RateLimit(t *testing.T) {
	engine := NewEngine(&fakeTrigger{}, nil, nil)

	start := time.Now()
	result, err := engine.Bulk(context.Background(), nil, []string{"P1", "P2", "P3"}, models.OperationSync, BulkOpts{
		NumWorkers: 3,
		RateLimit:  20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Succeeded != 3 {
		t.Fatalf("expected 3 successes, got %d", result.Succeeded)
	}

	// Burst of one: the second and third trigger each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected rate limiting to take at least 80ms, took %v", elapsed)
	}
}

func TestBulk_Progress(t *testing.T) {
	trigger := &fakeTrigger{fail: map[string]error{"P2": shared.ErrPlaylistNotFound}}
	engine := NewEngine(trigger, nil, nil)
	progress := make(chan ProgressUpdate, 10)

	_, err := engine.Bulk(context.Background(), progress, []string{"P1", "P2"}, models.OperationAnalyze, BulkOpts{RateLimit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := drain(progress)
	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(updates))
	}
	if updates[0].Step != 0 || updates[0].Total != 2 {
		t.Errorf("unexpected start update: %+v", updates[0])
	}
	for _, u := range updates {
		if u.Phase != BulkTasks {
			t.Errorf("expected bulk phase, got %v", u.Phase)
		}
	}
	if updates[2].Step != 2 {
		t.Errorf("expected final step 2, got %d", updates[2].Step)
	}
}

func TestBulk_Wait(t *testing.T) {
	notifier := newFakeNotifier()
	trigger := &fakeTrigger{onTrigger: func(r models.TaskReceipt) {
		status := models.StatusSuccess
		if r.PlaylistID == "P2" {
			status = models.StatusFailure
		}
		notifier.Send(tu.Notification("n-"+r.TaskID, r.TaskID, status, r.TaskName, r.PlaylistID))
	}}
	engine := NewEngine(trigger, notifier, nil)

	result, err := engine.Bulk(context.Background(), nil, []string{"P1", "P2"}, models.OperationAnalyze, BulkOpts{
		NumWorkers: 1,
		RateLimit:  1000,
		Wait:       true,
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("expected 1/1 succeeded/failed, got %d/%d", result.Succeeded, result.Failed)
	}
	for _, r := range result.Results {
		if r.PlaylistID == "P2" && r.Status != models.StatusFailure {
			t.Errorf("expected P2 to end in FAILURE, got %q", r.Status)
		}
	}
}

func TestBulk_Manifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "manifest.json")
	engine := NewEngine(&fakeTrigger{}, nil, nil)

	_, err := engine.Bulk(context.Background(), nil, []string{"P1", "P2"}, models.OperationSync, BulkOpts{
		RateLimit:    1000,
		ManifestPath: path,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	var manifest models.BulkResult
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest.Total != 2 || manifest.Succeeded != 2 || manifest.Operation != models.OperationSync {
		t.Errorf("unexpected manifest: %+v", manifest)
	}
}
