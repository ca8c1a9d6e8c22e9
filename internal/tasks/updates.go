package tasks

import (
	"fmt"

	"github.com/desertthunder/tunedeck/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	TriggerTask Phase = iota
	WaitTask
	BulkTasks
)

func (p Phase) String() string {
	switch p {
	case TriggerTask:
		return "trigger_task"
	case WaitTask:
		return "wait_task"
	case BulkTasks:
		return "bulk_tasks"
	default:
		return ""
	}
}

func triggeringUpdate(step, total int, id string, op models.Operation) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TriggerTask,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Requesting %s for playlist %s...", op, id),
	}
}

func triggeredUpdate(step, total int, receipt *models.TaskReceipt) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TriggerTask,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Task accepted: %s (ID: %s)", receipt.TaskName, receipt.TaskID),
		Data:    receipt,
	}
}

func waitingUpdate(step, total int, taskID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WaitTask,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Waiting for task %s...", taskID),
	}
}

func taskStatusUpdate(step, total int, n *models.Notification) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WaitTask,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Task %s: %s", n.TaskID, n.TaskStatus),
		Data:    n,
	}
}

func bulkStartUpdate(total int, op models.Operation) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkTasks,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Starting %s for %d playlists...", op, total),
	}
}

func bulkCompletedUpdate(step, total int, o models.TaskOutcome) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s", step, total, o.PlaylistID)
	if o.TaskID != "" {
		msg = fmt.Sprintf("%s (task %s)", msg, o.TaskID)
	}
	return ProgressUpdate{
		Phase:   BulkTasks,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    o,
	}
}

func bulkFailedUpdate(step, total int, o models.TaskOutcome) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkTasks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, o.PlaylistID, o.Err),
		Data:    o,
	}
}
