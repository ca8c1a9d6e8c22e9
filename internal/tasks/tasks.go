package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
)

// Triggerer starts a backend task for a playlist.
type Triggerer interface {
	Trigger(ctx context.Context, id string, op models.Operation) (*models.TaskReceipt, error)
}

// Notifier delivers live task notifications.
type Notifier interface {
	Subscribe() (<-chan models.Message, func())
}

// RunOpts controls a single task run.
type RunOpts struct {
	Wait    bool          // Follow the task until it reaches a terminal status
	Timeout time.Duration // Give up waiting after this long (0 = no limit)
}

// Engine triggers tasks and optionally waits for their outcome.
type Engine struct {
	trigger Triggerer
	notices Notifier
	logger  *log.Logger
}

// NewEngine creates an Engine. notices may be nil when no caller waits.
func NewEngine(trigger Triggerer, notices Notifier, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Engine{trigger: trigger, notices: notices, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run triggers op on playlist id.
//
// With opts.Wait the engine subscribes before sending the mutation, so a
// notification that beats the HTTP response is not lost. The returned outcome
// is non-nil even on error.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate, id string, op models.Operation, opts RunOpts) (*models.TaskOutcome, error) {
	outcome := &models.TaskOutcome{PlaylistID: id}
	fail := func(err error) (*models.TaskOutcome, error) {
		outcome.Err = err
		outcome.Error = err.Error()
		return outcome, err
	}

	total := 1
	if opts.Wait {
		total = 2
	}

	var (
		msgs   <-chan models.Message
		cancel = func() {}
	)
	if opts.Wait {
		if e.notices == nil {
			return fail(fmt.Errorf("%w: live notifications are not connected", shared.ErrServiceUnavailable))
		}
		msgs, cancel = e.notices.Subscribe()
	}
	defer cancel()

	e.sendProgress(progress, triggeringUpdate(1, total, id, op))
	receipt, err := e.trigger.Trigger(ctx, id, op)
	if err != nil {
		return fail(err)
	}
	outcome.TaskID = receipt.TaskID
	outcome.Status = receipt.Status
	e.sendProgress(progress, triggeredUpdate(1, total, receipt))

	if !opts.Wait {
		outcome.Success = true
		return outcome, nil
	}

	status, err := e.wait(ctx, progress, msgs, receipt.TaskID, outcome.Status, opts.Timeout)
	outcome.Status = status
	if err != nil {
		return fail(err)
	}
	outcome.Success = true
	return outcome, nil
}

func (e *Engine) wait(ctx context.Context, progress chan<- ProgressUpdate, msgs <-chan models.Message, taskID, status string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e.sendProgress(progress, waitingUpdate(2, 2, taskID))
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return status, fmt.Errorf("%w: task %s did not finish (last status %q)", shared.ErrTimeout, taskID, status)
			}
			return status, ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return status, fmt.Errorf("%w: stopped waiting for task %s", shared.ErrChannelClosed, taskID)
			}
			n := msg.Notification
			if n == nil || n.TaskID != taskID {
				continue
			}

			status = n.TaskStatus
			e.sendProgress(progress, taskStatusUpdate(2, 2, n))
			e.logger.Debug("task status", "task_id", taskID, "status", status)

			if !models.IsTerminalStatus(status) {
				continue
			}
			if status == models.StatusSuccess {
				return status, nil
			}
			return status, fmt.Errorf("%w: task %s finished with %s", shared.ErrTaskFailed, taskID, status)
		}
	}
}
