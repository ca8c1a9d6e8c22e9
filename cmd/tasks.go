package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tunedeck/internal/formatter"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/notify"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/desertthunder/tunedeck/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlaylistsSync triggers a sync of one playlist.
func (r *Runner) PlaylistsSync(ctx context.Context, cmd *cli.Command) error {
	return r.runTask(ctx, cmd, models.OperationSync)
}

// PlaylistsAnalyze triggers an analysis of one playlist.
func (r *Runner) PlaylistsAnalyze(ctx context.Context, cmd *cli.Command) error {
	return r.runTask(ctx, cmd, models.OperationAnalyze)
}

func (r *Runner) waitTimeout(cmd *cli.Command) time.Duration {
	if d := cmd.Duration("timeout"); d > 0 {
		return d
	}
	return r.config.Tasks.WaitTimeout()
}

// openChannel connects the live channel when the command waits on tasks.
func (r *Runner) openChannel(ctx context.Context, wait bool) (*notify.Channel, func(), error) {
	if !wait {
		return nil, func() {}, nil
	}

	ch, done, err := r.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ch, func() {
		ch.Close()
		<-done
	}, nil
}

// printProgress writes updates until progress is closed; the returned channel
// is closed once everything has been written.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.TriggerTask:
				r.writePlain("▶ %s\n", update.Message)
			case tasks.WaitTask:
				r.writePlain("   %s\n", update.Message)
			case tasks.BulkTasks:
				if update.Step == 0 {
					r.writePlain("%s\n\n", update.Message)
				} else {
					r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
				}
			}
		}
	}()
	return done
}

func (r *Runner) runTask(ctx context.Context, cmd *cli.Command, op models.Operation) error {
	id, err := playlistID(cmd)
	if err != nil {
		return err
	}
	if err := r.setup(ctx); err != nil {
		return err
	}

	wait := cmd.Bool("wait")
	ch, stop, err := r.openChannel(ctx, wait)
	if err != nil {
		return err
	}
	defer stop()

	progress := make(chan tasks.ProgressUpdate, 20)
	printed := r.printProgress(progress)

	outcome, err := r.engine(ch).Run(ctx, progress, id, op, tasks.RunOpts{Wait: wait, Timeout: r.waitTimeout(cmd)})
	close(progress)
	<-printed

	if err != nil {
		return r.describeError(err)
	}

	if wait {
		return r.writePlain("✓ %s finished for %s (task %s)\n", op, id, outcome.TaskID)
	}
	return r.writePlain("✓ %s requested for %s (task %s)\n", op, id, outcome.TaskID)
}

// PlaylistsBulk triggers an operation for many playlists through the worker pool.
func (r *Runner) PlaylistsBulk(ctx context.Context, cmd *cli.Command) error {
	op, err := models.ParseOperation(cmd.String("op"))
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var ids []string
	for _, id := range cmd.Args().Slice() {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one playlist ID", shared.ErrMissingArgument)
	}

	if err := r.setup(ctx); err != nil {
		return err
	}

	wait := cmd.Bool("wait")
	ch, stop, err := r.openChannel(ctx, wait)
	if err != nil {
		return err
	}
	defer stop()

	workers := cmd.Int("workers")
	if workers <= 0 {
		workers = r.config.Tasks.Workers
	}
	rate := cmd.Float("rate")
	if rate <= 0 {
		rate = r.config.Tasks.RateLimit
	}

	progress := make(chan tasks.ProgressUpdate, len(ids)+1)
	var printed <-chan struct{}
	if format == formatter.FormatTable {
		printed = r.printProgress(progress)
	}

	result, err := r.engine(ch).Bulk(ctx, progress, ids, op, tasks.BulkOpts{
		NumWorkers:   workers,
		RateLimit:    rate,
		Wait:         wait,
		Timeout:      r.waitTimeout(cmd),
		ManifestPath: cmd.String("manifest"),
	})
	close(progress)
	if printed != nil {
		<-printed
	}

	if result != nil {
		if format == formatter.FormatTable {
			r.writePlainln("Succeeded: %d, Failed: %d", result.Succeeded, result.Failed)
		}
		out, renderErr := formatter.Render(format, formatter.BulkTable(result), result)
		if renderErr != nil {
			return renderErr
		}
		if err := r.writeBytes(out); err != nil {
			return err
		}
	}
	if err != nil {
		return r.describeError(err)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d %s tasks failed", shared.ErrTaskFailed, result.Failed, result.Total, op)
	}
	return nil
}
