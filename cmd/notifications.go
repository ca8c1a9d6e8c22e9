package main

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/tunedeck/internal/formatter"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/repositories"
	"github.com/urfave/cli/v3"
)

// NotificationsWatch prints task notifications as they arrive. A dropped
// connection ends the command with the drop error.
func (r *Runner) NotificationsWatch(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	var repo *repositories.NotificationRepository
	if cmd.Bool("record") {
		db, err := r.database(ctx)
		if err != nil {
			return err
		}
		repo = repositories.NewNotificationRepository(db)
	}

	ch, done, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	msgs, cancel := ch.Subscribe()
	defer cancel()

	asJSON := cmd.Bool("json")
	limit := cmd.Int("count")
	if !asJSON {
		r.writePlain("Listening on %s (Ctrl+C to stop)\n", ch.URL())
	}

	seen := 0
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if repo != nil {
				if _, err := repo.Record(ctx, &msg, time.Now()); err != nil {
					r.logger.Warn("failed to record notification", "id", msg.Notification.ID, "error", err)
				}
			}
			if err := r.writeNotification(msg, asJSON); err != nil {
				return err
			}

			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		case err := <-done:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Runner) writeNotification(msg models.Message, asJSON bool) error {
	if asJSON {
		return r.writeJSON(msg, false)
	}

	n := msg.Notification
	line := time.Now().Format("15:04:05") + "  " + n.TaskStatus + "  " + n.TaskID
	if t := n.Extras.TaskType(); t != "" {
		line += "  " + t
	}
	if id := n.Extras.PlaylistID(); id != "" {
		line += "  playlist=" + id
	}
	return r.writePlain("%s\n", line)
}

// NotificationsHistory prints recorded notifications, newest first.
func (r *Runner) NotificationsHistory(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := r.database(ctx)
	if err != nil {
		return err
	}
	repo := repositories.NewNotificationRepository(db)

	if age := cmd.Duration("prune"); age > 0 {
		removed, err := repo.Prune(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		r.logger.Info("pruned notification log", "removed", removed)
	}

	var records []*models.NotificationRecord
	if task := cmd.String("task"); task != "" {
		records, err = repo.ListByTask(ctx, task)
	} else {
		records, err = repo.List(ctx, cmd.Int("limit"))
	}
	if err != nil {
		return err
	}

	items := make([]models.NotificationRecord, len(records))
	for i, rec := range records {
		items[i] = *rec
	}

	out, err := formatter.Render(format, formatter.NotificationTable(items), items)
	if err != nil {
		return err
	}
	if err := r.writeBytes(out); err != nil {
		return err
	}

	if format == formatter.FormatTable {
		total, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		return r.writePlain("Showing %d of %d recorded notifications\n", len(items), total)
	}
	return nil
}
