package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
)

// NotificationRepository persists received notifications to notification_log.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new NotificationRepository with the given database connection
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = "id, notification_id, task_id, task_name, task_status, task_type, playlist_id, payload, received_at"

// Record stores msg as a new row with a generated ID. The same notification
// may be recorded more than once.
func (r *NotificationRepository) Record(ctx context.Context, msg *models.Message, receivedAt time.Time) (*models.NotificationRecord, error) {
	if msg == nil || msg.Notification == nil {
		return nil, fmt.Errorf("%w: notification is required", shared.ErrInvalidInput)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	n := msg.Notification
	rec := &models.NotificationRecord{
		ID:             shared.GenerateID(),
		NotificationID: n.ID,
		TaskID:         n.TaskID,
		TaskName:       n.TaskName,
		TaskStatus:     n.TaskStatus,
		TaskType:       n.Extras.TaskType(),
		PlaylistID:     n.Extras.PlaylistID(),
		Payload:        payload,
		ReceivedAt:     receivedAt.UTC(),
	}

	query := `INSERT INTO notification_log (` + notificationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.NotificationID,
		rec.TaskID,
		rec.TaskName,
		rec.TaskStatus,
		rec.TaskType,
		rec.PlaylistID,
		string(rec.Payload),
		rec.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	return rec, nil
}

// Get retrieves a record by its row ID.
func (r *NotificationRepository) Get(ctx context.Context, id string) (*models.NotificationRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+notificationColumns+" FROM notification_log WHERE id = ?", id)
	return scanNotification(row)
}

// List returns the newest records first. limit <= 0 returns everything.
func (r *NotificationRepository) List(ctx context.Context, limit int) ([]*models.NotificationRecord, error) {
	query := "SELECT " + notificationColumns + " FROM notification_log ORDER BY received_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

// ListByTask returns every record for taskID in arrival order.
func (r *NotificationRepository) ListByTask(ctx context.Context, taskID string) ([]*models.NotificationRecord, error) {
	query := "SELECT " + notificationColumns + " FROM notification_log WHERE task_id = ? ORDER BY received_at ASC, rowid ASC"
	return r.query(ctx, query, taskID)
}

// Count returns the number of recorded notifications.
func (r *NotificationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notification_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

// Prune deletes records received before cutoff and returns how many were removed.
func (r *NotificationRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notification_log WHERE received_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...any) ([]*models.NotificationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []*models.NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner) (*models.NotificationRecord, error) {
	var (
		rec     models.NotificationRecord
		payload string
	)

	err := s.Scan(
		&rec.ID,
		&rec.NotificationID,
		&rec.TaskID,
		&rec.TaskName,
		&rec.TaskStatus,
		&rec.TaskType,
		&rec.PlaylistID,
		&payload,
		&rec.ReceivedAt,
	)
	if err != nil {
		return nil, scanErr(err, "notification")
	}

	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}
