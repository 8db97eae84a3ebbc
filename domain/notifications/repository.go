package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/capstonehub/capstonehub/pkg/apperror"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Repository handles database operations for notifications
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new notifications repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("notifications.repo")),
	}
}

// Insert stores a new notification
func (r *Repository) Insert(ctx context.Context, n *Notification) error {
	if _, err := r.db.NewInsert().Model(n).Returning("*").Exec(ctx); err != nil {
		r.log.Error("failed to insert notification", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// List returns non-dismissed notifications for a recipient, newest first
func (r *Repository) List(ctx context.Context, recipientEmail string, params ListParams) ([]Notification, error) {
	notifications := []Notification{}

	q := r.db.NewSelect().
		Model(&notifications).
		Where("recipient_email = ?", recipientEmail).
		Where("dismissed_at IS NULL")

	if params.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}

	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	if err := q.Order("created_at DESC").Limit(limit).Scan(ctx); err != nil {
		r.log.Error("failed to list notifications", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return notifications, nil
}

// GetStats returns aggregate counts for a recipient
func (r *Repository) GetStats(ctx context.Context, recipientEmail string) (*Stats, error) {
	stats := &Stats{}

	total, err := r.db.NewSelect().
		Model((*Notification)(nil)).
		Where("recipient_email = ?", recipientEmail).
		Where("dismissed_at IS NULL").
		Count(ctx)
	if err != nil {
		r.log.Error("failed to count notifications", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	stats.Total = int64(total)

	unread, err := r.db.NewSelect().
		Model((*Notification)(nil)).
		Where("recipient_email = ?", recipientEmail).
		Where("dismissed_at IS NULL").
		Where("read_at IS NULL").
		Count(ctx)
	if err != nil {
		r.log.Error("failed to count unread notifications", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	stats.Unread = int64(unread)

	return stats, nil
}

// MarkRead marks a notification as read
func (r *Repository) MarkRead(ctx context.Context, recipientEmail, id string) error {
	result, err := r.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("read_at = ?", time.Now()).
		Where("id = ?", id).
		Where("recipient_email = ?", recipientEmail).
		Where("read_at IS NULL").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to mark notification as read", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		// either unknown or already read; re-check existence
		exists, err := r.db.NewSelect().
			Model((*Notification)(nil)).
			Where("id = ?", id).
			Where("recipient_email = ?", recipientEmail).
			Exists(ctx)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		if !exists {
			return apperror.ErrNotificationNotFound
		}
	}

	return nil
}

// MarkAllRead marks every unread notification for a recipient as read
func (r *Repository) MarkAllRead(ctx context.Context, recipientEmail string) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("read_at = ?", time.Now()).
		Where("recipient_email = ?", recipientEmail).
		Where("read_at IS NULL").
		Where("dismissed_at IS NULL").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to mark all notifications as read", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	count, _ := result.RowsAffected()
	return count, nil
}

// Dismiss hides a notification from future listings
func (r *Repository) Dismiss(ctx context.Context, recipientEmail, id string) error {
	result, err := r.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("dismissed_at = ?", time.Now()).
		Where("id = ?", id).
		Where("recipient_email = ?", recipientEmail).
		Where("dismissed_at IS NULL").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to dismiss notification", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperror.ErrNotificationNotFound
	}

	return nil
}
