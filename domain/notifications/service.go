// Package notifications stores and serves in-app notifications for
// students and advisers. Rows are written by the dispatch processors and the
// submissions service, and read over the HTTP API.
package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/capstonehub/capstonehub/pkg/logger"
)

// CreateParams describes a notification to store
type CreateParams struct {
	RecipientEmail string
	Kind           Kind
	Title          string
	Body           string
	SubmissionID   *string
}

// Service handles business logic for notifications
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new notifications service
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("notifications.svc")),
	}
}

// Create stores a new notification
func (s *Service) Create(ctx context.Context, params CreateParams) (*Notification, error) {
	if params.RecipientEmail == "" {
		return nil, fmt.Errorf("notifications: recipient is required")
	}
	if params.Title == "" {
		return nil, fmt.Errorf("notifications: title is required")
	}
	if params.Kind == "" {
		return nil, fmt.Errorf("notifications: kind is required")
	}

	n := &Notification{
		RecipientEmail: params.RecipientEmail,
		Kind:           params.Kind,
		Title:          params.Title,
		Body:           params.Body,
		SubmissionID:   params.SubmissionID,
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return nil, err
	}

	s.log.Debug("notification created",
		slog.String("id", n.ID),
		slog.String("recipient", n.RecipientEmail),
		slog.String("kind", string(n.Kind)))

	return n, nil
}

// List returns notifications for a recipient
func (s *Service) List(ctx context.Context, recipientEmail string, params ListParams) ([]Notification, error) {
	return s.repo.List(ctx, recipientEmail, params)
}

// GetStats returns aggregate counts for a recipient
func (s *Service) GetStats(ctx context.Context, recipientEmail string) (*Stats, error) {
	return s.repo.GetStats(ctx, recipientEmail)
}

// MarkRead marks a notification as read
func (s *Service) MarkRead(ctx context.Context, recipientEmail, id string) error {
	return s.repo.MarkRead(ctx, recipientEmail, id)
}

// MarkAllRead marks all notifications as read for a recipient
func (s *Service) MarkAllRead(ctx context.Context, recipientEmail string) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipientEmail)
}

// Dismiss dismisses a notification
func (s *Service) Dismiss(ctx context.Context, recipientEmail, id string) error {
	return s.repo.Dismiss(ctx, recipientEmail, id)
}
