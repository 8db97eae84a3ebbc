// Package submissions manages capstone project submissions. Creating a
// submission is the canonical dispatch producer path: the row is stored, an
// originality check is queued, and the adviser is notified by email and
// in-app notification.
package submissions

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/capstonehub/capstonehub/domain/email"
	"github.com/capstonehub/capstonehub/domain/notifications"
	"github.com/capstonehub/capstonehub/domain/originality"
	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/pkg/apperror"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Service handles business logic for submissions
type Service struct {
	repo          *Repository
	originality   *originality.Service
	emails        *email.Service
	notifications *notifications.Service
	cfg           *config.Config
	log           *slog.Logger
}

// NewService creates the submissions service
func NewService(repo *Repository, orig *originality.Service, emails *email.Service, notifs *notifications.Service, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		originality:   orig,
		emails:        emails,
		notifications: notifs,
		cfg:           cfg,
		log:           log.With(logger.Scope("submissions.svc")),
	}
}

func validateCreate(req *CreateRequest) error {
	if req.Title == "" {
		return apperror.ErrValidation.WithMessage("title is required")
	}
	if req.StudentName == "" {
		return apperror.ErrValidation.WithMessage("student name is required")
	}
	if req.StudentEmail == "" {
		return apperror.ErrValidation.WithMessage("student email is required")
	}
	if _, err := mail.ParseAddress(req.StudentEmail); err != nil {
		return apperror.ErrValidation.WithMessage("student email is invalid")
	}
	if req.AdviserEmail != "" {
		if _, err := mail.ParseAddress(req.AdviserEmail); err != nil {
			return apperror.ErrValidation.WithMessage("adviser email is invalid")
		}
	}
	if req.DocumentURL == "" {
		return apperror.ErrValidation.WithMessage("document url is required")
	}
	return nil
}

// Create stores a new submission and queues the async follow-up work. The
// submission itself is durable before any job is queued; a broker outage
// surfaces as an error to the caller rather than a silent drop.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Submission, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	sub := &Submission{
		Title:        req.Title,
		Abstract:     req.Abstract,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
		AdviserName:  req.AdviserName,
		AdviserEmail: req.AdviserEmail,
		DocumentURL:  req.DocumentURL,
		Status:       StatusSubmitted,
	}
	if err := s.repo.Insert(ctx, sub); err != nil {
		return nil, err
	}

	if _, err := s.originality.EnqueueCheck(ctx, sub.ID, sub.DocumentURL); err != nil {
		return nil, fmt.Errorf("submission %s stored but originality check not queued: %w", sub.ID, err)
	}

	s.notifyAdviser(ctx, sub)

	s.log.Info("submission created",
		slog.String("id", sub.ID),
		slog.String("student", sub.StudentEmail),
		slog.String("title", sub.Title))

	return sub, nil
}

// notifyAdviser queues the adviser email and notification, best effort
func (s *Service) notifyAdviser(ctx context.Context, sub *Submission) {
	if sub.AdviserEmail == "" {
		return
	}

	if _, err := s.emails.SendSubmissionReceived(ctx, sub.AdviserEmail, sub.AdviserName, sub.StudentName, sub.Title, sub.Abstract); err != nil {
		s.log.Warn("failed to queue adviser email", logger.Error(err))
	}

	if _, err := s.notifications.Create(ctx, notifications.CreateParams{
		RecipientEmail: sub.AdviserEmail,
		Kind:           notifications.KindSubmissionReceived,
		Title:          fmt.Sprintf("New submission: %s", sub.Title),
		Body:           fmt.Sprintf("%s submitted a capstone project for review.", sub.StudentName),
		SubmissionID:   &sub.ID,
	}); err != nil {
		s.log.Warn("failed to create adviser notification", logger.Error(err))
	}
}

// Get returns a submission by ID
func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns submissions matching the filters
func (s *Service) List(ctx context.Context, params ListParams) ([]Submission, int64, error) {
	return s.repo.List(ctx, params)
}

// Decide records the adviser's approve/reject decision. The repository runs
// the check-and-update transactionally, so concurrent decisions on the same
// submission resolve to one winner and one conflict.
func (s *Service) Decide(ctx context.Context, id string, status Status) (*Submission, error) {
	if !decisionStatuses[status] {
		return nil, apperror.ErrValidation.WithMessage("status must be approved or rejected")
	}

	sub, err := s.repo.Decide(ctx, id, status)
	if err != nil {
		return nil, err
	}

	if _, err := s.notifications.Create(ctx, notifications.CreateParams{
		RecipientEmail: sub.StudentEmail,
		Kind:           notifications.KindStatusChanged,
		Title:          fmt.Sprintf("Submission %s: %s", sub.Status, sub.Title),
		SubmissionID:   &sub.ID,
	}); err != nil {
		s.log.Warn("failed to create decision notification", logger.Error(err))
	}

	return sub, nil
}

// RecordOriginality implements originality.Recorder. It persists the score
// and reports back what the processor needs for result fan-out.
func (s *Service) RecordOriginality(ctx context.Context, submissionID string, score float64) (*originality.RecordedSubmission, error) {
	passed := score >= s.cfg.Originality.FlagThreshold

	sub, err := s.repo.RecordOriginality(ctx, submissionID, score, passed)
	if err != nil {
		return nil, err
	}

	return &originality.RecordedSubmission{
		ID:           sub.ID,
		Title:        sub.Title,
		StudentName:  sub.StudentName,
		StudentEmail: sub.StudentEmail,
		AdviserName:  sub.AdviserName,
		AdviserEmail: sub.AdviserEmail,
		Flagged:      !passed,
	}, nil
}
