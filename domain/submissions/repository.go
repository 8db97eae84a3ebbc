package submissions

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/capstonehub/capstonehub/internal/database"
	"github.com/capstonehub/capstonehub/pkg/apperror"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Repository handles database operations for submissions
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new submissions repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("submissions.repo")),
	}
}

// Insert stores a new submission
func (r *Repository) Insert(ctx context.Context, s *Submission) error {
	if _, err := r.db.NewInsert().Model(s).Returning("*").Exec(ctx); err != nil {
		r.log.Error("failed to insert submission", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// GetByID returns a submission by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*Submission, error) {
	s := &Submission{}
	err := r.db.NewSelect().Model(s).Where("s.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrSubmissionNotFound
		}
		r.log.Error("failed to get submission", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return s, nil
}

// List returns submissions matching the filters, newest first
func (r *Repository) List(ctx context.Context, params ListParams) ([]Submission, int64, error) {
	submissions := []Submission{}

	q := r.db.NewSelect().Model(&submissions)

	if params.Status != "" {
		q = q.Where("status = ?", params.Status)
	}
	if params.StudentEmail != "" {
		q = q.Where("student_email = ?", params.StudentEmail)
	}
	if params.AdviserEmail != "" {
		q = q.Where("adviser_email = ?", params.AdviserEmail)
	}

	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	total, err := q.Order("created_at DESC").Limit(limit).Offset(params.Offset).ScanAndCount(ctx)
	if err != nil {
		r.log.Error("failed to list submissions", logger.Error(err))
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}

	return submissions, int64(total), nil
}

// Decide records an adviser decision. The row is locked for the duration of
// the transaction, so two concurrent decisions cannot both pass the
// already-decided check.
func (r *Repository) Decide(ctx context.Context, id string, status Status) (*Submission, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		r.log.Error("failed to begin decision transaction", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	existing := &Submission{}
	err = tx.NewSelect().
		Model(existing).
		Where("s.id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrSubmissionNotFound
		}
		r.log.Error("failed to load submission for decision", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if existing.Status == StatusApproved || existing.Status == StatusRejected {
		return nil, apperror.ErrConflict.WithMessage("submission already decided")
	}

	s := &Submission{}
	err = tx.NewUpdate().
		Model(s).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to update submission status", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if err := tx.Commit(); err != nil {
		r.log.Error("failed to commit decision", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return s, nil
}

// RecordOriginality stores a check result and advances the status. The
// status change only fires from 'submitted', so re-delivered jobs cannot
// clobber a later adviser decision; the score itself is refreshed.
func (r *Repository) RecordOriginality(ctx context.Context, id string, score float64, passed bool) (*Submission, error) {
	status := StatusFlagged
	if passed {
		status = StatusPassed
	}

	s := &Submission{}
	err := r.db.NewUpdate().
		Model(s).
		Set("originality_score = ?", score).
		Set("originality_checked_at = ?", time.Now()).
		Set("status = CASE WHEN status = ? THEN ?::text ELSE status END", StatusSubmitted, status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrSubmissionNotFound
		}
		r.log.Error("failed to record originality score", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return s, nil
}
