package originality

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/capstonehub/capstonehub/domain/email"
	"github.com/capstonehub/capstonehub/domain/notifications"
	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/internal/dispatch"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Processor runs one originality-check job: call the provider, record the
// score, and fan out result notifications.
type Processor struct {
	provider      Provider
	recorder      Recorder
	emails        *email.Service
	notifications *notifications.Service
	log           *slog.Logger
}

// NewCheckProcessor creates the originality-check job processor
func NewCheckProcessor(provider Provider, recorder Recorder, emails *email.Service, notifs *notifications.Service, log *slog.Logger) *Processor {
	return &Processor{
		provider:      provider,
		recorder:      recorder,
		emails:        emails,
		notifications: notifs,
		log:           log.With(logger.Scope("originality.processor")),
	}
}

// Process is the dispatch.Processor for the originality-check queue
func (p *Processor) Process(ctx context.Context, job *dispatch.Job) error {
	var payload CheckPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decode originality payload: %w", err)
	}
	if payload.SubmissionID == "" || payload.DocumentURL == "" {
		return fmt.Errorf("originality payload is incomplete")
	}

	result, err := p.provider.Check(ctx, payload.DocumentURL)
	if err != nil {
		return err
	}

	sub, err := p.recorder.RecordOriginality(ctx, payload.SubmissionID, result.Score)
	if err != nil {
		return fmt.Errorf("record originality score: %w", err)
	}

	p.log.Info("originality score recorded",
		slog.String("submission_id", sub.ID),
		slog.Float64("score", result.Score),
		slog.Bool("flagged", sub.Flagged))

	// Result fan-out is best effort; the score is already durable
	p.notifyResult(ctx, sub, result.Score)

	return nil
}

func (p *Processor) notifyResult(ctx context.Context, sub *RecordedSubmission, score float64) {
	if _, err := p.emails.SendOriginalityResult(ctx, sub.StudentEmail, sub.StudentName, sub.Title, score, sub.Flagged); err != nil {
		p.log.Warn("failed to queue result email", logger.Error(err))
	}
	if sub.Flagged && sub.AdviserEmail != "" {
		if _, err := p.emails.SendOriginalityResult(ctx, sub.AdviserEmail, sub.AdviserName, sub.Title, score, sub.Flagged); err != nil {
			p.log.Warn("failed to queue adviser result email", logger.Error(err))
		}
	}

	title := fmt.Sprintf("Originality check complete: %.1f%%", score)
	body := fmt.Sprintf("The originality check for %q has finished.", sub.Title)
	if sub.Flagged {
		body += " The submission has been flagged for manual review."
	}
	if _, err := p.notifications.Create(ctx, notifications.CreateParams{
		RecipientEmail: sub.StudentEmail,
		Kind:           notifications.KindOriginalityResult,
		Title:          title,
		Body:           body,
		SubmissionID:   &sub.ID,
	}); err != nil {
		p.log.Warn("failed to create result notification", logger.Error(err))
	}
}

// NewPool creates the originality-check worker pool. Provider calls are slow,
// so the pool runs narrower than the dispatch default.
func NewPool(broker dispatch.Broker, cfg *config.Config, processor *Processor, log *slog.Logger) *dispatch.WorkerPool {
	concurrency := cfg.Dispatch.Concurrency / 2
	if concurrency < 1 {
		concurrency = 1
	}

	return dispatch.NewWorkerPool(broker, dispatch.PoolConfig{
		Queue:               QueueName,
		Concurrency:         concurrency,
		PollInterval:        cfg.Dispatch.PollInterval,
		StaleThreshold:      cfg.Dispatch.StaleThreshold,
		RecoverStaleOnStart: true,
	}, processor.Process, log)
}
