package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/internal/dispatch"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// NewProcessor returns the email-dispatch job processor. A returned error
// means the send did not happen and the job should be retried.
func NewProcessor(sender Sender, templates *TemplateService, log *slog.Logger) dispatch.Processor {
	log = log.With(logger.Scope("email.processor"))

	return func(ctx context.Context, job *dispatch.Job) error {
		var msg Message
		if err := job.UnmarshalPayload(&msg); err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}
		if err := msg.Validate(); err != nil {
			return err
		}

		html := msg.HTML
		if msg.Template != "" {
			rendered, err := templates.Render(msg.Template, msg.Data)
			if err != nil {
				return err
			}
			html = rendered
		}

		result, err := sender.Send(ctx, SendOptions{
			To:      msg.To,
			ToName:  msg.ToName,
			From:    msg.From,
			Subject: msg.Subject,
			HTML:    html,
			Text:    msg.Text,
		})
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		if !result.Success {
			return fmt.Errorf("send email: %s", result.Error)
		}

		log.Debug("email delivered",
			slog.String("job_id", job.ID),
			slog.String("to", msg.To),
			slog.String("message_id", result.MessageID))

		return nil
	}
}

// NewPool creates the email-dispatch worker pool
func NewPool(broker dispatch.Broker, cfg *config.Config, sender Sender, templates *TemplateService, log *slog.Logger) *dispatch.WorkerPool {
	processor := NewProcessor(sender, templates, log)

	return dispatch.NewWorkerPool(broker, dispatch.PoolConfig{
		Queue:               QueueName,
		Concurrency:         cfg.Dispatch.Concurrency,
		PollInterval:        cfg.Dispatch.PollInterval,
		StaleThreshold:      cfg.Dispatch.StaleThreshold,
		RecoverStaleOnStart: true,
	}, processor, log)
}
