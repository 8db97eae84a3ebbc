// Package email queues and delivers transactional email through the job
// dispatch subsystem. Producers enqueue a Message on the email-dispatch
// queue; the worker pool renders and sends it.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/internal/dispatch"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// QueueName is the dispatch queue for outgoing email
const QueueName = "email-dispatch"

// Message is the email-dispatch job payload. Either HTML/Text carry a
// pre-rendered body, or Template+Data name an embedded template the worker
// renders at delivery time.
type Message struct {
	To       string         `json:"to"`
	ToName   string         `json:"toName,omitempty"`
	From     string         `json:"from,omitempty"`
	Subject  string         `json:"subject"`
	HTML     string         `json:"html,omitempty"`
	Text     string         `json:"text,omitempty"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Validate checks that the message can be delivered
func (m *Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("email: recipient is required")
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("email: invalid recipient %q: %w", m.To, err)
	}
	if m.Subject == "" {
		return fmt.Errorf("email: subject is required")
	}
	if m.HTML == "" && m.Text == "" && m.Template == "" {
		return fmt.Errorf("email: body or template is required")
	}
	return nil
}

// Service is the producer-facing surface for queuing email
type Service struct {
	queue dispatch.Queue
	cfg   *config.Config
	log   *slog.Logger
}

// NewService creates the email producer service
func NewService(queue dispatch.Queue, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		queue: queue,
		cfg:   cfg,
		log:   log.With(logger.Scope("email")),
	}
}

// Enqueue validates the message and records it on the email-dispatch queue.
// Delivery happens asynchronously; the returned ID identifies the job.
func (s *Service) Enqueue(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	id, err := s.queue.Enqueue(ctx, QueueName, msg, dispatch.EnqueueOptions{
		MaxAttempts: s.cfg.Email.MaxAttempts,
	})
	if err != nil {
		return "", fmt.Errorf("queue email: %w", err)
	}

	s.log.Debug("email queued",
		slog.String("job_id", id),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject))

	return id, nil
}

// SendSubmissionReceived queues the adviser notification for a new submission
func (s *Service) SendSubmissionReceived(ctx context.Context, to, toName, studentName, title, abstract string) (string, error) {
	return s.Enqueue(ctx, Message{
		To:       to,
		ToName:   toName,
		Subject:  fmt.Sprintf("New capstone submission: %s", title),
		Template: "submission_received",
		Data: map[string]any{
			"adviserName": toName,
			"studentName": studentName,
			"title":       title,
			"abstract":    abstract,
		},
	})
}

// SendOriginalityResult queues the result email after an originality check
func (s *Service) SendOriginalityResult(ctx context.Context, to, toName, title string, score float64, flagged bool) (string, error) {
	return s.Enqueue(ctx, Message{
		To:       to,
		ToName:   toName,
		Subject:  fmt.Sprintf("Originality check complete: %s", title),
		Template: "originality_result",
		Data: map[string]any{
			"recipientName": toName,
			"title":         title,
			"score":         fmt.Sprintf("%.1f", score),
			"flagged":       flagged,
		},
	})
}
