package originality

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/capstonehub/capstonehub/internal/dispatch"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// QueueName is the dispatch queue for originality checks
const QueueName = "originality-check"

// CheckPayload is the originality-check job payload
type CheckPayload struct {
	SubmissionID string `json:"submissionId"`
	DocumentURL  string `json:"documentUrl"`
}

// RecordedSubmission is what the recorder returns after storing a score, so
// the processor can compose the result notification.
type RecordedSubmission struct {
	ID           string
	Title        string
	StudentName  string
	StudentEmail string
	AdviserName  string
	AdviserEmail string
	Flagged      bool
}

// Recorder persists a check result on the submission it belongs to.
// Recording the same result twice must be harmless; jobs can be re-delivered.
type Recorder interface {
	RecordOriginality(ctx context.Context, submissionID string, score float64) (*RecordedSubmission, error)
}

// Service is the producer-facing surface for queuing originality checks
type Service struct {
	queue dispatch.Queue
	log   *slog.Logger
}

// NewService creates the originality producer service
func NewService(queue dispatch.Queue, log *slog.Logger) *Service {
	return &Service{
		queue: queue,
		log:   log.With(logger.Scope("originality")),
	}
}

// EnqueueCheck records an originality-check job for the submission
func (s *Service) EnqueueCheck(ctx context.Context, submissionID, documentURL string) (string, error) {
	if submissionID == "" {
		return "", fmt.Errorf("originality: submission id is required")
	}
	if documentURL == "" {
		return "", fmt.Errorf("originality: document url is required")
	}

	id, err := s.queue.Enqueue(ctx, QueueName, CheckPayload{
		SubmissionID: submissionID,
		DocumentURL:  documentURL,
	}, dispatch.EnqueueOptions{})
	if err != nil {
		return "", fmt.Errorf("queue originality check: %w", err)
	}

	s.log.Debug("originality check queued",
		slog.String("job_id", id),
		slog.String("submission_id", submissionID))

	return id, nil
}
