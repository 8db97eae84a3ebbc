// Package dispatch provides the asynchronous job dispatch subsystem: a
// durable queue plus concurrency-bounded worker pools used to offload
// side-effecting work (email delivery, originality checks) from the request
// path.
//
// The package is broker-agnostic. Producers enqueue through Queue, consumers
// run a WorkerPool per queue, and both sides talk to a Broker implementation:
// MemoryBroker for tests and broker-less boot, PostgresBroker for durable
// production use (FOR UPDATE SKIP LOCKED claims, same pattern as a Postgres
// job table with retry scheduling).
//
// Delivery is at-least-once with bounded retry. There is no non-retryable
// error classification: every processor failure consumes an attempt.
package dispatch

import (
	"encoding/json"
	"time"
)

// Status is the processing state of a job
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is the unit of work flowing through the dispatch subsystem.
//
// ID, Queue and Payload are immutable after enqueue. Attempt, Status,
// LastError and UpdatedAt are mutated only by the broker during the
// dequeue/ack cycle; a job is owned by at most one worker slot at a time.
type Job struct {
	// ID is the opaque unique identifier assigned at enqueue time
	ID string `json:"id"`
	// Queue names the processor class that handles this job
	Queue string `json:"queue"`
	// Payload is the job-type-specific data, JSON-encoded at enqueue
	Payload json.RawMessage `json:"payload"`
	// Attempt counts processing attempts; incremented when a slot claims
	// the job, so a processor always observes Attempt >= 1
	Attempt int `json:"attempt"`
	// MaxAttempts caps Attempt; a failure at Attempt == MaxAttempts is
	// terminal
	MaxAttempts int `json:"max_attempts"`
	// Priority orders dequeue within a queue (higher first); FIFO within
	// equal priority, approximate under retry traffic
	Priority int `json:"priority"`
	// Backoff is the retry delay policy configured at enqueue
	Backoff Backoff `json:"backoff"`
	// Status is the current lifecycle state
	Status Status `json:"status"`
	// LastError holds the most recent failure description, set while the
	// job waits for a retry and when it reaches StatusFailed
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnmarshalPayload decodes the job payload into dest
func (j *Job) UnmarshalPayload(dest any) error {
	return json.Unmarshal(j.Payload, dest)
}

// Stats holds per-queue job counts by status
type Stats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// truncateError truncates an error message to 500 characters
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
