package notifications

import (
	"time"

	"github.com/uptrace/bun"
)

// Kind classifies what a notification is about
type Kind string

const (
	KindSubmissionReceived Kind = "submission_received"
	KindOriginalityResult  Kind = "originality_result"
	KindStatusChanged      Kind = "status_changed"
)

// Notification is an in-app notification row
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID             string     `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	RecipientEmail string     `bun:"recipient_email,notnull" json:"recipientEmail"`
	Kind           Kind       `bun:"kind,notnull" json:"kind"`
	Title          string     `bun:"title,notnull" json:"title"`
	Body           string     `bun:"body,notnull,default:''" json:"body"`
	SubmissionID   *string    `bun:"submission_id,type:uuid" json:"submissionId,omitempty"`
	ReadAt         *time.Time `bun:"read_at" json:"readAt,omitempty"`
	DismissedAt    *time.Time `bun:"dismissed_at" json:"dismissedAt,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Stats are aggregate notification counts for one recipient
type Stats struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
}

// ListParams contains parameters for listing notifications
type ListParams struct {
	UnreadOnly bool
	Limit      int
}

// ListResponse wraps the notification list
type ListResponse struct {
	Data []Notification `json:"data"`
}
