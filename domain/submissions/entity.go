package submissions

import (
	"time"

	"github.com/uptrace/bun"
)

// Status is the review state of a submission
type Status string

const (
	// StatusSubmitted means the submission is in and the originality check
	// is queued or running
	StatusSubmitted Status = "submitted"
	// StatusPassed means the originality check scored above the threshold
	StatusPassed Status = "passed"
	// StatusFlagged means the originality check scored below the threshold
	// and the submission needs manual review
	StatusFlagged Status = "flagged"
	// StatusApproved is set by the adviser after review
	StatusApproved Status = "approved"
	// StatusRejected is set by the adviser after review
	StatusRejected Status = "rejected"
)

// valid adviser decisions on a reviewable submission
var decisionStatuses = map[Status]bool{
	StatusApproved: true,
	StatusRejected: true,
}

// Submission is a capstone project submission
type Submission struct {
	bun.BaseModel `bun:"table:submissions,alias:s"`

	ID                   string     `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Title                string     `bun:"title,notnull" json:"title"`
	Abstract             string     `bun:"abstract,notnull,default:''" json:"abstract"`
	StudentName          string     `bun:"student_name,notnull" json:"studentName"`
	StudentEmail         string     `bun:"student_email,notnull" json:"studentEmail"`
	AdviserName          string     `bun:"adviser_name,notnull,default:''" json:"adviserName"`
	AdviserEmail         string     `bun:"adviser_email,notnull,default:''" json:"adviserEmail"`
	DocumentURL          string     `bun:"document_url,notnull" json:"documentUrl"`
	Status               Status     `bun:"status,notnull,default:'submitted'" json:"status"`
	OriginalityScore     *float64   `bun:"originality_score" json:"originalityScore,omitempty"`
	OriginalityCheckedAt *time.Time `bun:"originality_checked_at" json:"originalityCheckedAt,omitempty"`
	CreatedAt            time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// ListParams filters submission listings
type ListParams struct {
	Status       Status
	StudentEmail string
	AdviserEmail string
	Limit        int
	Offset       int
}

// ListResponse wraps the submission list
type ListResponse struct {
	Data  []Submission `json:"data"`
	Total int64        `json:"total"`
}

// CreateRequest is the payload for creating a submission
type CreateRequest struct {
	Title        string `json:"title"`
	Abstract     string `json:"abstract"`
	StudentName  string `json:"studentName"`
	StudentEmail string `json:"studentEmail"`
	AdviserName  string `json:"adviserName"`
	AdviserEmail string `json:"adviserEmail"`
	DocumentURL  string `json:"documentUrl"`
}

// DecisionRequest is the payload for an adviser decision
type DecisionRequest struct {
	Status Status `json:"status"`
}
