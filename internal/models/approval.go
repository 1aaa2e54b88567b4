package models

import "time"

// ApprovalStatus tracks the review lifecycle of a deferred mutation.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusDenied   ApprovalStatus = "DENIED"
	ApprovalStatusExecuted ApprovalStatus = "EXECUTED"
)

// ApprovalRequest is a deferred-execution placeholder created when a
// mutation is judged too risky to run immediately. The stored mutation
// payload is replayed verbatim once approved.
type ApprovalRequest struct {
	ID             string         `db:"id" json:"id"`
	ObjectType     string         `db:"object_type" json:"objectType"`
	Mutation       []byte         `db:"mutation" json:"mutation"`
	Reason         string         `db:"reason" json:"reason"`
	EstimatedCount int            `db:"estimated_count" json:"estimatedCount"`
	Status         ApprovalStatus `db:"status" json:"status"`
	RequestedBy    string         `db:"requested_by" json:"requestedBy"`
	RequestedAt    time.Time      `db:"requested_at" json:"requestedAt"`
	ReviewedBy     *string        `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time     `db:"reviewed_at" json:"reviewedAt,omitempty"`
	Note           *string        `db:"note" json:"note,omitempty"`
}

// ApprovalFilter constrains listing queries.
type ApprovalFilter struct {
	Status      []ApprovalStatus
	ObjectType  string
	RequestedBy string
	Limit       int
	Offset      int
}
