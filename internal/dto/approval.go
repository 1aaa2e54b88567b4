package dto

// ApprovalDecisionRequest captures reviewer decision and optional note.
type ApprovalDecisionRequest struct {
	Status string `json:"status" validate:"required,oneof=APPROVED DENIED"`
	Note   string `json:"note"`
}

// ApprovalQuery mirrors supported listing filters.
type ApprovalQuery struct {
	Status     []string
	ObjectType string
}
