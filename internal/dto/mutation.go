package dto

// Update modes accepted by POST /mutations.
const (
	UpdateModeAll      = "all"
	UpdateModeSpecific = "specific"
)

// FilterCriterion is one {field, operator, value} triple. Triples are
// AND-combined.
type FilterCriterion struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// ParentFilter targets records belonging to a parent record, with the
// reference-field name resolved from live metadata at run time.
type ParentFilter struct {
	ObjectType string `json:"objectType" validate:"required"`
	ID         string `json:"id" validate:"required"`
}

// CreateMutationRequest is the body of POST /mutations. Single-field mode
// sets FieldName/NewValue; multi-field mode sets FieldUpdates instead.
type CreateMutationRequest struct {
	ObjectType   string            `json:"objectType" validate:"required"`
	UpdateMode   string            `json:"updateMode"`
	FieldName    string            `json:"fieldName"`
	CurrentValue string            `json:"currentValue"`
	NewValue     string            `json:"newValue"`
	FieldUpdates map[string]string `json:"fieldUpdates,omitempty"`
	Filters      []FilterCriterion `json:"filters,omitempty"`
	Parent       *ParentFilter     `json:"parent,omitempty"`
}

// MultiField reports whether the request carries per-field updates.
func (r CreateMutationRequest) MultiField() bool {
	return len(r.FieldUpdates) > 0
}

// MutationResult reports a completed run. Partial failure is a normal
// completion state, never an error.
type MutationResult struct {
	UpdatedCount   int      `json:"updatedCount"`
	ErrorCount     int      `json:"errorCount"`
	Errors         []string `json:"errors,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	HistoryEntryID string   `json:"historyEntryId,omitempty"`
}

// ApprovalRequired is returned instead of a result when the approval gate
// blocks direct execution.
type ApprovalRequired struct {
	RequiresApproval  bool   `json:"requiresApproval"`
	ApprovalRequestID string `json:"approvalRequestId"`
	EstimatedCount    int    `json:"estimatedCount"`
	Reason            string `json:"reason"`
}
