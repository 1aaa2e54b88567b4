package dto

// HistoryQuery mirrors supported listing filters.
type HistoryQuery struct {
	ObjectType string
	Operation  string
	Status     []string
	Limit      int
}

// RevertResponse reports the outcome of POST /history/:id/revert.
type RevertResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  *MutationResult `json:"result,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}
