package models

// Record is one row from the object store, keyed by field name.
type Record map[string]interface{}

// ID returns the record's opaque identifier, if present.
func (r Record) ID() string {
	for _, key := range []string{"Id", "id", "ID"} {
		if v, ok := r[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// QueryPage is one bounded page of query results. A non-empty Cursor means
// more pages remain.
type QueryPage struct {
	Records   []Record `json:"records"`
	TotalSize int      `json:"totalSize"`
	Cursor    string   `json:"cursor,omitempty"`
}

// SaveError describes one per-record store failure.
type SaveError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// SaveResult is the store's outcome for one record in a create/update call.
type SaveResult struct {
	ID      string      `json:"id,omitempty"`
	Success bool        `json:"success"`
	Errors  []SaveError `json:"errors,omitempty"`
}

// ErrorMessage flattens the result's errors into one string.
func (r SaveResult) ErrorMessage() string {
	if len(r.Errors) == 0 {
		return ""
	}
	msg := r.Errors[0].Message
	for _, e := range r.Errors[1:] {
		msg += "; " + e.Message
	}
	return msg
}
