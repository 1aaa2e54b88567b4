package models

import (
	"encoding/json"
	"time"
)

// Operation enumerates the mutation kinds recorded in history.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationRevert Operation = "revert"
)

// HistoryStatus captures the overall outcome of one mutation run.
type HistoryStatus string

const (
	HistoryStatusSuccess HistoryStatus = "success"
	HistoryStatusFailed  HistoryStatus = "failed"
	HistoryStatusPartial HistoryStatus = "partial"
)

// BatchResult is the per-record outcome of a mutation run. OldValue is the
// value captured before any write; it is what the revert engine restores.
type BatchResult struct {
	ID       string      `json:"id"`
	Success  bool        `json:"success"`
	OldValue interface{} `json:"oldValue"`
	Error    string      `json:"error,omitempty"`
}

// HistoryData is the JSONB payload carrying per-record detail.
type HistoryData struct {
	Results              []BatchResult          `json:"results,omitempty"`
	SampleUpdate         map[string]interface{} `json:"sampleUpdate,omitempty"`
	SampleUpdateOldValue interface{}            `json:"sampleUpdateOldValue,omitempty"`
	Snapshot             Record                 `json:"snapshot,omitempty"`
}

// HistoryMetadata is the JSONB payload describing what the run changed.
type HistoryMetadata struct {
	FieldName         string                   `json:"fieldName,omitempty"`
	UpdateMode        string                   `json:"updateMode,omitempty"`
	OldValue          interface{}              `json:"oldValue,omitempty"`
	NewValue          interface{}              `json:"newValue,omitempty"`
	FieldUpdates      map[string]interface{}   `json:"fieldUpdates,omitempty"`
	Filters           []map[string]interface{} `json:"filters,omitempty"`
	SuccessCount      int                      `json:"successCount"`
	FailCount         int                      `json:"failCount"`
	RevertedEntryID   string                   `json:"revertedEntryId,omitempty"`
	DegradedOldValues bool                     `json:"degradedOldValues,omitempty"`
}

// HistoryEntry is one immutable audit record of a mutation run. A revert
// creates a new entry referencing the original; entries are never mutated.
type HistoryEntry struct {
	ID          string        `db:"id" json:"id"`
	Operation   Operation     `db:"operation" json:"operation"`
	ObjectType  string        `db:"object_type" json:"objectType"`
	Name        string        `db:"name" json:"name"`
	RecordID    *string       `db:"record_id" json:"recordId"`
	Publisher   string        `db:"publisher" json:"publisher"`
	PublishedAt time.Time     `db:"published_at" json:"publishedAt"`
	Status      HistoryStatus `db:"status" json:"status"`
	RecordCount int           `db:"record_count" json:"recordCount"`
	Data        []byte        `db:"data" json:"data,omitempty"`
	Metadata    []byte        `db:"metadata" json:"metadata,omitempty"`
}

// DecodeData unmarshals the data payload, tolerating absence.
func (e *HistoryEntry) DecodeData() (*HistoryData, error) {
	data := &HistoryData{}
	if len(e.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(e.Data, data); err != nil {
		return nil, err
	}
	return data, nil
}

// DecodeMetadata unmarshals the metadata payload, tolerating absence.
func (e *HistoryEntry) DecodeMetadata() (*HistoryMetadata, error) {
	meta := &HistoryMetadata{}
	if len(e.Metadata) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(e.Metadata, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// HistoryFilter constrains listing queries.
type HistoryFilter struct {
	ObjectType string
	Operation  Operation
	Status     []HistoryStatus
	Publisher  string
	Limit      int
	Offset     int
}

// HistoryGroup is the per-object-type summary returned by GET /history.
type HistoryGroup struct {
	ObjectType string         `json:"objectType"`
	Entries    []HistoryEntry `json:"entries"`
}
