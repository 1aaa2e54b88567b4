package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/connector"
	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/internal/soql"
	"github.com/lunahq/bulkops-api/pkg/config"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

type revertHistory interface {
	Get(ctx context.Context, id string) (*models.HistoryEntry, error)
	Record(ctx context.Context, entry *models.HistoryEntry) string
}

// RevertService reconstructs and applies the inverse of a logged mutation.
// Every revert is itself logged as a new forward-only history entry; the
// original entry is never touched.
type RevertService struct {
	conn    connector.Connector
	history revertHistory
	cfg     config.BulkConfig
	metrics batchObserver
	logger  *zap.Logger
}

// NewRevertService constructs the engine.
func NewRevertService(conn connector.Connector, history revertHistory, cfg config.BulkConfig, metrics batchObserver, logger *zap.Logger) *RevertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ErrorCap <= 0 {
		cfg.ErrorCap = 25
	}
	return &RevertService{conn: conn, history: history, cfg: cfg, metrics: metrics, logger: logger}
}

// Revert applies the inverse of the given history entry.
func (s *RevertService) Revert(ctx context.Context, entryID, actor string) (*dto.RevertResponse, error) {
	entry, err := s.history.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := checkEligibility(entry); err != nil {
		return nil, err
	}

	switch entry.Operation {
	case models.OperationCreate:
		return s.revertCreate(ctx, entry, actor)
	case models.OperationUpdate:
		return s.revertUpdate(ctx, entry, actor)
	case models.OperationDelete:
		return s.revertDelete(ctx, entry, actor)
	default:
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible,
			fmt.Sprintf("operation %q cannot be reverted", entry.Operation))
	}
}

func checkEligibility(entry *models.HistoryEntry) error {
	if entry.Operation == models.OperationRevert {
		return appErrors.Clone(appErrors.ErrRevertIneligible, "revert entries cannot themselves be reverted")
	}
	if entry.Status != models.HistoryStatusSuccess {
		return appErrors.Clone(appErrors.ErrRevertIneligible,
			fmt.Sprintf("cannot revert a %s transaction", entry.Status))
	}
	return nil
}

// revertCreate deletes the record the original run created.
func (s *RevertService) revertCreate(ctx context.Context, entry *models.HistoryEntry, actor string) (*dto.RevertResponse, error) {
	recordID := ""
	if entry.RecordID != nil {
		recordID = *entry.RecordID
	}
	if recordID == "" {
		recordID = gjson.GetBytes(entry.Data, "results.0.id").String()
	}
	if recordID == "" {
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible, "created record id not available")
	}

	if err := s.conn.Delete(ctx, entry.ObjectType, recordID); err != nil {
		s.recordRevert(ctx, entry, actor, models.HistoryStatusFailed, nil, false)
		return &dto.RevertResponse{
			Success: false,
			Message: "failed to delete created record",
			Errors:  []string{err.Error()},
		}, nil
	}

	s.recordRevert(ctx, entry, actor, models.HistoryStatusSuccess, []models.BatchResult{{ID: recordID, Success: true}}, false)
	return &dto.RevertResponse{
		Success: true,
		Message: fmt.Sprintf("deleted %s %s", entry.ObjectType, recordID),
		Result:  &dto.MutationResult{UpdatedCount: 1},
	}, nil
}

// revertUpdate restores each successfully updated record to its captured
// old value through the same batched-update mechanism as forward runs.
func (s *RevertService) revertUpdate(ctx context.Context, entry *models.HistoryEntry, actor string) (*dto.RevertResponse, error) {
	data, err := entry.DecodeData()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible, "history data payload is corrupt")
	}

	fieldName, multiField := extractFieldName(entry)
	if fieldName == "" && !multiField {
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible,
			"could not determine which field the original mutation changed")
	}

	if !hasOldValues(entry) {
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible, "original data not available")
	}

	degraded := usesRepresentativeOldValue(entry)
	representative := gjson.GetBytes(entry.Metadata, "oldValue").Value()

	updates := make([]models.Record, 0, len(data.Results))
	restored := make(map[string]interface{}, len(data.Results))
	for _, row := range data.Results {
		if !row.Success || row.ID == "" {
			continue
		}
		update := models.Record{"Id": row.ID}
		switch old := row.OldValue.(type) {
		case map[string]interface{}:
			// multi-field runs store one old value per field
			for name, value := range old {
				update[name] = normalizeOldValue(value)
			}
		default:
			value := row.OldValue
			if degraded {
				value = representative
			}
			update[fieldName] = normalizeOldValue(value)
		}
		updates = append(updates, update)
		restored[row.ID] = row.OldValue
	}

	if len(updates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible, "original data not available")
	}

	results := runBatches(ctx, s.conn, entry.ObjectType, updates, restored, s.cfg.MaxBatchSize, s.logger, s.metrics)

	result := &dto.MutationResult{}
	for _, row := range results {
		if row.Success {
			result.UpdatedCount++
			continue
		}
		result.ErrorCount++
		if len(result.Errors) < s.cfg.ErrorCap {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", row.ID, row.Error))
		}
	}

	status := models.HistoryStatusSuccess
	if result.ErrorCount > 0 {
		status = models.HistoryStatusPartial
		if result.UpdatedCount == 0 {
			status = models.HistoryStatusFailed
		}
	}
	revertEntryID := s.recordRevert(ctx, entry, actor, status, results, degraded)
	result.HistoryEntryID = revertEntryID

	message := fmt.Sprintf("restored %d of %d records", result.UpdatedCount, len(updates))
	if degraded {
		message += " (from a representative old value; per-record values were unavailable)"
	}
	return &dto.RevertResponse{
		Success: result.ErrorCount == 0,
		Message: message,
		Result:  result,
		Errors:  result.Errors,
	}, nil
}

// revertDelete recreates the record from the stored snapshot.
func (s *RevertService) revertDelete(ctx context.Context, entry *models.HistoryEntry, actor string) (*dto.RevertResponse, error) {
	data, err := entry.DecodeData()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible, "history data payload is corrupt")
	}
	if len(data.Snapshot) == 0 {
		return nil, appErrors.Clone(appErrors.ErrRevertIneligible, "original data not available")
	}

	snapshot := make(models.Record, len(data.Snapshot))
	for k, v := range data.Snapshot {
		if k == "Id" || k == "attributes" {
			continue
		}
		snapshot[k] = v
	}

	saved, err := s.conn.Create(ctx, entry.ObjectType, []models.Record{snapshot})
	if err != nil {
		s.recordRevert(ctx, entry, actor, models.HistoryStatusFailed, nil, false)
		return &dto.RevertResponse{
			Success: false,
			Message: "failed to recreate deleted record",
			Errors:  []string{err.Error()},
		}, nil
	}
	if len(saved) == 0 || !saved[0].Success {
		msg := "store rejected the recreated record"
		if len(saved) > 0 {
			msg = saved[0].ErrorMessage()
		}
		s.recordRevert(ctx, entry, actor, models.HistoryStatusFailed, nil, false)
		return &dto.RevertResponse{Success: false, Message: msg, Errors: []string{msg}}, nil
	}

	s.recordRevert(ctx, entry, actor, models.HistoryStatusSuccess,
		[]models.BatchResult{{ID: saved[0].ID, Success: true}}, false)
	return &dto.RevertResponse{
		Success: true,
		Message: fmt.Sprintf("recreated %s as %s", entry.ObjectType, saved[0].ID),
		Result:  &dto.MutationResult{UpdatedCount: 1},
	}, nil
}

// recordRevert appends the forward-only audit entry for this revert run.
func (s *RevertService) recordRevert(ctx context.Context, original *models.HistoryEntry, actor string, status models.HistoryStatus, results []models.BatchResult, degraded bool) string {
	data := models.HistoryData{Results: results}
	rawData, err := json.Marshal(data)
	if err != nil {
		rawData = []byte("{}")
	}

	fieldName, _ := extractFieldName(original)
	meta := models.HistoryMetadata{
		FieldName:         fieldName,
		RevertedEntryID:   original.ID,
		DegradedOldValues: degraded,
	}
	for _, row := range results {
		if row.Success {
			meta.SuccessCount++
		} else {
			meta.FailCount++
		}
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		rawMeta = []byte("{}")
	}

	entry := &models.HistoryEntry{
		Operation:   models.OperationRevert,
		ObjectType:  original.ObjectType,
		Name:        fmt.Sprintf("Revert of %s", original.Name),
		RecordID:    original.RecordID,
		Publisher:   actor,
		Status:      status,
		RecordCount: len(results),
		Data:        rawData,
		Metadata:    rawMeta,
	}
	return s.history.Record(ctx, entry)
}

// normalizeOldValue converts sentinel and empty old values back to null so
// the restore clears the field rather than writing the sentinel literally.
func normalizeOldValue(value interface{}) interface{} {
	if s, ok := value.(string); ok && soql.IsNone(s) {
		return nil
	}
	return value
}
