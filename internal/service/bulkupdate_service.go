package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/connector"
	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/internal/soql"
	"github.com/lunahq/bulkops-api/pkg/config"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

type metadataProvider interface {
	Describe(ctx context.Context, objectType string) *models.FieldSet
}

type approvalGate interface {
	Gate(ctx context.Context, req dto.CreateMutationRequest, estimated int, actor string) (*models.ApprovalRequest, error)
}

type historyRecorder interface {
	Record(ctx context.Context, entry *models.HistoryEntry) string
}

type batchObserver interface {
	ObserveBatch(objectType string, size, succeeded int)
}

// BulkUpdateService is the batch mutation executor: it compiles the filter,
// gates the run, pages through every match, snapshots old values, writes
// bounded batches and records one history entry per run.
type BulkUpdateService struct {
	conn      connector.Connector
	metadata  metadataProvider
	validator *MutationValidator
	gate      approvalGate
	history   historyRecorder
	metrics   batchObserver
	cfg       config.BulkConfig
	logger    *zap.Logger
}

// BulkUpdateOption configures the service.
type BulkUpdateOption func(*BulkUpdateService)

// WithBatchObserver attaches batch metrics collection.
func WithBatchObserver(observer batchObserver) BulkUpdateOption {
	return func(s *BulkUpdateService) {
		s.metrics = observer
	}
}

// NewBulkUpdateService constructs the executor.
func NewBulkUpdateService(
	conn connector.Connector,
	metadata metadataProvider,
	validator *MutationValidator,
	gate approvalGate,
	history historyRecorder,
	cfg config.BulkConfig,
	logger *zap.Logger,
	opts ...BulkUpdateOption,
) *BulkUpdateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > connector.MaxRecordsPerCall {
		cfg.MaxBatchSize = connector.MaxRecordsPerCall
	}
	if cfg.ErrorCap <= 0 {
		cfg.ErrorCap = 25
	}
	svc := &BulkUpdateService{
		conn:      conn,
		metadata:  metadata,
		validator: validator,
		gate:      gate,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Execute runs the full pipeline for one mutation request. The three
// outcomes are mutually exclusive: a result (the run happened, possibly
// partially), an approval deferral (nothing happened, a request was
// persisted), or an error (nothing happened).
func (s *BulkUpdateService) Execute(ctx context.Context, req dto.CreateMutationRequest, actor string) (*dto.MutationResult, *dto.ApprovalRequired, error) {
	return s.run(ctx, req, actor, true)
}

// ExecuteApproved runs a previously approved mutation without re-entering
// the approval gate.
func (s *BulkUpdateService) ExecuteApproved(ctx context.Context, req dto.CreateMutationRequest, actor string) (*dto.MutationResult, error) {
	result, _, err := s.run(ctx, req, actor, false)
	return result, err
}

func (s *BulkUpdateService) run(ctx context.Context, req dto.CreateMutationRequest, actor string, gated bool) (*dto.MutationResult, *dto.ApprovalRequired, error) {
	fields := s.metadata.Describe(ctx, req.ObjectType)

	validation := s.validator.Validate(req, fields)
	if !validation.Valid {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(validation.Errors, "; "))
	}
	warnings := append([]string(nil), validation.Warnings...)

	compiled, err := soql.Compile(req, fields)
	if err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, compiled.Warnings...)

	countPage, err := s.conn.Query(ctx, compiled.CountQuery())
	if err != nil {
		return nil, nil, err
	}
	estimated := countPage.TotalSize

	if gated && s.gate != nil {
		request, err := s.gate.Gate(ctx, req, estimated, actor)
		if err != nil {
			return nil, nil, err
		}
		if request != nil {
			return nil, &dto.ApprovalRequired{
				RequiresApproval:  true,
				ApprovalRequestID: request.ID,
				EstimatedCount:    estimated,
				Reason:            request.Reason,
			}, nil
		}
	}

	targetFields := s.targetFields(req)
	records, err := s.fetchAll(ctx, compiled.SelectQuery(targetFields))
	if err != nil {
		return nil, nil, err
	}

	if len(records) == 0 {
		result := &dto.MutationResult{UpdatedCount: 0, ErrorCount: 0, Warnings: warnings}
		result.HistoryEntryID = s.recordHistory(ctx, req, actor, nil, nil)
		return result, nil, nil
	}

	// Old values are captured for every matched record before any update
	// payload exists; revert correctness depends on this ordering.
	oldValues := s.snapshot(records, targetFields, req.MultiField())

	updates := s.buildUpdates(records, req, fields)
	results := s.writeBatches(ctx, req.ObjectType, updates, oldValues)

	result := s.aggregate(results, warnings)
	result.HistoryEntryID = s.recordHistory(ctx, req, actor, results, updates)

	s.logger.Info("bulk mutation completed",
		zap.String("object_type", req.ObjectType),
		zap.String("actor", actor),
		zap.Int("matched", len(records)),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.ErrorCount),
	)
	return result, nil, nil
}

func (s *BulkUpdateService) targetFields(req dto.CreateMutationRequest) []string {
	if !req.MultiField() {
		return []string{req.FieldName}
	}
	names := make([]string, 0, len(req.FieldUpdates))
	for name := range req.FieldUpdates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fetchAll pages through every result using the store's query-more protocol
// until no continuation cursor remains. Pages are strictly sequential; the
// cursor is stateful on the store side.
func (s *BulkUpdateService) fetchAll(ctx context.Context, query string) ([]models.Record, error) {
	page, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	records := append([]models.Record(nil), page.Records...)
	for page.Cursor != "" {
		page, err = s.conn.QueryMore(ctx, page.Cursor)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
	}
	return records, nil
}

// snapshot captures each record's current values for the target fields,
// keyed by record id. Multi-field runs always store a per-field map, even
// with a single entry, so the restore path knows which field each value
// belongs to.
func (s *BulkUpdateService) snapshot(records []models.Record, targetFields []string, multiField bool) map[string]interface{} {
	oldValues := make(map[string]interface{}, len(records))
	for _, record := range records {
		id := record.ID()
		if id == "" {
			continue
		}
		if !multiField {
			oldValues[id] = record[targetFields[0]]
			continue
		}
		perField := make(map[string]interface{}, len(targetFields))
		for _, name := range targetFields {
			perField[name] = record[name]
		}
		oldValues[id] = perField
	}
	return oldValues
}

func (s *BulkUpdateService) buildUpdates(records []models.Record, req dto.CreateMutationRequest, fields *models.FieldSet) []models.Record {
	updates := make([]models.Record, 0, len(records))
	for _, record := range records {
		id := record.ID()
		if id == "" {
			continue
		}
		update := models.Record{"Id": id}
		if req.MultiField() {
			for name, raw := range req.FieldUpdates {
				update[name] = soql.CoerceForFieldType(raw, fields.Field(name))
			}
		} else {
			update[req.FieldName] = soql.CoerceForFieldType(req.NewValue, fields.Field(req.FieldName))
		}
		updates = append(updates, update)
	}
	return updates
}

// writeBatches executes the update payloads through the shared batch
// runner; partial success is a normal outcome.
func (s *BulkUpdateService) writeBatches(ctx context.Context, objectType string, updates []models.Record, oldValues map[string]interface{}) []models.BatchResult {
	return runBatches(ctx, s.conn, objectType, updates, oldValues, s.cfg.MaxBatchSize, s.logger, s.metrics)
}

// aggregate folds per-record results into the run outcome, capping the
// error list to protect memory and response size.
func (s *BulkUpdateService) aggregate(results []models.BatchResult, warnings []string) *dto.MutationResult {
	result := &dto.MutationResult{Warnings: warnings}
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
	if extra := result.ErrorCount - len(result.Errors); extra > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("... and %d more errors", extra))
	}
	return result
}

func (s *BulkUpdateService) recordHistory(ctx context.Context, req dto.CreateMutationRequest, actor string, results []models.BatchResult, updates []models.Record) string {
	if s.history == nil {
		return ""
	}

	successCount, failCount := 0, 0
	for _, row := range results {
		if row.Success {
			successCount++
		} else {
			failCount++
		}
	}

	status := models.HistoryStatusSuccess
	if failCount > 0 {
		status = models.HistoryStatusPartial
		if successCount == 0 {
			status = models.HistoryStatusFailed
		}
	}

	data := models.HistoryData{Results: results}
	if len(updates) > 0 {
		sample := make(map[string]interface{}, len(updates[0]))
		for k, v := range updates[0] {
			if k != "Id" {
				sample[k] = v
			}
		}
		data.SampleUpdate = sample
	}
	if len(results) > 0 {
		data.SampleUpdateOldValue = results[0].OldValue
	}

	meta := models.HistoryMetadata{
		UpdateMode:   req.UpdateMode,
		SuccessCount: successCount,
		FailCount:    failCount,
	}
	if req.MultiField() {
		meta.FieldUpdates = make(map[string]interface{}, len(req.FieldUpdates))
		for name, value := range req.FieldUpdates {
			meta.FieldUpdates[name] = value
		}
	} else {
		meta.FieldName = req.FieldName
		meta.OldValue = req.CurrentValue
		meta.NewValue = req.NewValue
	}
	for _, criterion := range req.Filters {
		meta.Filters = append(meta.Filters, map[string]interface{}{
			"field":    criterion.Field,
			"operator": criterion.Operator,
			"value":    criterion.Value,
		})
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("failed to encode history data", zap.Error(err))
		rawData = []byte("{}")
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		s.logger.Warn("failed to encode history metadata", zap.Error(err))
		rawMeta = []byte("{}")
	}

	entry := &models.HistoryEntry{
		Operation:   models.OperationUpdate,
		ObjectType:  req.ObjectType,
		Name:        historyName(req),
		Publisher:   actor,
		Status:      status,
		RecordCount: len(results),
		Data:        rawData,
		Metadata:    rawMeta,
	}
	if len(results) == 1 {
		id := results[0].ID
		entry.RecordID = &id
	}
	return s.history.Record(ctx, entry)
}

func historyName(req dto.CreateMutationRequest) string {
	if req.MultiField() {
		return fmt.Sprintf("Bulk update %s (%d fields)", req.ObjectType, len(req.FieldUpdates))
	}
	return fmt.Sprintf("Bulk update %s.%s", req.ObjectType, req.FieldName)
}
