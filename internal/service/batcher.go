package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/connector"
	"github.com/lunahq/bulkops-api/internal/models"
)

// runBatches partitions update payloads into bounded batches and executes
// them sequentially against the store. A failed batch marks its records
// failed and never aborts the remaining batches. Both the bulk executor and
// the revert engine write through this path.
func runBatches(
	ctx context.Context,
	conn connector.Connector,
	objectType string,
	updates []models.Record,
	oldValues map[string]interface{},
	batchSize int,
	logger *zap.Logger,
	observer batchObserver,
) []models.BatchResult {
	if batchSize <= 0 || batchSize > connector.MaxRecordsPerCall {
		batchSize = connector.MaxRecordsPerCall
	}
	results := make([]models.BatchResult, 0, len(updates))

	for start := 0; start < len(updates); start += batchSize {
		end := start + batchSize
		if end > len(updates) {
			end = len(updates)
		}
		batch := updates[start:end]

		saved, err := conn.Update(ctx, objectType, batch)
		if err != nil {
			logger.Warn("batch update failed",
				zap.String("object_type", objectType),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			for _, record := range batch {
				id := record.ID()
				results = append(results, models.BatchResult{
					ID:       id,
					Success:  false,
					OldValue: oldValues[id],
					Error:    err.Error(),
				})
			}
			if observer != nil {
				observer.ObserveBatch(objectType, len(batch), 0)
			}
			continue
		}

		succeeded := 0
		for i, record := range batch {
			id := record.ID()
			row := models.BatchResult{ID: id, OldValue: oldValues[id]}
			if i < len(saved) {
				row.Success = saved[i].Success
				if !saved[i].Success {
					row.Error = saved[i].ErrorMessage()
				}
			} else {
				row.Error = "no result returned by store"
			}
			if row.Success {
				succeeded++
			}
			results = append(results, row)
		}
		if observer != nil {
			observer.ObserveBatch(objectType, len(batch), succeeded)
		}
	}

	return results
}
