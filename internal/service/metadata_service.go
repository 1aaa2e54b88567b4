package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/connector"
	"github.com/lunahq/bulkops-api/internal/models"
)

// MetadataService fetches field descriptors for one object type. Metadata is
// fetched once per mutation run and never cached across runs, since the
// store schema can change between runs.
type MetadataService struct {
	conn   connector.Connector
	logger *zap.Logger
}

// NewMetadataService constructs the service.
func NewMetadataService(conn connector.Connector, logger *zap.Logger) *MetadataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataService{conn: conn, logger: logger}
}

// Describe returns the field set for an object type. A describe failure is
// non-fatal: callers get an empty set, treat unknown fields as opaque
// strings, and the system degrades instead of blocking all mutation.
func (s *MetadataService) Describe(ctx context.Context, objectType string) *models.FieldSet {
	descriptors, err := s.conn.Describe(ctx, objectType)
	if err != nil {
		s.logger.Warn("describe failed, proceeding without field metadata",
			zap.String("object_type", objectType),
			zap.Error(err),
		)
		return models.NewFieldSet(objectType, nil)
	}
	return models.NewFieldSet(objectType, descriptors)
}
