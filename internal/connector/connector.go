package connector

import (
	"context"

	"github.com/lunahq/bulkops-api/internal/models"
)

// Connector is the object-store collaborator. One connector handle is passed
// into every core call and scoped to the lifetime of one mutation run; there
// is no process-wide singleton.
type Connector interface {
	// Describe fetches field metadata for one object type.
	Describe(ctx context.Context, objectType string) ([]models.FieldDescriptor, error)
	// Query executes a store-native query and returns the first page.
	Query(ctx context.Context, soql string) (*models.QueryPage, error)
	// QueryMore follows an opaque continuation cursor.
	QueryMore(ctx context.Context, cursor string) (*models.QueryPage, error)
	// Create inserts records and returns one result per record.
	Create(ctx context.Context, objectType string, records []models.Record) ([]models.SaveResult, error)
	// Update writes records (each must carry an Id) and returns one result
	// per record. Callers must respect the per-call record limit.
	Update(ctx context.Context, objectType string, records []models.Record) ([]models.SaveResult, error)
	// Delete removes one record by id.
	Delete(ctx context.Context, objectType, id string) error
}

// MaxRecordsPerCall is the store's hard per-call size limit for create and
// update operations.
const MaxRecordsPerCall = 200
