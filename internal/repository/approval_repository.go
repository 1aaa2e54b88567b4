package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lunahq/bulkops-api/internal/models"
)

// UpdateApprovalParams describes a guarded status transition. The update
// only applies while the row still holds Expect, which is what makes
// review and execution exactly-once under concurrent callers.
type UpdateApprovalParams struct {
	ID         string
	Status     models.ApprovalStatus
	Expect     models.ApprovalStatus
	ReviewedBy string
	ReviewedAt time.Time
	Note       *string
}

// ApprovalRepository persists deferred-execution approval requests.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a new pending request.
func (r *ApprovalRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.ApprovalStatusPending
	}

	const query = `INSERT INTO approval_requests
	(id, object_type, mutation, reason, estimated_count, status, requested_by, requested_at)
	VALUES (:id, :object_type, :mutation, :reason, :estimated_count, :status, :requested_by, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

const approvalColumns = `id, object_type, mutation, reason, estimated_count, status, requested_by, requested_at, reviewed_by, reviewed_at, note`

// GetByID fetches one request.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_requests WHERE id = $1`, approvalColumns)
	var request models.ApprovalRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter, newest first.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM approval_requests", approvalColumns))

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ObjectType != "" {
		args = append(args, filter.ObjectType)
		conditions = append(conditions, fmt.Sprintf("object_type = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return requests, nil
}

// UpdateStatus applies a guarded status transition. Returns sql.ErrNoRows
// when the row is missing or no longer in the expected status.
func (r *ApprovalRepository) UpdateStatus(ctx context.Context, params UpdateApprovalParams) error {
	const query = `UPDATE approval_requests
	SET status = $1, reviewed_by = $2, reviewed_at = $3, note = $4
	WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query,
		params.Status, params.ReviewedBy, params.ReviewedAt, params.Note, params.ID, params.Expect)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
