package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lunahq/bulkops-api/internal/models"
)

// HistoryRepository persists the append-only mutation audit log. Retention
// is a bounded ring: each append trims the oldest entries beyond the limit
// inside the same transaction, so concurrent runs never observe an
// interleaved partial write.
type HistoryRepository struct {
	db        *sqlx.DB
	retention int
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB, retention int) *HistoryRepository {
	if retention <= 0 {
		retention = 10000
	}
	return &HistoryRepository{db: db, retention: retention}
}

// Append inserts one entry and evicts the oldest beyond retention.
func (r *HistoryRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.PublishedAt.IsZero() {
		entry.PublishedAt = time.Now().UTC()
	}
	if len(entry.Data) == 0 {
		entry.Data = []byte("{}")
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = []byte("{}")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO history_entries
	(id, operation, object_type, name, record_id, publisher, published_at, status, record_count, data, metadata)
	VALUES (:id, :operation, :object_type, :name, :record_id, :publisher, :published_at, :status, :record_count, :data, :metadata)`
	if _, err := tx.NamedExecContext(ctx, insert, entry); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	const trim = `DELETE FROM history_entries WHERE id IN (
		SELECT id FROM history_entries ORDER BY published_at DESC, id OFFSET $1
	)`
	if _, err := tx.ExecContext(ctx, trim, r.retention); err != nil {
		return fmt.Errorf("trim history retention: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history append: %w", err)
	}
	return nil
}

const historyColumns = `id, operation, object_type, name, record_id, publisher, published_at, status, record_count, data, metadata`

// GetByID fetches one entry.
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*models.HistoryEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM history_entries WHERE id = $1`, historyColumns)
	var entry models.HistoryEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns entries matching the filter, latest first.
func (r *HistoryRepository) List(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM history_entries", historyColumns))

	conditions := make([]string, 0, 4)
	if filter.ObjectType != "" {
		args = append(args, filter.ObjectType)
		conditions = append(conditions, fmt.Sprintf("object_type = $%d", len(args)))
	}
	if filter.Operation != "" {
		args = append(args, filter.Operation)
		conditions = append(conditions, fmt.Sprintf("operation = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Publisher != "" {
		args = append(args, filter.Publisher)
		conditions = append(conditions, fmt.Sprintf("publisher = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY published_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	return entries, nil
}

// GroupedSummary returns the latest entries per object type.
func (r *HistoryRepository) GroupedSummary(ctx context.Context, perGroup int) ([]models.HistoryGroup, error) {
	if perGroup <= 0 {
		perGroup = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM (
		SELECT %s, ROW_NUMBER() OVER (PARTITION BY object_type ORDER BY published_at DESC) AS rn
		FROM history_entries
	) ranked WHERE rn <= $1 ORDER BY object_type, published_at DESC`, historyColumns, historyColumns)

	var entries []models.HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, perGroup); err != nil {
		return nil, fmt.Errorf("history summary: %w", err)
	}

	groups := make([]models.HistoryGroup, 0)
	index := make(map[string]int)
	for _, entry := range entries {
		i, ok := index[entry.ObjectType]
		if !ok {
			i = len(groups)
			index[entry.ObjectType] = i
			groups = append(groups, models.HistoryGroup{ObjectType: entry.ObjectType})
		}
		groups[i].Entries = append(groups[i].Entries, entry)
	}
	return groups, nil
}
