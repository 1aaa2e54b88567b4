package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

type historyStore interface {
	Append(ctx context.Context, entry *models.HistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.HistoryEntry, error)
	List(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error)
	GroupedSummary(ctx context.Context, perGroup int) ([]models.HistoryGroup, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const historySummaryCacheKey = "history:summary"

// HistoryService owns the append-only mutation audit log.
type HistoryService struct {
	repo       historyStore
	cache      summaryCache
	cacheTTL   time.Duration
	groupLimit int
	logger     *zap.Logger
}

// NewHistoryService constructs the service. The cache is optional.
func NewHistoryService(repo historyStore, cache summaryCache, cacheTTL time.Duration, groupLimit int, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if groupLimit <= 0 {
		groupLimit = 50
	}
	return &HistoryService{
		repo:       repo,
		cache:      cache,
		cacheTTL:   cacheTTL,
		groupLimit: groupLimit,
		logger:     logger,
	}
}

// Record appends one entry and returns its id. Logging failures never
// unwind the caller's success path: the mutation's outcome stands even when
// the audit write fails, and the failure goes to the operational log.
func (s *HistoryService) Record(ctx context.Context, entry *models.HistoryEntry) string {
	if entry == nil {
		return ""
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append history entry",
			zap.String("object_type", entry.ObjectType),
			zap.String("operation", string(entry.Operation)),
			zap.Error(err),
		)
		return ""
	}
	s.invalidateSummary(ctx)
	return entry.ID
}

// Get returns one full history entry.
func (s *HistoryService) Get(ctx context.Context, id string) (*models.HistoryEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history entry")
	}
	return entry, nil
}

// List returns entries matching the query, latest first.
func (s *HistoryService) List(ctx context.Context, query dto.HistoryQuery) ([]models.HistoryEntry, error) {
	filter := models.HistoryFilter{
		ObjectType: strings.TrimSpace(query.ObjectType),
		Operation:  models.Operation(strings.ToLower(strings.TrimSpace(query.Operation))),
		Limit:      query.Limit,
	}
	for _, raw := range query.Status {
		filter.Status = append(filter.Status, models.HistoryStatus(strings.ToLower(strings.TrimSpace(raw))))
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list history")
	}
	return entries, nil
}

// Summary returns the per-object-type grouped view, cached briefly since it
// backs the most frequently polled endpoint.
func (s *HistoryService) Summary(ctx context.Context) ([]models.HistoryGroup, error) {
	if s.cache != nil {
		var cached []models.HistoryGroup
		if err := s.cache.Get(ctx, historySummaryCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	groups, err := s.repo.GroupedSummary(ctx, s.groupLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build history summary")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, historySummaryCacheKey, groups, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache history summary", zap.Error(err))
		}
	}
	return groups, nil
}

func (s *HistoryService) invalidateSummary(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, historySummaryCacheKey); err != nil {
		s.logger.Warn("failed to invalidate history summary cache", zap.Error(err))
	}
}
