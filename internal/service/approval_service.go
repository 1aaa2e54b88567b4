package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/internal/repository"
	"github.com/lunahq/bulkops-api/pkg/config"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

type approvalStore interface {
	Create(ctx context.Context, request *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error)
	UpdateStatus(ctx context.Context, params repository.UpdateApprovalParams) error
}

// approvedExecutor runs a stored mutation without re-entering the approval
// gate. Bound after construction to break the service cycle with the bulk
// executor.
type approvedExecutor interface {
	ExecuteApproved(ctx context.Context, req dto.CreateMutationRequest, actor string) (*dto.MutationResult, error)
}

// ApprovalService decides whether a mutation may run immediately and owns
// the deferred-execution workflow for blocked ones.
type ApprovalService struct {
	repo     approvalStore
	cfg      config.ApprovalsConfig
	executor approvedExecutor
	logger   *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(repo approvalStore, cfg config.ApprovalsConfig, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{repo: repo, cfg: cfg, logger: logger}
}

// BindExecutor attaches the bulk executor used by Execute.
func (s *ApprovalService) BindExecutor(executor approvedExecutor) {
	s.executor = executor
}

// Gate applies the approval policy. A nil return means the mutation may
// proceed; a non-nil ApprovalRequest means it was persisted and the caller
// must not mutate anything.
func (s *ApprovalService) Gate(ctx context.Context, req dto.CreateMutationRequest, estimated int, actor string) (*models.ApprovalRequest, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}

	reason := s.blockReason(req, estimated)
	if reason == "" {
		return nil, nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot mutation")
	}

	request := &models.ApprovalRequest{
		ObjectType:     req.ObjectType,
		Mutation:       payload,
		Reason:         reason,
		EstimatedCount: estimated,
		Status:         models.ApprovalStatusPending,
		RequestedBy:    actor,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval request")
	}

	s.logger.Info("mutation deferred for approval",
		zap.String("approval_id", request.ID),
		zap.String("object_type", req.ObjectType),
		zap.Int("estimated", estimated),
		zap.String("reason", reason),
	)
	return request, nil
}

func (s *ApprovalService) blockReason(req dto.CreateMutationRequest, estimated int) string {
	if s.cfg.RecordThreshold > 0 && estimated > s.cfg.RecordThreshold {
		return fmt.Sprintf("estimated %d records exceeds the approval threshold of %d", estimated, s.cfg.RecordThreshold)
	}
	for _, sensitive := range s.cfg.SensitiveFields {
		if req.MultiField() {
			for name := range req.FieldUpdates {
				if strings.EqualFold(name, sensitive) {
					return fmt.Sprintf("field %q is marked sensitive", sensitive)
				}
			}
			continue
		}
		if strings.EqualFold(req.FieldName, sensitive) {
			return fmt.Sprintf("field %q is marked sensitive", sensitive)
		}
	}
	return ""
}

// List returns approval requests matching the query.
func (s *ApprovalService) List(ctx context.Context, query dto.ApprovalQuery, actor *models.JWTClaims) ([]models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ApprovalFilter{ObjectType: strings.TrimSpace(query.ObjectType)}
	for _, raw := range query.Status {
		filter.Status = append(filter.Status, models.ApprovalStatus(strings.ToUpper(strings.TrimSpace(raw))))
	}
	if actor.Role == models.RoleOperator {
		filter.RequestedBy = actor.UserID
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approval requests")
	}
	return requests, nil
}

// Get returns one approval request.
func (s *ApprovalService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval request")
	}
	return request, nil
}

// Decide records the reviewer's verdict. Requesters cannot review their own
// mutations.
func (s *ApprovalService) Decide(ctx context.Context, id string, req dto.ApprovalDecisionRequest, reviewer *models.JWTClaims) (*models.ApprovalRequest, error) {
	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.Get(ctx, id, reviewer)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "approval request already reviewed")
	}
	if request.RequestedBy == reviewer.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot review your own mutation")
	}

	status := models.ApprovalStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status != models.ApprovalStatusApproved && status != models.ApprovalStatusDenied {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or DENIED")
	}

	now := time.Now().UTC()
	params := repository.UpdateApprovalParams{
		ID:         request.ID,
		Status:     status,
		Expect:     models.ApprovalStatusPending,
		ReviewedBy: reviewer.UserID,
		ReviewedAt: now,
		Note:       optionalString(req.Note),
	}
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "approval request already processed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update approval request")
	}

	request.Status = status
	request.ReviewedBy = &reviewer.UserID
	request.ReviewedAt = &now
	if req.Note != "" {
		request.Note = params.Note
	}
	return request, nil
}

// Execute runs an approved mutation exactly once, bypassing the gate, and
// marks the request executed.
func (s *ApprovalService) Execute(ctx context.Context, id string, actor *models.JWTClaims) (*dto.MutationResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.executor == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "approval executor not configured")
	}

	request, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("approval request is %s, not APPROVED", request.Status))
	}

	var mutation dto.CreateMutationRequest
	if err := json.Unmarshal(request.Mutation, &mutation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored mutation payload is corrupt")
	}

	// Claim the request before executing so concurrent calls cannot run the
	// same mutation twice.
	now := time.Now().UTC()
	claim := repository.UpdateApprovalParams{
		ID:         request.ID,
		Status:     models.ApprovalStatusExecuted,
		Expect:     models.ApprovalStatusApproved,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
	}
	if err := s.repo.UpdateStatus(ctx, claim); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "approval request already executed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim approval request")
	}

	result, err := s.executor.ExecuteApproved(ctx, mutation, request.RequestedBy)
	if err != nil {
		// An executor error means no batch was written, so the claim can be
		// released for a retry once the underlying failure clears.
		s.releaseClaim(ctx, request, now)
		s.logger.Error("approved mutation failed",
			zap.String("approval_id", request.ID),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

// releaseClaim rolls an EXECUTED claim back to APPROVED after a run that
// mutated nothing, restoring the original reviewer attribution.
func (s *ApprovalService) releaseClaim(ctx context.Context, request *models.ApprovalRequest, claimedAt time.Time) {
	release := repository.UpdateApprovalParams{
		ID:         request.ID,
		Status:     models.ApprovalStatusApproved,
		Expect:     models.ApprovalStatusExecuted,
		ReviewedAt: claimedAt,
		Note:       request.Note,
	}
	if request.ReviewedBy != nil {
		release.ReviewedBy = *request.ReviewedBy
	}
	if request.ReviewedAt != nil {
		release.ReviewedAt = *request.ReviewedAt
	}
	if err := s.repo.UpdateStatus(ctx, release); err != nil {
		s.logger.Error("failed to release approval claim",
			zap.String("approval_id", request.ID),
			zap.Error(err),
		)
	}
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
