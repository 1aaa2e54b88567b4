package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/internal/repository"
	"github.com/lunahq/bulkops-api/pkg/config"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

type stubApprovalStore struct {
	created   []*models.ApprovalRequest
	byID      map[string]*models.ApprovalRequest
	updates   []repository.UpdateApprovalParams
	updateErr error
	listCalls []models.ApprovalFilter
}

func (s *stubApprovalStore) Create(ctx context.Context, request *models.ApprovalRequest) error {
	request.ID = "appr-1"
	s.created = append(s.created, request)
	return nil
}

func (s *stubApprovalStore) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return request, nil
}

func (s *stubApprovalStore) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	s.listCalls = append(s.listCalls, filter)
	return nil, nil
}

func (s *stubApprovalStore) UpdateStatus(ctx context.Context, params repository.UpdateApprovalParams) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, params)
	return nil
}

type stubExecutor struct {
	calls  int
	req    dto.CreateMutationRequest
	actor  string
	result *dto.MutationResult
	err    error
}

func (e *stubExecutor) ExecuteApproved(ctx context.Context, req dto.CreateMutationRequest, actor string) (*dto.MutationResult, error) {
	e.calls++
	e.req = req
	e.actor = actor
	return e.result, e.err
}

func approvalConfig() config.ApprovalsConfig {
	return config.ApprovalsConfig{
		Enabled:         true,
		RecordThreshold: 1000,
		SensitiveFields: []string{"OwnerId", "Amount"},
	}
}

func adminClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleAdmin}
}

func TestGateAllowsSmallRuns(t *testing.T) {
	store := &stubApprovalStore{}
	svc := NewApprovalService(store, approvalConfig(), nil)

	request, err := svc.Gate(context.Background(), dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "StageName",
		NewValue:   "Closed",
	}, 500, "user-1")
	require.NoError(t, err)
	require.Nil(t, request)
	require.Empty(t, store.created)
}

func TestGateBlocksAboveThreshold(t *testing.T) {
	store := &stubApprovalStore{}
	svc := NewApprovalService(store, approvalConfig(), nil)

	req := dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "StageName",
		NewValue:   "Closed",
	}
	request, err := svc.Gate(context.Background(), req, 1500, "user-1")
	require.NoError(t, err)
	require.NotNil(t, request)
	require.Equal(t, models.ApprovalStatusPending, request.Status)
	require.Equal(t, 1500, request.EstimatedCount)
	assert.Contains(t, request.Reason, "exceeds the approval threshold")

	// The stored payload replays verbatim on execution.
	var stored dto.CreateMutationRequest
	require.NoError(t, json.Unmarshal(request.Mutation, &stored))
	require.Equal(t, req, stored)
}

func TestGateBlocksSensitiveFields(t *testing.T) {
	store := &stubApprovalStore{}
	svc := NewApprovalService(store, approvalConfig(), nil)

	request, err := svc.Gate(context.Background(), dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "ownerid",
		NewValue:   "005xx01",
	}, 10, "user-1")
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Contains(t, request.Reason, "marked sensitive")

	request, err = svc.Gate(context.Background(), dto.CreateMutationRequest{
		ObjectType:   "Opportunity",
		FieldUpdates: map[string]string{"Amount": "0", "StageName": "Closed"},
	}, 10, "user-1")
	require.NoError(t, err)
	require.NotNil(t, request)
}

func TestGateDisabled(t *testing.T) {
	svc := NewApprovalService(&stubApprovalStore{}, config.ApprovalsConfig{Enabled: false}, nil)
	request, err := svc.Gate(context.Background(), dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "OwnerId",
		NewValue:   "005xx01",
	}, 100000, "user-1")
	require.NoError(t, err)
	require.Nil(t, request)
}

func TestDecideApproves(t *testing.T) {
	store := &stubApprovalStore{byID: map[string]*models.ApprovalRequest{
		"appr-1": {ID: "appr-1", Status: models.ApprovalStatusPending, RequestedBy: "user-1"},
	}}
	svc := NewApprovalService(store, approvalConfig(), nil)

	request, err := svc.Decide(context.Background(), "appr-1", dto.ApprovalDecisionRequest{
		Status: "APPROVED",
		Note:   "looks safe",
	}, adminClaims("admin-1"))
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, request.Status)
	require.Equal(t, "admin-1", *request.ReviewedBy)

	require.Len(t, store.updates, 1)
	require.Equal(t, models.ApprovalStatusPending, store.updates[0].Expect)
}

func TestDecideRejectsSelfReview(t *testing.T) {
	store := &stubApprovalStore{byID: map[string]*models.ApprovalRequest{
		"appr-1": {ID: "appr-1", Status: models.ApprovalStatusPending, RequestedBy: "user-1"},
	}}
	svc := NewApprovalService(store, approvalConfig(), nil)

	_, err := svc.Decide(context.Background(), "appr-1", dto.ApprovalDecisionRequest{Status: "APPROVED"}, adminClaims("user-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot review your own mutation")
}

func TestDecideRejectsAlreadyReviewed(t *testing.T) {
	store := &stubApprovalStore{byID: map[string]*models.ApprovalRequest{
		"appr-1": {ID: "appr-1", Status: models.ApprovalStatusDenied, RequestedBy: "user-1"},
	}}
	svc := NewApprovalService(store, approvalConfig(), nil)

	_, err := svc.Decide(context.Background(), "appr-1", dto.ApprovalDecisionRequest{Status: "APPROVED"}, adminClaims("admin-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestDecideLostRaceSurfacesConflict(t *testing.T) {
	store := &stubApprovalStore{
		byID: map[string]*models.ApprovalRequest{
			"appr-1": {ID: "appr-1", Status: models.ApprovalStatusPending, RequestedBy: "user-1"},
		},
		updateErr: sql.ErrNoRows,
	}
	svc := NewApprovalService(store, approvalConfig(), nil)

	_, err := svc.Decide(context.Background(), "appr-1", dto.ApprovalDecisionRequest{Status: "DENIED"}, adminClaims("admin-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestExecuteRunsApprovedMutationOnce(t *testing.T) {
	mutation := dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "StageName",
		NewValue:   "Closed",
	}
	payload, err := json.Marshal(mutation)
	require.NoError(t, err)

	store := &stubApprovalStore{byID: map[string]*models.ApprovalRequest{
		"appr-1": {ID: "appr-1", Status: models.ApprovalStatusApproved, RequestedBy: "user-1", Mutation: payload},
	}}
	executor := &stubExecutor{result: &dto.MutationResult{UpdatedCount: 1500}}
	svc := NewApprovalService(store, approvalConfig(), nil)
	svc.BindExecutor(executor)

	result, err := svc.Execute(context.Background(), "appr-1", adminClaims("admin-1"))
	require.NoError(t, err)
	require.Equal(t, 1500, result.UpdatedCount)
	require.Equal(t, 1, executor.calls)
	require.Equal(t, mutation, executor.req)
	require.Equal(t, "user-1", executor.actor, "the run is attributed to the original requester")

	// The claim happens before execution, guarded on APPROVED.
	require.Len(t, store.updates, 1)
	require.Equal(t, models.ApprovalStatusExecuted, store.updates[0].Status)
	require.Equal(t, models.ApprovalStatusApproved, store.updates[0].Expect)
}

func TestExecuteFailedRunReleasesClaim(t *testing.T) {
	reviewer := "admin-0"
	store := &stubApprovalStore{byID: map[string]*models.ApprovalRequest{
		"appr-1": {
			ID:          "appr-1",
			Status:      models.ApprovalStatusApproved,
			RequestedBy: "user-1",
			ReviewedBy:  &reviewer,
			Mutation:    []byte(`{"objectType":"Opportunity","fieldName":"StageName","newValue":"Closed"}`),
		},
	}}
	executor := &stubExecutor{err: appErrors.ErrConnector}
	svc := NewApprovalService(store, approvalConfig(), nil)
	svc.BindExecutor(executor)

	_, err := svc.Execute(context.Background(), "appr-1", adminClaims("admin-1"))
	require.Error(t, err)
	require.Equal(t, 1, executor.calls)

	// Claim then release: the request goes back to APPROVED so the run can
	// be retried once the store recovers.
	require.Len(t, store.updates, 2)
	assert.Equal(t, models.ApprovalStatusExecuted, store.updates[0].Status)
	assert.Equal(t, models.ApprovalStatusApproved, store.updates[1].Status)
	assert.Equal(t, models.ApprovalStatusExecuted, store.updates[1].Expect)
	assert.Equal(t, reviewer, store.updates[1].ReviewedBy, "release restores the original reviewer")
}

func TestExecuteRejectsUnapprovedRequest(t *testing.T) {
	store := &stubApprovalStore{byID: map[string]*models.ApprovalRequest{
		"appr-1": {ID: "appr-1", Status: models.ApprovalStatusPending, Mutation: []byte(`{}`)},
	}}
	executor := &stubExecutor{}
	svc := NewApprovalService(store, approvalConfig(), nil)
	svc.BindExecutor(executor)

	_, err := svc.Execute(context.Background(), "appr-1", adminClaims("admin-1"))
	require.Error(t, err)
	require.Zero(t, executor.calls)
}

func TestExecuteLostClaimDoesNotRun(t *testing.T) {
	store := &stubApprovalStore{
		byID: map[string]*models.ApprovalRequest{
			"appr-1": {ID: "appr-1", Status: models.ApprovalStatusApproved, Mutation: []byte(`{}`)},
		},
		updateErr: sql.ErrNoRows,
	}
	executor := &stubExecutor{}
	svc := NewApprovalService(store, approvalConfig(), nil)
	svc.BindExecutor(executor)

	_, err := svc.Execute(context.Background(), "appr-1", adminClaims("admin-1"))
	require.Error(t, err)
	require.Zero(t, executor.calls, "losing the claim race must not execute the mutation")
}

func TestListScopesOperatorsToOwnRequests(t *testing.T) {
	store := &stubApprovalStore{}
	svc := NewApprovalService(store, approvalConfig(), nil)

	_, err := svc.List(context.Background(), dto.ApprovalQuery{Status: []string{"pending"}}, &models.JWTClaims{UserID: "user-1", Role: models.RoleOperator})
	require.NoError(t, err)
	require.Len(t, store.listCalls, 1)
	require.Equal(t, "user-1", store.listCalls[0].RequestedBy)
	require.Equal(t, []models.ApprovalStatus{models.ApprovalStatusPending}, store.listCalls[0].Status)

	_, err = svc.List(context.Background(), dto.ApprovalQuery{}, adminClaims("admin-1"))
	require.NoError(t, err)
	require.Empty(t, store.listCalls[1].RequestedBy)
}
