package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

type stubApprovalService struct {
	lastQuery  dto.ApprovalQuery
	lastDecide dto.ApprovalDecisionRequest
	request    *models.ApprovalRequest
	result     *dto.MutationResult
	err        error
	executes   int
}

func (s *stubApprovalService) List(ctx context.Context, query dto.ApprovalQuery, actor *models.JWTClaims) ([]models.ApprovalRequest, error) {
	s.lastQuery = query
	return nil, s.err
}

func (s *stubApprovalService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ApprovalRequest, error) {
	return s.request, s.err
}

func (s *stubApprovalService) Decide(ctx context.Context, id string, req dto.ApprovalDecisionRequest, reviewer *models.JWTClaims) (*models.ApprovalRequest, error) {
	s.lastDecide = req
	return s.request, s.err
}

func (s *stubApprovalService) Execute(ctx context.Context, id string, actor *models.JWTClaims) (*dto.MutationResult, error) {
	s.executes++
	return s.result, s.err
}

func newApprovalRouter(svc *stubApprovalService, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewApprovalHandler(svc)
	r.GET("/approvals", injectClaims(claims), h.List)
	r.GET("/approvals/:id", injectClaims(claims), h.Get)
	r.POST("/approvals/:id/decision", injectClaims(claims), h.Decide)
	r.POST("/approvals/:id/execute", injectClaims(claims), h.Execute)
	return r
}

func TestApprovalHandlerListParsesQuery(t *testing.T) {
	svc := &stubApprovalService{}
	router := newApprovalRouter(svc, operatorClaims())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/approvals?status=pending,approved&objectType=Opportunity", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, []string{"PENDING", "APPROVED"}, svc.lastQuery.Status)
	require.Equal(t, "Opportunity", svc.lastQuery.ObjectType)
}

func TestApprovalHandlerDecide(t *testing.T) {
	svc := &stubApprovalService{request: &models.ApprovalRequest{ID: "appr-1", Status: models.ApprovalStatusApproved}}
	router := newApprovalRouter(svc, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/approvals/appr-1/decision", strings.NewReader(`{"status":"APPROVED","note":"fine"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "APPROVED", svc.lastDecide.Status)
	require.Equal(t, "fine", svc.lastDecide.Note)
}

func TestApprovalHandlerDecideConflict(t *testing.T) {
	svc := &stubApprovalService{err: appErrors.Clone(appErrors.ErrConflict, "approval request already reviewed")}
	router := newApprovalRouter(svc, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/approvals/appr-1/decision", strings.NewReader(`{"status":"APPROVED"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestApprovalHandlerExecute(t *testing.T) {
	svc := &stubApprovalService{result: &dto.MutationResult{UpdatedCount: 1500}}
	router := newApprovalRouter(svc, operatorClaims())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/approvals/appr-1/execute", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, 1, svc.executes)
}

func TestApprovalHandlerRequiresClaims(t *testing.T) {
	router := newApprovalRouter(&stubApprovalService{}, nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/approvals", nil))

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
