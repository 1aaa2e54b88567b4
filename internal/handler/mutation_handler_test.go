package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/middleware"
	"github.com/lunahq/bulkops-api/internal/models"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

type stubBulkService struct {
	req      dto.CreateMutationRequest
	actor    string
	result   *dto.MutationResult
	approval *dto.ApprovalRequired
	err      error
}

func (s *stubBulkService) Execute(ctx context.Context, req dto.CreateMutationRequest, actor string) (*dto.MutationResult, *dto.ApprovalRequired, error) {
	s.req = req
	s.actor = actor
	return s.result, s.approval, s.err
}

func injectClaims(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	}
}

func newMutationRouter(svc *stubBulkService, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/mutations", injectClaims(claims), NewMutationHandler(svc).Create)
	return r
}

func TestMutationHandlerReturnsResult(t *testing.T) {
	svc := &stubBulkService{result: &dto.MutationResult{UpdatedCount: 3, HistoryEntryID: "hist-1"}}
	router := newMutationRouter(svc, &models.JWTClaims{UserID: "user-1", Role: models.RoleOperator})

	body := `{"objectType":"Opportunity","fieldName":"StageName","newValue":"Closed"}`
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "user-1", svc.actor)
	require.Equal(t, "Opportunity", svc.req.ObjectType)

	var envelope struct {
		Data dto.MutationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.Equal(t, 3, envelope.Data.UpdatedCount)
	require.Equal(t, "hist-1", envelope.Data.HistoryEntryID)
}

func TestMutationHandlerDeferredForApproval(t *testing.T) {
	svc := &stubBulkService{approval: &dto.ApprovalRequired{
		RequiresApproval:  true,
		ApprovalRequestID: "appr-1",
		EstimatedCount:    5000,
	}}
	router := newMutationRouter(svc, &models.JWTClaims{UserID: "user-1", Role: models.RoleOperator})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutations", strings.NewReader(`{"objectType":"Opportunity"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusForbidden, recorder.Code)
	var envelope struct {
		Data dto.ApprovalRequired `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.True(t, envelope.Data.RequiresApproval)
	require.Equal(t, "appr-1", envelope.Data.ApprovalRequestID)
}

func TestMutationHandlerMapsServiceErrors(t *testing.T) {
	svc := &stubBulkService{err: appErrors.Clone(appErrors.ErrValidation, "empty value for field")}
	router := newMutationRouter(svc, &models.JWTClaims{UserID: "user-1"})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutations", strings.NewReader(`{"objectType":"Opportunity"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}

func TestMutationHandlerRejectsMalformedBody(t *testing.T) {
	router := newMutationRouter(&stubBulkService{}, &models.JWTClaims{UserID: "user-1"})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutations", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMutationHandlerRequiresClaims(t *testing.T) {
	router := newMutationRouter(&stubBulkService{}, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutations", strings.NewReader(`{"objectType":"Opportunity"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
