package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lunahq/bulkops-api/internal/dto"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
	"github.com/lunahq/bulkops-api/pkg/response"
)

type bulkMutationService interface {
	Execute(ctx context.Context, req dto.CreateMutationRequest, actor string) (*dto.MutationResult, *dto.ApprovalRequired, error)
}

// MutationHandler exposes the bulk mutation endpoint.
type MutationHandler struct {
	service bulkMutationService
}

// NewMutationHandler constructs the handler.
func NewMutationHandler(service bulkMutationService) *MutationHandler {
	return &MutationHandler{service: service}
}

// Create godoc
// @Summary Run a bulk mutation
// @Tags Mutations
// @Accept json
// @Produce json
// @Param payload body dto.CreateMutationRequest true "Mutation payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /mutations [post]
func (h *MutationHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "mutation service not configured"))
		return
	}
	var req dto.CreateMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid mutation payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, approval, err := h.service.Execute(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if approval != nil {
		// A blocked run is not an error to the client, but it carries a
		// distinct status so callers can branch without inspecting the body.
		response.JSON(c, http.StatusForbidden, approval, nil)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
