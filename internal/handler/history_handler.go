package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
	"github.com/lunahq/bulkops-api/pkg/response"
)

type historyService interface {
	Summary(ctx context.Context) ([]models.HistoryGroup, error)
	List(ctx context.Context, query dto.HistoryQuery) ([]models.HistoryEntry, error)
	Get(ctx context.Context, id string) (*models.HistoryEntry, error)
}

type revertService interface {
	Revert(ctx context.Context, entryID, actor string) (*dto.RevertResponse, error)
}

// HistoryHandler exposes the audit log and revert endpoints.
type HistoryHandler struct {
	history historyService
	revert  revertService
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(history historyService, revert revertService) *HistoryHandler {
	return &HistoryHandler{history: history, revert: revert}
}

// List godoc
// @Summary List mutation history
// @Tags History
// @Produce json
// @Param objectType query string false "Object type"
// @Param operation query string false "Operation"
// @Param status query string false "Comma separated statuses"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}

	query := dto.HistoryQuery{
		ObjectType: strings.TrimSpace(c.Query("objectType")),
		Operation:  strings.TrimSpace(c.Query("operation")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			query.Status = append(query.Status, part)
		}
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer"))
			return
		}
		query.Limit = limit
	}

	// With no filters the endpoint serves the cached per-object summary.
	if query.ObjectType == "" && query.Operation == "" && len(query.Status) == 0 && query.Limit == 0 {
		groups, err := h.history.Summary(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, groups)
		return
	}

	entries, err := h.history.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}

// Get godoc
// @Summary Get one history entry
// @Tags History
// @Produce json
// @Param id path string true "History entry ID"
// @Success 200 {object} response.Envelope
// @Router /history/{id} [get]
func (h *HistoryHandler) Get(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	entry, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry)
}

// Revert godoc
// @Summary Revert a recorded mutation
// @Tags History
// @Produce json
// @Param id path string true "History entry ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /history/{id}/revert [post]
func (h *HistoryHandler) Revert(c *gin.Context) {
	if h.revert == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "revert service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.revert.Revert(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
