package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/application/dto"
	appservice "github.com/dmirchev92/server-maystorfix-sub010/internal/application/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
)

// AdminHandler exposes the operator endpoints behind admin auth.
type AdminHandler struct {
	service *appservice.ChatAccessService
}

// NewAdminHandler creates the handler.
func NewAdminHandler(service *appservice.ChatAccessService) *AdminHandler {
	return &AdminHandler{service: service}
}

// Stats returns a provider's token history.
// GET /api/v1/admin/providers/:provider_id/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	providerID := c.Param("provider_id")
	if providerID == "" {
		respondError(c, errors.ErrInvalidRequest("provider_id is required"))
		return
	}

	stats, err := h.service.TokenStats(c.Request.Context(), providerID)
	if err != nil {
		// admin callers get the precise code, unlike the public surface
		if appErr, ok := errors.AsAppError(err); ok {
			c.JSON(appErr.HTTPStatus(), dto.Fail(string(appErr.Code()), appErr.Error()))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.StatsResponse{
		ProviderID:      stats.ProviderID,
		IssuedCount:     stats.IssuedCount,
		ConsumedCount:   stats.ConsumedCount,
		SupersededCount: stats.SupersededCount,
		ExpiredCount:    stats.ExpiredCount,
		LastIssuedAt:    stats.LastIssuedAt,
		LastConsumedAt:  stats.LastConsumedAt,
	}))
}

// Cleanup triggers an expiry sweep on demand.
// POST /api/v1/admin/cleanup
func (h *AdminHandler) Cleanup(c *gin.Context) {
	count, err := h.service.CleanupExpired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.CleanupResponse{ExpiredCount: count}))
}
