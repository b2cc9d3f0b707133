package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/application/dto"
	appservice "github.com/dmirchev92/server-maystorfix-sub010/internal/application/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
)

// ChatHandler exposes the provider and chat-facing endpoints.
type ChatHandler struct {
	service *appservice.ChatAccessService
}

// NewChatHandler creates the handler.
func NewChatHandler(service *appservice.ChatAccessService) *ChatHandler {
	return &ChatHandler{service: service}
}

// Initialize makes a provider chat-ready and returns its chat URL.
// POST /api/v1/chat/providers/:provider_id/init
func (h *ChatHandler) Initialize(c *gin.Context) {
	providerID := c.Param("provider_id")
	if providerID == "" {
		respondError(c, errors.ErrInvalidRequest("provider_id is required"))
		return
	}

	url, identity, token, err := h.service.ChatURL(c.Request.Context(), providerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.InitializeResponse{
		ProviderID: providerID,
		PublicID:   identity.PublicID,
		ChatURL:    url,
		ExpiresAt:  token.ExpiresAt,
	}))
}

// ChatURL returns the shareable chat link.
// GET /api/v1/chat/providers/:provider_id/url
func (h *ChatHandler) ChatURL(c *gin.Context) {
	providerID := c.Param("provider_id")

	url, _, token, err := h.service.ChatURL(c.Request.Context(), providerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.ChatURLResponse{
		ChatURL:   url,
		ExpiresAt: token.ExpiresAt,
	}))
}

// CurrentToken returns the issued token without minting.
// GET /api/v1/chat/providers/:provider_id/token
func (h *ChatHandler) CurrentToken(c *gin.Context) {
	providerID := c.Param("provider_id")

	token, url, err := h.service.CurrentToken(c.Request.Context(), providerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.CurrentTokenResponse{
		TokenValue: token.Value,
		ChatURL:    url,
		ExpiresAt:  token.ExpiresAt,
	}))
}

// Regenerate supersedes the current token and mints a fresh one.
// POST /api/v1/chat/providers/:provider_id/regenerate
func (h *ChatHandler) Regenerate(c *gin.Context) {
	providerID := c.Param("provider_id")

	token, url, err := h.service.ForceRegenerate(c.Request.Context(), providerID, c.ClientIP())
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok && appErr.Code() == errors.CodeRateLimited {
			seconds := int(appErr.RetryAfter().Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.ChatURLResponse{
		ChatURL:   url,
		ExpiresAt: token.ExpiresAt,
	}))
}

// Validate converts a chat link open into a session.
// POST /api/v1/chat/validate
func (h *ChatHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest("public_id and token_value are required"))
		return
	}

	session, err := h.service.ValidateAndConsume(c.Request.Context(), req.PublicID, req.TokenValue)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.SessionResponse{
		SessionID:      session.ID,
		ProviderID:     session.ProviderID,
		ConversationID: session.ConversationID,
		CreatedAt:      session.CreatedAt,
	}))
}

// Session confirms a session still exists.
// GET /api/v1/chat/sessions/:session_id
func (h *ChatHandler) Session(c *gin.Context) {
	sessionID := c.Param("session_id")

	session, err := h.service.ValidateSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.SessionResponse{
		SessionID:      session.ID,
		ProviderID:     session.ProviderID,
		ConversationID: session.ConversationID,
		CreatedAt:      session.CreatedAt,
	}))
}
