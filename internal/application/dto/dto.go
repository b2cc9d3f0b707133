// Package dto defines the HTTP request and response shapes.
package dto

import "time"

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries the client-facing error.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK wraps data in a success envelope.
func OK(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// Fail builds an error envelope.
func Fail(code, message string) Response {
	return Response{Success: false, Error: &ErrorBody{Code: code, Message: message}}
}

// InitializeResponse is returned by provider initialization.
type InitializeResponse struct {
	ProviderID string    `json:"provider_id"`
	PublicID   string    `json:"public_id"`
	ChatURL    string    `json:"chat_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ChatURLResponse is returned by the chat URL endpoint.
type ChatURLResponse struct {
	ChatURL   string    `json:"chat_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CurrentTokenResponse is returned by the read-only token endpoint used when
// composing outbound messages.
type CurrentTokenResponse struct {
	TokenValue string    `json:"token_value"`
	ChatURL    string    `json:"chat_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ValidateRequest carries a token validation attempt.
type ValidateRequest struct {
	PublicID   string `json:"public_id" binding:"required"`
	TokenValue string `json:"token_value" binding:"required"`
}

// SessionResponse describes a chat session to the client.
type SessionResponse struct {
	SessionID      string    `json:"session_id"`
	ProviderID     string    `json:"provider_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatsResponse is the admin view of a provider's token history.
type StatsResponse struct {
	ProviderID      string     `json:"provider_id"`
	IssuedCount     int64      `json:"issued_count"`
	ConsumedCount   int64      `json:"consumed_count"`
	SupersededCount int64      `json:"superseded_count"`
	ExpiredCount    int64      `json:"expired_count"`
	LastIssuedAt    *time.Time `json:"last_issued_at,omitempty"`
	LastConsumedAt  *time.Time `json:"last_consumed_at,omitempty"`
}

// CleanupResponse reports a sweep result.
type CleanupResponse struct {
	ExpiredCount int64 `json:"expired_count"`
}
