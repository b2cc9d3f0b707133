package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is the durable record created by a token's first valid use.
// It binds the consumed token to the conversation it opened. A token is
// bound to at most one session, ever.
type ChatSession struct {
	ID              string    `json:"id" db:"id"`
	ProviderID      string    `json:"provider_id" db:"provider_id"`
	TokenID         string    `json:"token_id" db:"token_id"`
	ConversationID  string    `json:"conversation_id" db:"conversation_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	LastValidatedAt time.Time `json:"last_validated_at" db:"last_validated_at"`
}

// NewChatSession creates a session for a freshly consumed token.
func NewChatSession(providerID, tokenID, conversationID string) *ChatSession {
	now := time.Now().UTC()
	return &ChatSession{
		ID:              uuid.NewString(),
		ProviderID:      providerID,
		TokenID:         tokenID,
		ConversationID:  conversationID,
		CreatedAt:       now,
		LastValidatedAt: now,
	}
}
