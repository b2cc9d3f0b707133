package models

import (
	"time"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
)

// AuditEvent is a persisted record of a lifecycle action on tokens or
// sessions. Stored through gorm; Detail holds free-form JSON.
type AuditEvent struct {
	ID         uint                     `gorm:"primaryKey" json:"id"`
	EventType  constants.AuditEventType `gorm:"size:64;index" json:"event_type"`
	ProviderID string                   `gorm:"size:64;index" json:"provider_id"`
	TokenID    string                   `gorm:"size:64" json:"token_id,omitempty"`
	Detail     string                   `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt  time.Time                `gorm:"index" json:"created_at"`
}

// TableName fixes the audit table name independent of gorm's pluralization.
func (AuditEvent) TableName() string { return "chat_audit_events" }
