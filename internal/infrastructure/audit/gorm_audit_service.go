// Package audit persists a trail of token and session lifecycle events.
// Recording is best effort: a failed write is logged and dropped, never
// surfaced to the request path.
package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// GormAuditService implements AuditService on a gorm-managed table.
type GormAuditService struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormAuditService migrates the audit table and returns the service.
func NewGormAuditService(db *gorm.DB, log logger.Logger) (*GormAuditService, error) {
	if err := db.AutoMigrate(&models.AuditEvent{}); err != nil {
		return nil, err
	}
	return &GormAuditService{db: db, logger: log.WithComponent("audit")}, nil
}

// Record persists one audit event.
func (s *GormAuditService) Record(ctx context.Context, eventType constants.AuditEventType, providerID, tokenID, detail string) {
	event := &models.AuditEvent{
		EventType:  eventType,
		ProviderID: providerID,
		TokenID:    tokenID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		s.logger.Warn(ctx, "failed to record audit event",
			logger.String("event_type", string(eventType)),
			logger.String("provider_id", providerID),
			logger.Error(err),
		)
	}
}

// RecentByProvider returns the newest events for a provider, newest first.
func (s *GormAuditService) RecentByProvider(ctx context.Context, providerID string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// NoopAuditService drops everything. Used when auditing is disabled.
type NoopAuditService struct{}

func (NoopAuditService) Record(context.Context, constants.AuditEventType, string, string, string) {}

var _ service.AuditService = (*GormAuditService)(nil)
var _ service.AuditService = NoopAuditService{}
