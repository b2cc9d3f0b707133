package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/repository"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// SessionRepositoryImpl implements SessionRepository on PostgreSQL.
type SessionRepositoryImpl struct {
	db     *DBConnection
	logger logger.Logger
}

// NewSessionRepository creates the PostgreSQL session repository.
func NewSessionRepository(db *DBConnection, log logger.Logger) repository.SessionRepository {
	return &SessionRepositoryImpl{db: db, logger: log.WithComponent("session_repo")}
}

func (r *SessionRepositoryImpl) FindByID(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	query := `
		SELECT id, provider_id, token_id, conversation_id, created_at, last_validated_at
		FROM chat_sessions
		WHERE id = $1
	`
	return r.findOne(ctx, query, sessionID)
}

func (r *SessionRepositoryImpl) FindByTokenID(ctx context.Context, tokenID string) (*models.ChatSession, error) {
	query := `
		SELECT id, provider_id, token_id, conversation_id, created_at, last_validated_at
		FROM chat_sessions
		WHERE token_id = $1
	`
	return r.findOne(ctx, query, tokenID)
}

// TouchLastValidated bumps the last validation timestamp. A missing session
// is not an error here; the read path already reported it.
func (r *SessionRepositoryImpl) TouchLastValidated(ctx context.Context, sessionID string, at time.Time) error {
	query := `
		UPDATE chat_sessions
		SET last_validated_at = $1
		WHERE id = $2
	`
	if _, err := r.db.Pool().Exec(ctx, query, at, sessionID); err != nil {
		return errors.Wrap(err, "failed to touch session")
	}
	return nil
}

func (r *SessionRepositoryImpl) findOne(ctx context.Context, query, arg string) (*models.ChatSession, error) {
	session := &models.ChatSession{}
	err := r.db.Pool().QueryRow(ctx, query, arg).Scan(
		&session.ID,
		&session.ProviderID,
		&session.TokenID,
		&session.ConversationID,
		&session.CreatedAt,
		&session.LastValidatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrSessionNotFound(arg)
		}
		return nil, errors.Wrap(err, "failed to query session")
	}
	return session, nil
}
