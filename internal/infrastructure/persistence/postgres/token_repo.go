package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/repository"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// TokenRepositoryImpl implements TokenRepository on PostgreSQL. The issued ->
// consumed and issued -> superseded transitions are conditional updates; a
// transition that matches zero rows means another actor got there first.
type TokenRepositoryImpl struct {
	db     *DBConnection
	logger logger.Logger
}

// NewTokenRepository creates the PostgreSQL token repository.
func NewTokenRepository(db *DBConnection, log logger.Logger) repository.TokenRepository {
	return &TokenRepositoryImpl{db: db, logger: log.WithComponent("token_repo")}
}

// Mint supersedes the provider's issued token and inserts the new one in a
// single transaction, keeping the single-active invariant without any
// in-process coordination.
func (r *TokenRepositoryImpl) Mint(ctx context.Context, token *models.ChatToken) (int64, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin mint transaction")
	}
	defer tx.Rollback(ctx)

	supersede := `
		UPDATE chat_tokens
		SET state = $1
		WHERE provider_id = $2 AND state = $3
	`
	tag, err := tx.Exec(ctx, supersede,
		constants.TokenStateSuperseded, token.ProviderID, constants.TokenStateIssued)
	if err != nil {
		return 0, errors.Wrap(err, "failed to supersede issued token")
	}
	superseded := tag.RowsAffected()

	insert := `
		INSERT INTO chat_tokens (id, provider_id, value, state, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insert,
		token.ID, token.ProviderID, token.Value, token.State,
		token.CreatedAt, token.ExpiresAt); err != nil {
		return 0, errors.Wrap(err, "failed to insert minted token")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "failed to commit mint transaction")
	}

	r.logger.Info(ctx, "token minted",
		logger.String("provider_id", token.ProviderID),
		logger.String("token_id", token.ID),
		logger.Int64("superseded", superseded),
	)
	return superseded, nil
}

func (r *TokenRepositoryImpl) FindByValue(ctx context.Context, providerID, value string) (*models.ChatToken, error) {
	query := `
		SELECT id, provider_id, value, state, created_at, expires_at, consumed_at
		FROM chat_tokens
		WHERE provider_id = $1 AND value = $2
	`

	token := &models.ChatToken{}
	var consumedAt sql.NullTime
	err := r.db.Pool().QueryRow(ctx, query, providerID, value).Scan(
		&token.ID,
		&token.ProviderID,
		&token.Value,
		&token.State,
		&token.CreatedAt,
		&token.ExpiresAt,
		&consumedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrTokenNotFound()
		}
		return nil, errors.Wrap(err, "failed to query token")
	}
	if consumedAt.Valid {
		token.ConsumedAt = &consumedAt.Time
	}
	return token, nil
}

func (r *TokenRepositoryImpl) FindIssuedByProvider(ctx context.Context, providerID string) ([]*models.ChatToken, error) {
	query := `
		SELECT id, provider_id, value, state, created_at, expires_at, consumed_at
		FROM chat_tokens
		WHERE provider_id = $1 AND state = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, providerID, constants.TokenStateIssued)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query issued tokens")
	}
	defer rows.Close()

	var tokens []*models.ChatToken
	for rows.Next() {
		token := &models.ChatToken{}
		var consumedAt sql.NullTime
		if err := rows.Scan(
			&token.ID, &token.ProviderID, &token.Value, &token.State,
			&token.CreatedAt, &token.ExpiresAt, &consumedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan issued token")
		}
		if consumedAt.Valid {
			token.ConsumedAt = &consumedAt.Time
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate issued tokens")
	}
	return tokens, nil
}

// ConsumeAndBindSession performs the issued -> consumed compare-and-set and
// the session insert in one transaction. Returning false means the guard
// matched nothing: a concurrent validation already consumed the token, and
// the caller should re-read and return that winner's session.
func (r *TokenRepositoryImpl) ConsumeAndBindSession(ctx context.Context, tokenID string, session *models.ChatSession) (bool, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin consume transaction")
	}
	defer tx.Rollback(ctx)

	consume := `
		UPDATE chat_tokens
		SET state = $1, consumed_at = $2
		WHERE id = $3 AND state = $4
	`
	tag, err := tx.Exec(ctx, consume,
		constants.TokenStateConsumed, session.CreatedAt, tokenID, constants.TokenStateIssued)
	if err != nil {
		return false, errors.Wrap(err, "failed to consume token")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	insert := `
		INSERT INTO chat_sessions (id, provider_id, token_id, conversation_id, created_at, last_validated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insert,
		session.ID, session.ProviderID, session.TokenID, session.ConversationID,
		session.CreatedAt, session.LastValidatedAt); err != nil {
		return false, errors.Wrap(err, "failed to insert session")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "failed to commit consume transaction")
	}
	return true, nil
}

// ExpireIssuedBefore ages out stale issued tokens in one conditional bulk
// update. Safe to run concurrently from multiple instances.
func (r *TokenRepositoryImpl) ExpireIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE chat_tokens
		SET state = $1
		WHERE state = $2 AND expires_at < $3
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		constants.TokenStateExpired, constants.TokenStateIssued, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire stale tokens")
	}
	return tag.RowsAffected(), nil
}

func (r *TokenRepositoryImpl) Stats(ctx context.Context, providerID string) (*models.TokenStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE state = 'issued'),
			COUNT(*) FILTER (WHERE state = 'consumed'),
			COUNT(*) FILTER (WHERE state = 'superseded'),
			COUNT(*) FILTER (WHERE state = 'expired'),
			MAX(created_at),
			MAX(consumed_at)
		FROM chat_tokens
		WHERE provider_id = $1
	`

	stats := &models.TokenStats{ProviderID: providerID}
	var lastIssued, lastConsumed sql.NullTime
	err := r.db.Pool().QueryRow(ctx, query, providerID).Scan(
		&stats.IssuedCount,
		&stats.ConsumedCount,
		&stats.SupersededCount,
		&stats.ExpiredCount,
		&lastIssued,
		&lastConsumed,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate token stats")
	}
	if lastIssued.Valid {
		stats.LastIssuedAt = &lastIssued.Time
	}
	if lastConsumed.Valid {
		stats.LastConsumedAt = &lastConsumed.Time
	}
	return stats, nil
}
