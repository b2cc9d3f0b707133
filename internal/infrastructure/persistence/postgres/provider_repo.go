package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/repository"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint breaches.
const uniqueViolation = "23505"

// ProviderRepositoryImpl implements ProviderRepository on PostgreSQL.
type ProviderRepositoryImpl struct {
	db     *DBConnection
	logger logger.Logger
}

// NewProviderRepository creates the PostgreSQL provider repository.
func NewProviderRepository(db *DBConnection, log logger.Logger) repository.ProviderRepository {
	return &ProviderRepositoryImpl{db: db, logger: log.WithComponent("provider_repo")}
}

// Save inserts a new provider identity. A unique violation on either column
// surfaces as AllocationConflict so the caller can retry with a fresh
// public identifier.
func (r *ProviderRepositoryImpl) Save(ctx context.Context, identity *models.ProviderIdentity) error {
	query := `
		INSERT INTO provider_identities (provider_id, public_id, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.Pool().Exec(ctx, query, identity.ProviderID, identity.PublicID, identity.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errors.ErrAllocationConflict().WithCause(err)
		}
		r.logger.Error(ctx, "failed to save provider identity", err,
			logger.String("provider_id", identity.ProviderID))
		return errors.Wrap(err, "failed to save provider identity")
	}
	return nil
}

func (r *ProviderRepositoryImpl) FindByProviderID(ctx context.Context, providerID string) (*models.ProviderIdentity, error) {
	query := `
		SELECT provider_id, public_id, created_at
		FROM provider_identities
		WHERE provider_id = $1
	`
	return r.findOne(ctx, query, providerID)
}

func (r *ProviderRepositoryImpl) FindByPublicID(ctx context.Context, publicID string) (*models.ProviderIdentity, error) {
	query := `
		SELECT provider_id, public_id, created_at
		FROM provider_identities
		WHERE public_id = $1
	`
	return r.findOne(ctx, query, publicID)
}

func (r *ProviderRepositoryImpl) findOne(ctx context.Context, query, arg string) (*models.ProviderIdentity, error) {
	identity := &models.ProviderIdentity{}
	err := r.db.Pool().QueryRow(ctx, query, arg).Scan(
		&identity.ProviderID,
		&identity.PublicID,
		&identity.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrProviderNotFound(arg)
		}
		return nil, errors.Wrap(err, "failed to query provider identity")
	}
	return identity, nil
}
