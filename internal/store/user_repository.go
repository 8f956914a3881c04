package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projectshell/subscription-service/internal/domain"
)

// UserRepository handles the local CRM user cache. The cache is written only
// by the CRM user lifecycle event handlers and read to attach display names.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user cache repository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertCrmUser creates or refreshes the cached identity for (tenant, user).
func (r *UserRepository) UpsertCrmUser(ctx context.Context, data domain.CrmUserData) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO crm_users (tenant_id, user_id, user_email, user_full_name)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (tenant_id, user_id)
        DO UPDATE SET
            user_email = EXCLUDED.user_email,
            user_full_name = EXCLUDED.user_full_name,
            updated_at = NOW()
    `, data.TenantID, data.UserID, data.UserEmail, data.UserFullName)
	return err
}

// FindByTenantAndUserID resolves a cached user by its external identity.
func (r *UserRepository) FindByTenantAndUserID(ctx context.Context, tenantID, userID string) (*domain.User, error) {
	return r.findOne(ctx, `
        SELECT id::text, tenant_id, user_id, user_email, user_full_name, created_at, updated_at
        FROM crm_users
        WHERE tenant_id = $1 AND user_id = $2
    `, tenantID, userID)
}

// FindByID resolves a cached user by its internal id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, `
        SELECT id::text, tenant_id, user_id, user_email, user_full_name, created_at, updated_at
        FROM crm_users
        WHERE id = $1
    `, id)
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.TenantID,
		&user.UserID,
		&user.UserEmail,
		&user.UserFullName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
