/**
 * @description
 * Shared pieces of the data access layer: sentinel errors and the schema
 * bootstrap that the service runs at startup.
 *
 * @notes
 * - The unique index on (tenant, profile, year) is what turns concurrent
 *   duplicate upsert events into a detectable conflict instead of a silent
 *   duplicate-current violation. Writers must treat ErrDuplicateYear as
 *   "record already exists, take the update path".
 */
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoCurrentSubscription is returned when a profile has no current,
	// non-deleted subscription record.
	ErrNoCurrentSubscription = errors.New("no current subscription for profile")

	// ErrDuplicateYear is returned when an insert loses the race against a
	// concurrent insert for the same (tenant, profile, year).
	ErrDuplicateYear = errors.New("subscription already exists for year")

	// ErrUserNotFound is returned when a CRM user lookup finds no record.
	ErrUserNotFound = errors.New("user not found")
)

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id TEXT,
    profile_id UUID NOT NULL,
    application_id TEXT,
    subscription_year INT NOT NULL,
    is_current BOOLEAN NOT NULL DEFAULT TRUE,
    subscription_status TEXT NOT NULL DEFAULT 'Active',
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ NOT NULL,
    rollover_date TIMESTAMPTZ,
    membership_movement TEXT NOT NULL DEFAULT 'NewJoin',
    membership_category TEXT,
    payment_type TEXT,
    payroll_no TEXT,
    payment_frequency TEXT,
    cancellation_date TIMESTAMPTZ,
    cancellation_reason TEXT,
    cancellation_grace_period_end TIMESTAMPTZ,
    cancellation_reinstated BOOLEAN NOT NULL DEFAULT FALSE,
    resignation_date TIMESTAMPTZ,
    resignation_reason TEXT,
    reminders JSONB NOT NULL DEFAULT '[]'::jsonb,
    yearend_processed BOOLEAN NOT NULL DEFAULT FALSE,
    yearend_processed_at TIMESTAMPTZ,
    yearend_result TEXT,
    created_by UUID,
    updated_by UUID,
    deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_tenant_profile_year_key
    ON subscriptions (COALESCE(tenant_id, ''), profile_id, subscription_year);

CREATE INDEX IF NOT EXISTS subscriptions_profile_current_idx
    ON subscriptions (profile_id, is_current);

CREATE TABLE IF NOT EXISTS crm_users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    user_email TEXT,
    user_full_name TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (tenant_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_outbox (
    id BIGSERIAL PRIMARY KEY,
    exchange TEXT NOT NULL,
    routing_key TEXT NOT NULL,
    payload JSONB NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    attempts INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processing_started_at TIMESTAMPTZ,
    published_at TIMESTAMPTZ,
    last_error TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the service tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schemaDDL)
	return err
}
