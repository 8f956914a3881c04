/**
 * @description
 * This file implements the data access layer for subscription records.
 * It contains all the SQL for reading per-profile history, creating a new
 * membership year, updating payment details, resigning the current record
 * and the year-end sweep.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projectshell/subscription-service/internal/domain"
)

// SubscriptionRepository handles database operations for subscription records.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
    id::text, tenant_id, profile_id::text, application_id, subscription_year,
    is_current, subscription_status, start_date, end_date, rollover_date,
    membership_movement, membership_category, payment_type, payroll_no,
    payment_frequency, cancellation_date, cancellation_reason,
    cancellation_grace_period_end, cancellation_reinstated,
    resignation_date, resignation_reason, reminders,
    yearend_processed, yearend_processed_at, yearend_result,
    created_by::text, updated_by::text, deleted, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub           domain.Subscription
		remindersJSON []byte
		yearendResult *string
	)
	err := row.Scan(
		&sub.ID,
		&sub.TenantID,
		&sub.ProfileID,
		&sub.ApplicationID,
		&sub.SubscriptionYear,
		&sub.IsCurrent,
		&sub.SubscriptionStatus,
		&sub.StartDate,
		&sub.EndDate,
		&sub.RolloverDate,
		&sub.MembershipMovement,
		&sub.MembershipCategory,
		&sub.PaymentType,
		&sub.PayrollNo,
		&sub.PaymentFrequency,
		&sub.Cancellation.DateCancelled,
		&sub.Cancellation.Reason,
		&sub.Cancellation.GracePeriodEnd,
		&sub.Cancellation.Reinstated,
		&sub.Resignation.DateResigned,
		&sub.Resignation.Reason,
		&remindersJSON,
		&sub.Yearend.Processed,
		&sub.Yearend.ProcessedAt,
		&yearendResult,
		&sub.Meta.CreatedBy,
		&sub.Meta.UpdatedBy,
		&sub.Deleted,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if yearendResult != nil {
		sub.Yearend.Result = domain.YearendResult(*yearendResult)
	}
	sub.Reminders = []domain.Reminder{}
	if len(remindersJSON) > 0 {
		if err := json.Unmarshal(remindersJSON, &sub.Reminders); err != nil {
			log.Printf("WARN: failed to unmarshal reminders for subscription %s: %v", sub.ID, err)
			sub.Reminders = []domain.Reminder{}
		}
	}
	return &sub, nil
}

// ListByProfile returns all subscription records for a profile, newest
// start date first. Records of all tenants are returned when tenantID is nil.
func (r *SubscriptionRepository) ListByProfile(ctx context.Context, tenantID *string, profileID string) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM subscriptions
        WHERE profile_id = $1 AND ($2::text IS NULL OR tenant_id = $2)
        ORDER BY start_date DESC
    `, subscriptionColumns)

	rows, err := r.db.Query(ctx, query, profileID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// FindByProfileYear returns the record for a specific membership year,
// or nil when none exists.
func (r *SubscriptionRepository) FindByProfileYear(ctx context.Context, tenantID *string, profileID string, year int) (*domain.Subscription, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM subscriptions
        WHERE profile_id = $1
          AND subscription_year = $2
          AND COALESCE(tenant_id, '') = COALESCE($3::text, '')
    `, subscriptionColumns)

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, profileID, year, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// CreateSubscriptionAndEnqueueEvent clears any previous current records for
// the profile, inserts the new membership year as current and enqueues the
// follow-up event in one transaction, so the single-current invariant
// and the notification intent cannot diverge from the insert.
// Returns ErrDuplicateYear when a record for the year already exists.
func (r *SubscriptionRepository) CreateSubscriptionAndEnqueueEvent(
	ctx context.Context,
	sub *domain.Subscription,
	exchange string,
	routingKey string,
	buildPayload func(subscriptionID string) interface{},
) (string, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        UPDATE subscriptions
        SET is_current = FALSE, updated_at = NOW()
        WHERE profile_id = $1
          AND is_current = TRUE
          AND ($2::text IS NULL OR tenant_id = $2)
    `, sub.ProfileID, sub.TenantID)
	if err != nil {
		return "", err
	}

	var subscriptionID string
	err = tx.QueryRow(ctx, `
        INSERT INTO subscriptions (
            tenant_id, profile_id, application_id, subscription_year,
            is_current, subscription_status, start_date, end_date,
            rollover_date, membership_movement, membership_category,
            payment_type, payroll_no, payment_frequency
        )
        VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id::text
    `,
		sub.TenantID,
		sub.ProfileID,
		sub.ApplicationID,
		sub.SubscriptionYear,
		sub.SubscriptionStatus,
		sub.StartDate,
		sub.EndDate,
		sub.RolloverDate,
		sub.MembershipMovement,
		sub.MembershipCategory,
		sub.PaymentType,
		sub.PayrollNo,
		sub.PaymentFrequency,
	).Scan(&subscriptionID)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateYear
		}
		return "", err
	}

	if err := enqueueEventTx(ctx, tx, exchange, routingKey, buildPayload(subscriptionID)); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return subscriptionID, nil
}

// UpdatePaymentFields applies an in-year correction: only the payment fields
// carried by the event change, and the change is marked system-originated
// (updated_by NULL). Nil arguments leave the stored value untouched.
func (r *SubscriptionRepository) UpdatePaymentFields(ctx context.Context, subscriptionID string, paymentType, paymentFrequency, payrollNo *string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE subscriptions
        SET payment_type = COALESCE($2, payment_type),
            payment_frequency = COALESCE($3, payment_frequency),
            payroll_no = COALESCE($4, payroll_no),
            updated_by = NULL,
            updated_at = NOW()
        WHERE id = $1
    `, subscriptionID, paymentType, paymentFrequency, payrollNo)
	return err
}

// ResignCurrent marks the profile's current record as resigned in a single
// conditional update. Returns ErrNoCurrentSubscription when the profile has
// no current, non-deleted record.
func (r *SubscriptionRepository) ResignCurrent(ctx context.Context, tenantID *string, profileID string, dateResigned time.Time, reason string, updatedBy *string) (*domain.Subscription, error) {
	query := fmt.Sprintf(`
        UPDATE subscriptions
        SET resignation_date = $2,
            resignation_reason = $3,
            is_current = FALSE,
            subscription_status = $4,
            updated_by = $5,
            updated_at = NOW()
        WHERE profile_id = $1
          AND is_current = TRUE
          AND deleted = FALSE
          AND ($6::text IS NULL OR tenant_id = $6)
        RETURNING %s
    `, subscriptionColumns)

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, profileID, dateResigned, reason, domain.StatusResigned, updatedBy, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCurrentSubscription
		}
		return nil, err
	}
	return sub, nil
}

// GetCurrentStartDate returns the start date of the profile's current,
// non-deleted record, or nil when there is none.
func (r *SubscriptionRepository) GetCurrentStartDate(ctx context.Context, profileID string) (*domain.CurrentSubscription, error) {
	var current domain.CurrentSubscription
	err := r.db.QueryRow(ctx, `
        SELECT start_date
        FROM subscriptions
        WHERE profile_id = $1 AND is_current = TRUE AND deleted = FALSE
    `, profileID).Scan(&current.StartDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &current, nil
}

// ListFilter narrows the CRM subscription listing.
type ListFilter struct {
	TenantID      *string
	ProfileID     *string
	ApplicationID *string
	IsCurrent     *bool
}

// ListSubscriptions returns non-deleted records matching the filter,
// newest first.
func (r *SubscriptionRepository) ListSubscriptions(ctx context.Context, filter ListFilter) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM subscriptions
        WHERE deleted = FALSE
          AND ($1::text IS NULL OR tenant_id = $1)
          AND ($2::uuid IS NULL OR profile_id = $2)
          AND ($3::text IS NULL OR application_id = $3)
          AND ($4::boolean IS NULL OR is_current = $4)
        ORDER BY created_at DESC
    `, subscriptionColumns)

	rows, err := r.db.Query(ctx, query, filter.TenantID, filter.ProfileID, filter.ApplicationID, filter.IsCurrent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// SweepRolloverDue suspends every still-current Active record whose rollover
// date has passed and marks it year-end processed. The record stays current
// so the profile keeps resolving until a renewal event arrives.
func (r *SubscriptionRepository) SweepRolloverDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE subscriptions
        SET subscription_status = $2,
            yearend_processed = TRUE,
            yearend_processed_at = NOW(),
            yearend_result = $3,
            updated_by = NULL,
            updated_at = NOW()
        WHERE is_current = TRUE
          AND deleted = FALSE
          AND subscription_status = $4
          AND yearend_processed = FALSE
          AND rollover_date IS NOT NULL
          AND rollover_date <= $1
    `, now, domain.StatusSuspended, domain.YearendSuspended, domain.StatusActive)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
