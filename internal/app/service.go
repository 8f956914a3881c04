/**
 * @description
 * This file contains the business logic behind the HTTP surface: the
 * current-subscription lookup, the CRM list with denormalized user identity,
 * and the resign command.
 */
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/projectshell/subscription-service/internal/domain"
	"github.com/projectshell/subscription-service/internal/store"
)

// ErrInvalidProfileID is returned when a profile id does not parse.
var ErrInvalidProfileID = errors.New("invalid profileId")

// QueryStore is the slice of the subscription repository the service needs.
type QueryStore interface {
	GetCurrentStartDate(ctx context.Context, profileID string) (*domain.CurrentSubscription, error)
	ListSubscriptions(ctx context.Context, filter store.ListFilter) ([]domain.Subscription, error)
	ResignCurrent(ctx context.Context, tenantID *string, profileID string, dateResigned time.Time, reason string, updatedBy *string) (*domain.Subscription, error)
}

// UserReader resolves cached CRM user identities for enrichment.
type UserReader interface {
	FindByTenantAndUserID(ctx context.Context, tenantID, userID string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Service provides the query and command operations for subscriptions.
type Service struct {
	subs  QueryStore
	users UserReader
}

// NewService creates a new subscription service.
func NewService(subs QueryStore, users UserReader) *Service {
	return &Service{subs: subs, users: users}
}

// GetCurrentByProfile returns the start date of the profile's current
// subscription, or nil when the profile has none. Deliberately minimal:
// this endpoint is hit by high-frequency callers.
func (s *Service) GetCurrentByProfile(ctx context.Context, profileID string) (*domain.CurrentSubscription, error) {
	if _, err := uuid.Parse(profileID); err != nil {
		return nil, ErrInvalidProfileID
	}
	return s.subs.GetCurrentStartDate(ctx, profileID)
}

// ListInput narrows the CRM subscription listing.
type ListInput struct {
	TenantID      *string
	ProfileID     *string
	ApplicationID *string
	IsCurrent     *bool
}

// ListSubscriptions returns the CRM view of subscription records, each
// enriched with the cached owner identity and the display name of whoever
// last modified it. Enrichment failures degrade the field to null; they
// never fail the request.
func (s *Service) ListSubscriptions(ctx context.Context, input ListInput) ([]domain.EnrichedSubscription, error) {
	if input.ProfileID != nil {
		if _, err := uuid.Parse(*input.ProfileID); err != nil {
			return nil, ErrInvalidProfileID
		}
	}

	subs, err := s.subs.ListSubscriptions(ctx, store.ListFilter{
		TenantID:      input.TenantID,
		ProfileID:     input.ProfileID,
		ApplicationID: input.ApplicationID,
		IsCurrent:     input.IsCurrent,
	})
	if err != nil {
		return nil, err
	}

	enriched := make([]domain.EnrichedSubscription, 0, len(subs))
	for _, sub := range subs {
		row := domain.EnrichedSubscription{
			Subscription:   sub,
			LastModifiedAt: sub.UpdatedAt,
		}

		if sub.Meta.CreatedBy != nil {
			if owner, err := s.users.FindByID(ctx, *sub.Meta.CreatedBy); err == nil {
				row.User = &domain.UserSummary{
					UserID:       owner.UserID,
					UserEmail:    owner.UserEmail,
					UserFullName: owner.UserFullName,
				}
			} else if !errors.Is(err, store.ErrUserNotFound) {
				log.Printf("WARN: fetching owner for subscription %s: %v", sub.ID, err)
			}
		}

		if sub.Meta.UpdatedBy != nil {
			if modifier, err := s.users.FindByID(ctx, *sub.Meta.UpdatedBy); err == nil {
				row.LastModifiedBy = modifier.UserFullName
			} else if !errors.Is(err, store.ErrUserNotFound) {
				log.Printf("WARN: fetching updatedBy for subscription %s: %v", sub.ID, err)
			}
		}

		enriched = append(enriched, row)
	}
	return enriched, nil
}

// ResignInput carries a resign command.
type ResignInput struct {
	ProfileID    string
	TenantID     *string
	DateResigned time.Time
	Reason       string
	// ActingUserID is the external CRM user id from the auth token; it is
	// resolved to a cached internal id for the audit stamp.
	ActingUserID string
}

// ResignMembership resigns the profile's current subscription: it records
// the resignation, flips the record off current and marks it Resigned. No
// new record is created; the profile has no current subscription until a
// new join event arrives. Returns store.ErrNoCurrentSubscription when the
// profile has no current record.
func (s *Service) ResignMembership(ctx context.Context, input ResignInput) (*domain.Subscription, error) {
	if _, err := uuid.Parse(input.ProfileID); err != nil {
		return nil, ErrInvalidProfileID
	}

	// Attribute the change when the acting user is cached; a failed lookup
	// leaves the stamp null rather than failing the command.
	var updatedBy *string
	if input.ActingUserID != "" && input.TenantID != nil {
		if user, err := s.users.FindByTenantAndUserID(ctx, *input.TenantID, input.ActingUserID); err == nil {
			updatedBy = &user.ID
		} else if !errors.Is(err, store.ErrUserNotFound) {
			log.Printf("WARN: resolving acting user %s for resign: %v", input.ActingUserID, err)
		}
	}

	return s.subs.ResignCurrent(ctx, input.TenantID, input.ProfileID, input.DateResigned, input.Reason, updatedBy)
}
