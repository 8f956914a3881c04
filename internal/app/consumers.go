/**
 * @description
 * This file contains the event handlers for the subscription-service.
 * The upsert handler is the core of the service: given a join/renewal event
 * it decides whether to create a new membership year or correct an existing
 * one, classifies the movement, maintains the single-current invariant and
 * enqueues the follow-up "current subscription changed" notification.
 *
 * @notes
 * - Handlers return a boolean ack decision: true acknowledges the message,
 *   false nacks it so the bus redelivers. The handlers never retry
 *   internally; bus-level redelivery is the single source of retry truth.
 * - Validation failures on required fields nack the message so the bus
 *   retry/dead-letter policy applies. A body that is not valid JSON can
 *   never succeed and is acknowledged with an error log instead.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/projectshell/subscription-service/internal/domain"
	"github.com/projectshell/subscription-service/internal/store"
)

const handlerTimeout = 30 * time.Second

// SubscriptionStore is the slice of the subscription repository the event
// handlers need.
type SubscriptionStore interface {
	ListByProfile(ctx context.Context, tenantID *string, profileID string) ([]domain.Subscription, error)
	FindByProfileYear(ctx context.Context, tenantID *string, profileID string, year int) (*domain.Subscription, error)
	CreateSubscriptionAndEnqueueEvent(ctx context.Context, sub *domain.Subscription, exchange, routingKey string, buildPayload func(subscriptionID string) interface{}) (string, error)
	UpdatePaymentFields(ctx context.Context, subscriptionID string, paymentType, paymentFrequency, payrollNo *string) error
}

// UserStore is the slice of the user cache repository the event handlers need.
type UserStore interface {
	UpsertCrmUser(ctx context.Context, data domain.CrmUserData) error
}

// SubscriptionEventHandler processes membership and CRM user events.
type SubscriptionEventHandler struct {
	subs  SubscriptionStore
	users UserStore
}

// NewSubscriptionEventHandler creates a new event handler.
func NewSubscriptionEventHandler(subs SubscriptionStore, users UserStore) *SubscriptionEventHandler {
	return &SubscriptionEventHandler{subs: subs, users: users}
}

// HandleSubscriptionUpsertRequested processes an upsert-requested event.
func (h *SubscriptionEventHandler) HandleSubscriptionUpsertRequested(body []byte) bool {
	var event domain.SubscriptionUpsertRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("ERROR: unmarshaling subscription upsert event: %v", err)
		return true // Malformed body will never parse; drop it.
	}

	log.Printf("Processing subscription upsert for profile %s (correlationId=%s)", event.Data.ProfileID, event.CorrelationID)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if _, err := uuid.Parse(event.Data.ProfileID); err != nil {
		log.Printf("ERROR: invalid profileId %q in upsert event (correlationId=%s): %v", event.Data.ProfileID, event.CorrelationID, err)
		return false
	}

	startDate, err := parseEventDate(event.Data.DateJoined)
	if err != nil {
		log.Printf("ERROR: invalid dateJoined %q in upsert event (correlationId=%s): %v", event.Data.DateJoined, event.CorrelationID, err)
		return false
	}
	startDate = startDate.UTC()

	var tenantID *string
	if event.TenantID != "" {
		tenantID = &event.TenantID
	} else {
		log.Printf("WARN: tenantId missing in upsert event (correlationId=%s)", event.CorrelationID)
	}

	subscriptionYear := startDate.Year()

	existing, err := h.subs.ListByProfile(ctx, tenantID, event.Data.ProfileID)
	if err != nil {
		log.Printf("ERROR: loading subscription history for profile %s: %v", event.Data.ProfileID, err)
		return false
	}

	movement := classifyMovement(existing, subscriptionYear)

	for i := range existing {
		if existing[i].SubscriptionYear == subscriptionYear {
			return h.applyInYearCorrection(ctx, &existing[i], event)
		}
	}

	sub := &domain.Subscription{
		TenantID:           tenantID,
		ProfileID:          event.Data.ProfileID,
		ApplicationID:      event.Data.ApplicationID,
		SubscriptionYear:   subscriptionYear,
		IsCurrent:          true,
		SubscriptionStatus: domain.StatusActive,
		StartDate:          startDate,
		EndDate:            endOfYear(startDate),
		MembershipMovement: movement,
		MembershipCategory: event.Data.MembershipCategory,
		PaymentType:        validatedPaymentType(event.Data.PaymentType, event.CorrelationID),
		PayrollNo:          event.Data.PayrollNo,
		PaymentFrequency:   validatedPaymentFrequency(event.Data.PaymentFrequency, event.CorrelationID),
	}
	rollover := startOfNextYear(startDate)
	sub.RolloverDate = &rollover

	subscriptionID, err := h.subs.CreateSubscriptionAndEnqueueEvent(
		ctx,
		sub,
		domain.MembershipExchange,
		domain.EventSubscriptionCurrentUpdated,
		func(subscriptionID string) interface{} {
			return domain.OutboundEvent{
				EventID:       uuid.NewString(),
				CorrelationID: event.CorrelationID,
				TenantID:      event.TenantID,
				Data: domain.SubscriptionCurrentUpdatedData{
					SubscriptionID: subscriptionID,
					ProfileID:      event.Data.ProfileID,
				},
				Metadata: domain.ServiceMetadata,
			}
		},
	)
	if err != nil {
		// A concurrent duplicate event created the year first; treat this
		// delivery as the in-year correction it now is.
		if errors.Is(err, store.ErrDuplicateYear) {
			winner, findErr := h.subs.FindByProfileYear(ctx, tenantID, event.Data.ProfileID, subscriptionYear)
			if findErr != nil || winner == nil {
				log.Printf("ERROR: resolving conflicting subscription year %d for profile %s: %v", subscriptionYear, event.Data.ProfileID, findErr)
				return false
			}
			return h.applyInYearCorrection(ctx, winner, event)
		}
		log.Printf("ERROR: creating subscription for profile %s year %d: %v", event.Data.ProfileID, subscriptionYear, err)
		return false
	}

	log.Printf("Created subscription %s for profile %s year %d movement=%s", subscriptionID, event.Data.ProfileID, subscriptionYear, movement)
	return true
}

// applyInYearCorrection handles a replayed or corrected event for a year
// that already has a record: only the payment fields change, the update is
// marked system-originated and no follow-up event is published.
func (h *SubscriptionEventHandler) applyInYearCorrection(ctx context.Context, existing *domain.Subscription, event domain.SubscriptionUpsertRequestedEvent) bool {
	paymentType := validatedPaymentType(event.Data.PaymentType, event.CorrelationID)
	paymentFrequency := validatedPaymentFrequency(event.Data.PaymentFrequency, event.CorrelationID)
	payrollNo := event.Data.PayrollNo

	if paymentType == nil && paymentFrequency == nil && payrollNo == nil {
		log.Printf("Subscription %s already exists for year %d, nothing to update", existing.ID, existing.SubscriptionYear)
		return true
	}

	if err := h.subs.UpdatePaymentFields(ctx, existing.ID, paymentType, paymentFrequency, payrollNo); err != nil {
		log.Printf("ERROR: updating payment fields on subscription %s: %v", existing.ID, err)
		return false
	}

	log.Printf("Updated payment fields on subscription %s for year %d", existing.ID, existing.SubscriptionYear)
	return true
}

func validatedPaymentType(v *string, correlationID string) *string {
	if v == nil {
		return nil
	}
	if !domain.ValidPaymentType(*v) {
		log.Printf("WARN: dropping invalid paymentType %q (correlationId=%s)", *v, correlationID)
		return nil
	}
	return v
}

func validatedPaymentFrequency(v *string, correlationID string) *string {
	if v == nil {
		return nil
	}
	if !domain.ValidPaymentFrequency(*v) {
		log.Printf("WARN: dropping invalid paymentFrequency %q (correlationId=%s)", *v, correlationID)
		return nil
	}
	return v
}

// HandleCrmUserCreated processes a user.crm.created event.
func (h *SubscriptionEventHandler) HandleCrmUserCreated(body []byte) bool {
	return h.upsertCrmUser(body, "user.crm.created")
}

// HandleCrmUserUpdated processes a user.crm.updated event.
func (h *SubscriptionEventHandler) HandleCrmUserUpdated(body []byte) bool {
	return h.upsertCrmUser(body, "user.crm.updated")
}

func (h *SubscriptionEventHandler) upsertCrmUser(body []byte, eventName string) bool {
	var event domain.CrmUserEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("ERROR: unmarshaling %s event: %v", eventName, err)
		return true
	}

	if event.Data.UserID == "" || event.Data.TenantID == "" {
		log.Printf("WARN: dropping %s event with missing userId or tenantId", eventName)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.users.UpsertCrmUser(ctx, event.Data); err != nil {
		log.Printf("ERROR: upserting CRM user %s (tenant %s): %v", event.Data.UserID, event.Data.TenantID, err)
		return false
	}

	log.Printf("CRM user %s cached for tenant %s", event.Data.UserID, event.Data.TenantID)
	return true
}
