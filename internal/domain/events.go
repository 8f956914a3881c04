/**
 * @description
 * Event contracts for the membership message bus. Inbound events arrive on
 * the membership and user topic exchanges; the single outbound event notifies
 * the profile service that a profile's current subscription changed.
 */
package domain

// Exchanges and routing keys shared with the other membership services.
const (
	MembershipExchange = "membership.events"
	UserExchange       = "user.events"

	EventSubscriptionUpsertRequested = "members.subscription.upsert.requested.v1"
	EventSubscriptionCurrentUpdated  = "members.subscription.current.updated.v1"
	EventCrmUserCreated              = "user.crm.created.v1"
	EventCrmUserUpdated              = "user.crm.updated.v1"
)

// SubscriptionUpsertData is the payload of an upsert-requested event.
// Optional fields are pointers so that absent and empty are distinguishable.
type SubscriptionUpsertData struct {
	ProfileID          string  `json:"profileId"`
	ApplicationID      *string `json:"applicationId"`
	MembershipCategory *string `json:"membershipCategory"`
	DateJoined         string  `json:"dateJoined"`
	PaymentType        *string `json:"paymentType"`
	PayrollNo          *string `json:"payrollNo"`
	PaymentFrequency   *string `json:"paymentFrequency"`
}

// SubscriptionUpsertRequestedEvent is the inbound join/renewal signal from
// the profile service.
type SubscriptionUpsertRequestedEvent struct {
	EventID       string                 `json:"eventId"`
	CorrelationID string                 `json:"correlationId"`
	TenantID      string                 `json:"tenantId"`
	Data          SubscriptionUpsertData `json:"data"`
}

// CrmUserData is the payload of a CRM user lifecycle event.
type CrmUserData struct {
	UserID       string  `json:"userId"`
	UserEmail    *string `json:"userEmail"`
	UserFullName *string `json:"userFullName"`
	TenantID     string  `json:"tenantId"`
}

// CrmUserEvent is the inbound user.crm.created / user.crm.updated event.
type CrmUserEvent struct {
	EventID       string      `json:"eventId"`
	CorrelationID string      `json:"correlationId"`
	Data          CrmUserData `json:"data"`
}

// SubscriptionCurrentUpdatedData tells downstream consumers which record
// became the profile's current subscription.
type SubscriptionCurrentUpdatedData struct {
	SubscriptionID string `json:"subscriptionId"`
	ProfileID      string `json:"profileId"`
}

// EventMetadata identifies the publishing service on outbound events.
type EventMetadata struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// OutboundEvent is the envelope for every event this service publishes.
// CorrelationID is propagated from the triggering inbound event.
type OutboundEvent struct {
	EventID       string        `json:"eventId"`
	CorrelationID string        `json:"correlationId"`
	TenantID      string        `json:"tenantId,omitempty"`
	Data          interface{}   `json:"data"`
	Metadata      EventMetadata `json:"metadata"`
}

// ServiceMetadata is stamped on every outbound event.
var ServiceMetadata = EventMetadata{Service: "subscription-service", Version: "1.0"}
