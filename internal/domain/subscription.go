/**
 * @description
 * This file defines the core domain models for the subscription-service.
 * A Subscription is one yearly membership record for a profile; at most one
 * record per (tenantId, profileId) may be current at a time.
 */
package domain

import "time"

// SubscriptionStatus enumerates the lifecycle states of a membership year.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "Active"
	StatusResigned  SubscriptionStatus = "Resigned"
	StatusCancelled SubscriptionStatus = "Cancelled"
	StatusSuspended SubscriptionStatus = "Suspended"
	StatusArchived  SubscriptionStatus = "Archived"
)

// MembershipMovement classifies why a new subscription year started.
// It is set once at creation and never mutated afterwards.
type MembershipMovement string

const (
	MovementNewJoin   MembershipMovement = "NewJoin"
	MovementRejoin    MembershipMovement = "Rejoin"
	MovementReinstate MembershipMovement = "Reinstate"
)

// Payment type values accepted from upstream events.
const (
	PaymentTypePayrollDeduction = "Payroll Deduction"
	PaymentTypeDirectDebit      = "Direct Debit"
	PaymentTypeCardPayment      = "Card Payment"
	PaymentTypeStandingOrder    = "Standing Bank Order"
)

// Payment frequency values accepted from upstream events.
const (
	PaymentFrequencyMonthly   = "Monthly"
	PaymentFrequencyQuarterly = "Quarterly"
	PaymentFrequencyAnnually  = "Annually"
)

// Reminder types for the renewal reminder workflow (R1 -> R2 -> R3).
const (
	ReminderR1 = "R1"
	ReminderR2 = "R2"
	ReminderR3 = "R3"
)

// YearendResult records the outcome of year-end processing for a record.
type YearendResult string

const (
	YearendSuspended YearendResult = "Suspended"
	YearendArchived  YearendResult = "Archived"
	YearendRenewed   YearendResult = "Renewed"
)

// User types carried in auth tokens.
const (
	UserTypeCRM    = "CRM"
	UserTypePortal = "PORTAL"
)

// ValidPaymentType reports whether v is one of the allowed payment types.
func ValidPaymentType(v string) bool {
	switch v {
	case PaymentTypePayrollDeduction, PaymentTypeDirectDebit, PaymentTypeCardPayment, PaymentTypeStandingOrder:
		return true
	}
	return false
}

// ValidPaymentFrequency reports whether v is one of the allowed payment frequencies.
func ValidPaymentFrequency(v string) bool {
	switch v {
	case PaymentFrequencyMonthly, PaymentFrequencyQuarterly, PaymentFrequencyAnnually:
		return true
	}
	return false
}

// Cancellation captures the cancellation workflow of a subscription year.
type Cancellation struct {
	DateCancelled  *time.Time `json:"dateCancelled,omitempty"`
	Reason         *string    `json:"reason,omitempty"`
	GracePeriodEnd *time.Time `json:"gracePeriodEnd,omitempty"`
	Reinstated     bool       `json:"reinstated"`
}

// Resignation captures a member resigning mid-year.
type Resignation struct {
	DateResigned *time.Time `json:"dateResigned,omitempty"`
	Reason       *string    `json:"reason,omitempty"`
}

// Reminder is one renewal reminder issued for a subscription year.
type Reminder struct {
	Type         string    `json:"type"`
	ReminderDate time.Time `json:"reminderDate"`
}

// Yearend records whether year-end rollover processing has handled this record.
type Yearend struct {
	Processed   bool          `json:"processed"`
	ProcessedAt *time.Time    `json:"processedAt,omitempty"`
	Result      YearendResult `json:"result,omitempty"`
}

// Meta holds audit references to the CRM users that touched the record.
// Nil means the change was system-originated.
type Meta struct {
	CreatedBy *string `json:"createdBy"`
	UpdatedBy *string `json:"updatedBy"`
}

// Subscription is one yearly membership record for a profile.
type Subscription struct {
	ID                 string             `json:"id"`
	TenantID           *string            `json:"tenantId,omitempty"`
	ProfileID          string             `json:"profileId"`
	ApplicationID      *string            `json:"applicationId"`
	SubscriptionYear   int                `json:"subscriptionYear"`
	IsCurrent          bool               `json:"isCurrent"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	StartDate          time.Time          `json:"startDate"`
	EndDate            time.Time          `json:"endDate"`
	RolloverDate       *time.Time         `json:"rolloverDate"`
	MembershipMovement MembershipMovement `json:"membershipMovement"`
	MembershipCategory *string            `json:"membershipCategory"`
	PaymentType        *string            `json:"paymentType"`
	PayrollNo          *string            `json:"payrollNo"`
	PaymentFrequency   *string            `json:"paymentFrequency"`
	Cancellation       Cancellation       `json:"cancellation"`
	Resignation        Resignation        `json:"resignation"`
	Reminders          []Reminder         `json:"reminders"`
	Yearend            Yearend            `json:"yearend"`
	Meta               Meta               `json:"meta"`
	Deleted            bool               `json:"deleted"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// CurrentSubscription is the minimal DTO returned to high-frequency callers
// that only need to know when the current membership year started.
type CurrentSubscription struct {
	StartDate time.Time `json:"startDate"`
}

// EnrichedSubscription is the CRM list representation with denormalized
// owner identity and last-modified display data attached.
type EnrichedSubscription struct {
	Subscription
	User           *UserSummary `json:"user"`
	LastModifiedBy *string      `json:"lastModifiedBy"`
	LastModifiedAt time.Time    `json:"lastModifiedAt"`
}
