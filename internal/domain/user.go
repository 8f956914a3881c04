package domain

import "time"

// User is the local read cache of CRM user identity, replicated from
// user lifecycle events. It is written only by the CRM event handlers
// and read by the rest of the service to attach display names.
type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	UserID       string    `json:"userId"`
	UserEmail    *string   `json:"userEmail"`
	UserFullName *string   `json:"userFullName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSummary is the denormalized owner identity attached to CRM list results.
type UserSummary struct {
	UserID       string  `json:"userId"`
	UserEmail    *string `json:"userEmail"`
	UserFullName *string `json:"userFullName"`
}
