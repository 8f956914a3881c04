/**
 * @description
 * This file contains the HTTP handler functions for the subscription-service.
 * Handlers parse incoming requests, call the service layer and write the
 * shared response envelope.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/projectshell/subscription-service/internal/app"
	"github.com/projectshell/subscription-service/internal/store"
)

// Handler holds the application service that handlers interact with.
type Handler struct {
	service *app.Service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// handleGetCurrentByProfile returns the start date of a profile's current
// subscription, or null when the profile has none.
func (h *Handler) handleGetCurrentByProfile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileId")

	current, err := h.service.GetCurrentByProfile(r.Context(), profileID)
	if err != nil {
		if errors.Is(err, app.ErrInvalidProfileID) {
			respondFail(w, http.StatusBadRequest, "Invalid profileId")
			return
		}
		log.Printf("ERROR: [%s-%s] %v", r.Method, r.URL.Path, err)
		respondServerError(w)
		return
	}

	if current == nil {
		respondSuccess(w, nil)
		return
	}
	respondSuccess(w, current)
}

// subscriptionList is the CRM list payload: count plus the enriched rows.
type subscriptionList struct {
	Count int         `json:"count"`
	Data  interface{} `json:"data"`
}

// handleGetSubscriptions returns the CRM view of subscription records,
// filtered by profileId, applicationId and isCurrent.
func (h *Handler) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	input := app.ListInput{}
	if user.TenantID != "" {
		tenant := user.TenantID
		input.TenantID = &tenant
	}
	if v := r.URL.Query().Get("profileId"); v != "" {
		input.ProfileID = &v
	}
	if v := r.URL.Query().Get("applicationId"); v != "" {
		input.ApplicationID = &v
	}
	switch r.URL.Query().Get("isCurrent") {
	case "true":
		isCurrent := true
		input.IsCurrent = &isCurrent
	case "false":
		isCurrent := false
		input.IsCurrent = &isCurrent
	}

	subs, err := h.service.ListSubscriptions(r.Context(), input)
	if err != nil {
		if errors.Is(err, app.ErrInvalidProfileID) {
			respondFail(w, http.StatusBadRequest, "Invalid profileId")
			return
		}
		log.Printf("ERROR: [%s-%s] %v", r.Method, r.URL.Path, err)
		respondServerError(w)
		return
	}

	respondSuccess(w, subscriptionList{Count: len(subs), Data: subs})
}

// resignRequest is the body of the resign command.
type resignRequest struct {
	DateResigned string `json:"dateResigned"`
	Reason       string `json:"reason"`
}

// handleResignMembership resigns the profile's current subscription.
func (h *Handler) handleResignMembership(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileId")
	user, _ := UserFromContext(r.Context())

	var req resignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DateResigned == "" || req.Reason == "" {
		respondFail(w, http.StatusBadRequest, "dateResigned and reason are required")
		return
	}

	dateResigned, err := parseRequestDate(req.DateResigned)
	if err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid dateResigned")
		return
	}

	input := app.ResignInput{
		ProfileID:    profileID,
		DateResigned: dateResigned,
		Reason:       req.Reason,
		ActingUserID: user.UserID,
	}
	if user.TenantID != "" {
		tenant := user.TenantID
		input.TenantID = &tenant
	}

	sub, err := h.service.ResignMembership(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidProfileID):
			respondFail(w, http.StatusBadRequest, "Invalid profileId")
		case errors.Is(err, store.ErrNoCurrentSubscription):
			respondFail(w, http.StatusNotFound, "No current subscription found for profile")
		default:
			log.Printf("ERROR: [%s-%s] %v", r.Method, r.URL.Path, err)
			respondServerError(w)
		}
		return
	}

	respondSuccess(w, sub)
}

// parseRequestDate accepts the same formats clients send elsewhere in the
// membership platform.
func parseRequestDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
