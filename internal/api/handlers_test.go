package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/projectshell/subscription-service/internal/app"
	"github.com/projectshell/subscription-service/internal/domain"
	"github.com/projectshell/subscription-service/internal/store"
)

const (
	testSecret    = "test-secret"
	testProfileID = "4f8b9f1e-3c52-4a4e-9a0a-9c1d2e3f4a5b"
)

type stubQueryStore struct {
	current   *domain.CurrentSubscription
	list      []domain.Subscription
	resignSub *domain.Subscription
	resignErr error
}

func (s *stubQueryStore) GetCurrentStartDate(ctx context.Context, profileID string) (*domain.CurrentSubscription, error) {
	return s.current, nil
}

func (s *stubQueryStore) ListSubscriptions(ctx context.Context, filter store.ListFilter) ([]domain.Subscription, error) {
	return s.list, nil
}

func (s *stubQueryStore) ResignCurrent(ctx context.Context, tenantID *string, profileID string, dateResigned time.Time, reason string, updatedBy *string) (*domain.Subscription, error) {
	if s.resignErr != nil {
		return nil, s.resignErr
	}
	return s.resignSub, nil
}

type stubUserReader struct{}

func (s *stubUserReader) FindByTenantAndUserID(ctx context.Context, tenantID, userID string) (*domain.User, error) {
	return nil, store.ErrUserNotFound
}

func (s *stubUserReader) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return nil, store.ErrUserNotFound
}

func newTestRouter(t *testing.T, subs *stubQueryStore) http.Handler {
	t.Helper()
	service := app.NewService(subs, &stubUserReader{})
	return NewRouter(NewHandler(service), testSecret, nil)
}

func signToken(t *testing.T, userType string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "crm-user-1",
		"tenantId": "tenant-a",
		"userType": userType,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestGetCurrentInvalidProfileID(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/profile/not-a-uuid/current", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "fail" || env.Data != "Invalid profileId" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestGetCurrentReturnsNullWhenAbsent(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/profile/"+testProfileID+"/current", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "success" || env.Data != nil {
		t.Fatalf("expected success with null data, got %+v", env)
	}
}

func TestGetCurrentReturnsStartDate(t *testing.T) {
	start := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	router := newTestRouter(t, &stubQueryStore{current: &domain.CurrentSubscription{StartDate: start}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/profile/"+testProfileID+"/current", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "2024-03-10T00:00:00Z") {
		t.Fatalf("expected start date in body, got %s", rec.Body.String())
	}
}

func TestListSubscriptionsRequiresToken(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListSubscriptionsRejectsNonCRMUsers(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, domain.UserTypePortal))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "fail" {
		t.Fatalf("expected fail envelope, got %+v", env)
	}
}

func TestListSubscriptionsReturnsCount(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{list: []domain.Subscription{
		{ID: "sub-1", ProfileID: testProfileID, SubscriptionYear: 2024},
		{ID: "sub-2", ProfileID: testProfileID, SubscriptionYear: 2023},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/?isCurrent=true", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, domain.UserTypeCRM))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Status string `json:"status"`
		Data   struct {
			Count int               `json:"count"`
			Data  []json.RawMessage `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Data.Count != 2 || len(body.Data.Data) != 2 {
		t.Fatalf("expected count 2, got %+v", body.Data)
	}
}

func TestResignRequiresBodyFields(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/subscriptions/resign/"+testProfileID, strings.NewReader(`{"reason":"moved"}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, domain.UserTypeCRM))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Data != "dateResigned and reason are required" {
		t.Fatalf("unexpected message %v", env.Data)
	}
}

func TestResignNoCurrentSubscription(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{resignErr: store.ErrNoCurrentSubscription})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/subscriptions/resign/"+testProfileID, strings.NewReader(`{"dateResigned":"2024-07-01","reason":"moved"}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, domain.UserTypeCRM))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Data != "No current subscription found for profile" {
		t.Fatalf("unexpected message %v", env.Data)
	}
}

func TestResignReturnsResignedRecord(t *testing.T) {
	resigned := &domain.Subscription{
		ID:                 "sub-1",
		ProfileID:          testProfileID,
		SubscriptionYear:   2024,
		SubscriptionStatus: domain.StatusResigned,
	}
	router := newTestRouter(t, &stubQueryStore{resignSub: resigned})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/subscriptions/resign/"+testProfileID, strings.NewReader(`{"dateResigned":"2024-07-01T00:00:00Z","reason":"moved"}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, domain.UserTypeCRM))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"subscriptionStatus":"Resigned"`) {
		t.Fatalf("expected Resigned status in body, got %s", rec.Body.String())
	}
}

func TestAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	router := newTestRouter(t, &stubQueryStore{})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "crm-user-1",
		"userType": domain.UserTypeCRM,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
