package app

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/projectshell/subscription-service/internal/domain"
	"github.com/projectshell/subscription-service/internal/store"
)

const (
	testProfileID = "4f8b9f1e-3c52-4a4e-9a0a-9c1d2e3f4a5b"
	testTenantID  = "tenant-a"
)

type paymentUpdate struct {
	subscriptionID   string
	paymentType      *string
	paymentFrequency *string
	payrollNo        *string
}

type fakeSubscriptionStore struct {
	subs      []domain.Subscription
	created   []domain.Subscription
	updates   []paymentUpdate
	enqueued  []domain.OutboundEvent
	createErr error
	listErr   error
	findYear  *domain.Subscription
}

func (f *fakeSubscriptionStore) ListByProfile(ctx context.Context, tenantID *string, profileID string) ([]domain.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Subscription
	for _, sub := range f.subs {
		if sub.ProfileID == profileID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionStore) FindByProfileYear(ctx context.Context, tenantID *string, profileID string, year int) (*domain.Subscription, error) {
	if f.findYear != nil {
		return f.findYear, nil
	}
	for i := range f.subs {
		if f.subs[i].ProfileID == profileID && f.subs[i].SubscriptionYear == year {
			return &f.subs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionStore) CreateSubscriptionAndEnqueueEvent(ctx context.Context, sub *domain.Subscription, exchange, routingKey string, buildPayload func(subscriptionID string) interface{}) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}

	id := fmt.Sprintf("sub-%d", len(f.created)+1)
	for i := range f.subs {
		if f.subs[i].ProfileID == sub.ProfileID {
			f.subs[i].IsCurrent = false
		}
	}

	created := *sub
	created.ID = id
	f.subs = append(f.subs, created)
	f.created = append(f.created, created)

	payload, ok := buildPayload(id).(domain.OutboundEvent)
	if !ok {
		return "", fmt.Errorf("unexpected payload type")
	}
	f.enqueued = append(f.enqueued, payload)
	return id, nil
}

func (f *fakeSubscriptionStore) UpdatePaymentFields(ctx context.Context, subscriptionID string, paymentType, paymentFrequency, payrollNo *string) error {
	f.updates = append(f.updates, paymentUpdate{
		subscriptionID:   subscriptionID,
		paymentType:      paymentType,
		paymentFrequency: paymentFrequency,
		payrollNo:        payrollNo,
	})
	return nil
}

type fakeUserStore struct {
	upserts []domain.CrmUserData
	err     error
}

func (f *fakeUserStore) UpsertCrmUser(ctx context.Context, data domain.CrmUserData) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, data)
	return nil
}

func upsertEventBody(t *testing.T, data domain.SubscriptionUpsertData) []byte {
	t.Helper()
	body, err := json.Marshal(domain.SubscriptionUpsertRequestedEvent{
		EventID:       "evt-1",
		CorrelationID: "corr-1",
		TenantID:      testTenantID,
		Data:          data,
	})
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	return body
}

func strPtr(s string) *string { return &s }

func existingRecord(year int, isCurrent bool) domain.Subscription {
	tenant := testTenantID
	return domain.Subscription{
		ID:                 fmt.Sprintf("existing-%d", year),
		TenantID:           &tenant,
		ProfileID:          testProfileID,
		SubscriptionYear:   year,
		IsCurrent:          isCurrent,
		SubscriptionStatus: domain.StatusActive,
		StartDate:          time.Date(year, time.February, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsertFirstEventCreatesNewJoin(t *testing.T) {
	subs := &fakeSubscriptionStore{}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:  testProfileID,
		DateJoined: "2024-03-10",
	}))

	if !ack {
		t.Fatal("expected event to be acknowledged")
	}
	if len(subs.created) != 1 {
		t.Fatalf("expected 1 created record, got %d", len(subs.created))
	}

	created := subs.created[0]
	if created.SubscriptionYear != 2024 {
		t.Fatalf("expected year 2024, got %d", created.SubscriptionYear)
	}
	if !created.IsCurrent {
		t.Fatal("expected created record to be current")
	}
	if created.MembershipMovement != domain.MovementNewJoin {
		t.Fatalf("expected NewJoin, got %s", created.MembershipMovement)
	}
	if created.SubscriptionStatus != domain.StatusActive {
		t.Fatalf("expected Active status, got %s", created.SubscriptionStatus)
	}

	wantEnd := time.Date(2024, time.December, 31, 23, 59, 59, 999000000, time.UTC)
	if !created.EndDate.Equal(wantEnd) {
		t.Fatalf("expected end date %v, got %v", wantEnd, created.EndDate)
	}
	wantRollover := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	if created.RolloverDate == nil || !created.RolloverDate.Equal(wantRollover) {
		t.Fatalf("expected rollover date %v, got %v", wantRollover, created.RolloverDate)
	}

	if len(subs.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", len(subs.enqueued))
	}
	event := subs.enqueued[0]
	if event.CorrelationID != "corr-1" || event.TenantID != testTenantID {
		t.Fatalf("expected correlation and tenant carried through, got %+v", event)
	}
	data, ok := event.Data.(domain.SubscriptionCurrentUpdatedData)
	if !ok {
		t.Fatalf("unexpected event data type %T", event.Data)
	}
	if data.SubscriptionID != "sub-1" || data.ProfileID != testProfileID {
		t.Fatalf("unexpected event data %+v", data)
	}
}

func TestUpsertSameYearUpdatesPaymentFieldsOnly(t *testing.T) {
	subs := &fakeSubscriptionStore{subs: []domain.Subscription{existingRecord(2024, true)}}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:   testProfileID,
		DateJoined:  "2024-09-01",
		PaymentType: strPtr(domain.PaymentTypeDirectDebit),
		PayrollNo:   strPtr("PR-77"),
	}))

	if !ack {
		t.Fatal("expected event to be acknowledged")
	}
	if len(subs.created) != 0 {
		t.Fatalf("expected no created records, got %d", len(subs.created))
	}
	if len(subs.enqueued) != 0 {
		t.Fatalf("expected no enqueued events, got %d", len(subs.enqueued))
	}
	if len(subs.updates) != 1 {
		t.Fatalf("expected 1 payment update, got %d", len(subs.updates))
	}

	update := subs.updates[0]
	if update.subscriptionID != "existing-2024" {
		t.Fatalf("expected update on existing-2024, got %s", update.subscriptionID)
	}
	if update.paymentType == nil || *update.paymentType != domain.PaymentTypeDirectDebit {
		t.Fatalf("expected payment type update, got %v", update.paymentType)
	}
	if update.payrollNo == nil || *update.payrollNo != "PR-77" {
		t.Fatalf("expected payroll update, got %v", update.payrollNo)
	}
	if update.paymentFrequency != nil {
		t.Fatalf("expected absent frequency to stay absent, got %v", update.paymentFrequency)
	}

	if !subs.subs[0].IsCurrent {
		t.Fatal("expected existing record to stay current")
	}
}

func TestUpsertSameYearWithoutPaymentFieldsIsNoop(t *testing.T) {
	subs := &fakeSubscriptionStore{subs: []domain.Subscription{existingRecord(2024, true)}}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:  testProfileID,
		DateJoined: "2024-09-01",
	}))

	if !ack {
		t.Fatal("expected event to be acknowledged")
	}
	if len(subs.updates) != 0 {
		t.Fatalf("expected no updates, got %d", len(subs.updates))
	}
}

func TestUpsertAfterLapsedYearsIsReinstate(t *testing.T) {
	subs := &fakeSubscriptionStore{subs: []domain.Subscription{existingRecord(2023, false)}}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:  testProfileID,
		DateJoined: "2024-03-10",
	}))

	if !ack {
		t.Fatal("expected event to be acknowledged")
	}
	if len(subs.created) != 1 {
		t.Fatalf("expected 1 created record, got %d", len(subs.created))
	}
	if subs.created[0].MembershipMovement != domain.MovementReinstate {
		t.Fatalf("expected Reinstate, got %s", subs.created[0].MembershipMovement)
	}
}

func TestUpsertNextYearFlipsCurrent(t *testing.T) {
	subs := &fakeSubscriptionStore{subs: []domain.Subscription{existingRecord(2024, true)}}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:  testProfileID,
		DateJoined: "2025-01-15",
	}))

	if !ack {
		t.Fatal("expected event to be acknowledged")
	}

	currentCount := 0
	for _, sub := range subs.subs {
		if sub.IsCurrent {
			currentCount++
			if sub.SubscriptionYear != 2025 {
				t.Fatalf("expected the 2025 record to be current, got %d", sub.SubscriptionYear)
			}
		}
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly one current record, got %d", currentCount)
	}

	if len(subs.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", len(subs.enqueued))
	}
	data := subs.enqueued[0].Data.(domain.SubscriptionCurrentUpdatedData)
	if data.SubscriptionID != "sub-1" {
		t.Fatalf("expected event to reference the new record, got %s", data.SubscriptionID)
	}
}

func TestUpsertDropsInvalidEnumValues(t *testing.T) {
	subs := &fakeSubscriptionStore{}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:        testProfileID,
		DateJoined:       "2024-03-10",
		PaymentType:      strPtr("Bitcoin"),
		PaymentFrequency: strPtr("Weekly"),
		PayrollNo:        strPtr("PR-1"),
	}))

	if !ack {
		t.Fatal("expected event to be acknowledged")
	}
	created := subs.created[0]
	if created.PaymentType != nil {
		t.Fatalf("expected invalid payment type dropped, got %v", *created.PaymentType)
	}
	if created.PaymentFrequency != nil {
		t.Fatalf("expected invalid frequency dropped, got %v", *created.PaymentFrequency)
	}
	if created.PayrollNo == nil || *created.PayrollNo != "PR-1" {
		t.Fatalf("expected payroll number kept, got %v", created.PayrollNo)
	}
}

func TestUpsertRejectsInvalidProfileID(t *testing.T) {
	subs := &fakeSubscriptionStore{}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:  "not-a-uuid",
		DateJoined: "2024-03-10",
	}))

	if ack {
		t.Fatal("expected event to be nacked for retry")
	}
	if len(subs.created) != 0 {
		t.Fatalf("expected no created records, got %d", len(subs.created))
	}
}

func TestUpsertRejectsMissingDateJoined(t *testing.T) {
	subs := &fakeSubscriptionStore{}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID: testProfileID,
	}))

	if ack {
		t.Fatal("expected event to be nacked for retry")
	}
}

func TestUpsertAcksMalformedBody(t *testing.T) {
	handler := NewSubscriptionEventHandler(&fakeSubscriptionStore{}, &fakeUserStore{})

	if !handler.HandleSubscriptionUpsertRequested([]byte("{not json")) {
		t.Fatal("expected malformed body to be acknowledged and dropped")
	}
}

func TestUpsertDuplicateYearConflictFallsBackToUpdate(t *testing.T) {
	winner := existingRecord(2024, true)
	subs := &fakeSubscriptionStore{
		createErr: store.ErrDuplicateYear,
		findYear:  &winner,
	}
	handler := NewSubscriptionEventHandler(subs, &fakeUserStore{})

	ack := handler.HandleSubscriptionUpsertRequested(upsertEventBody(t, domain.SubscriptionUpsertData{
		ProfileID:   testProfileID,
		DateJoined:  "2024-03-10",
		PaymentType: strPtr(domain.PaymentTypeCardPayment),
	}))

	if !ack {
		t.Fatal("expected conflicting event to be acknowledged after fallback")
	}
	if len(subs.updates) != 1 {
		t.Fatalf("expected the conflict to take the update path, got %d updates", len(subs.updates))
	}
	if subs.updates[0].subscriptionID != winner.ID {
		t.Fatalf("expected update on the winning record, got %s", subs.updates[0].subscriptionID)
	}
}

func TestCrmUserEventUpsertsCache(t *testing.T) {
	users := &fakeUserStore{}
	handler := NewSubscriptionEventHandler(&fakeSubscriptionStore{}, users)

	body, _ := json.Marshal(domain.CrmUserEvent{
		Data: domain.CrmUserData{
			UserID:       "crm-1",
			TenantID:     testTenantID,
			UserEmail:    strPtr("jo@example.com"),
			UserFullName: strPtr("Jo Bloggs"),
		},
	})

	if !handler.HandleCrmUserCreated(body) {
		t.Fatal("expected event to be acknowledged")
	}
	if len(users.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(users.upserts))
	}
	if users.upserts[0].UserID != "crm-1" {
		t.Fatalf("unexpected upsert %+v", users.upserts[0])
	}
}

func TestCrmUserEventMissingIdentityIsDropped(t *testing.T) {
	users := &fakeUserStore{}
	handler := NewSubscriptionEventHandler(&fakeSubscriptionStore{}, users)

	body, _ := json.Marshal(domain.CrmUserEvent{
		Data: domain.CrmUserData{UserID: "crm-1"},
	})

	if !handler.HandleCrmUserUpdated(body) {
		t.Fatal("expected invalid event to be acknowledged and dropped")
	}
	if len(users.upserts) != 0 {
		t.Fatalf("expected no upserts, got %d", len(users.upserts))
	}
}
