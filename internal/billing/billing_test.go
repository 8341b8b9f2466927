package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rcdvgn/copypitch/internal/models"
)

type fakeUserStore struct {
	users     map[string]*models.User // keyed by customer ID
	planSets  map[string]string       // user ID -> plan
	customers map[string]string       // user ID -> customer ID
	payments  map[string]time.Time
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:     make(map[string]*models.User),
		planSets:  make(map[string]string),
		customers: make(map[string]string),
		payments:  make(map[string]time.Time),
	}
}

func (s *fakeUserStore) GetUserByCustomerID(_ context.Context, customerID string) (*models.User, error) {
	user, ok := s.users[customerID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return user, nil
}

func (s *fakeUserStore) UpdateUserPlan(_ context.Context, id, plan string) error {
	s.planSets[id] = plan
	return nil
}

func (s *fakeUserStore) SetUserCustomerID(_ context.Context, id, customerID string) error {
	s.customers[id] = customerID
	return nil
}

func (s *fakeUserStore) TouchUserPayment(_ context.Context, id string, at time.Time) error {
	s.payments[id] = at
	return nil
}

func newTestHandler(store *fakeUserStore) *Handler {
	pricePlans := map[string]string{"price_std": models.PlanStandard}
	return NewHandler(store, pricePlans, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleEvent_SubscriptionCreated(t *testing.T) {
	store := newFakeUserStore()
	store.users["cus_1"] = &models.User{ID: "user-1", Plan: models.PlanFree}
	h := newTestHandler(store)

	event := &Event{Type: EventSubscriptionCreated, CustomerID: "cus_1", PriceID: "price_std"}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if got := store.planSets["user-1"]; got != models.PlanStandard {
		t.Errorf("plan = %q, want %q", got, models.PlanStandard)
	}
}

func TestHandleEvent_UnmappedPrice(t *testing.T) {
	store := newFakeUserStore()
	store.users["cus_1"] = &models.User{ID: "user-1", Plan: models.PlanFree}
	h := newTestHandler(store)

	event := &Event{Type: EventSubscriptionUpdated, CustomerID: "cus_1", PriceID: "price_unknown"}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if _, changed := store.planSets["user-1"]; changed {
		t.Error("plan should not change for an unmapped price")
	}
}

func TestHandleEvent_SubscriptionDeleted(t *testing.T) {
	store := newFakeUserStore()
	store.users["cus_1"] = &models.User{ID: "user-1", Plan: models.PlanStandard}
	h := newTestHandler(store)

	event := &Event{Type: EventSubscriptionDeleted, CustomerID: "cus_1"}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if got := store.planSets["user-1"]; got != models.PlanFree {
		t.Errorf("plan = %q, want %q", got, models.PlanFree)
	}
}

func TestHandleEvent_PaymentSucceeded(t *testing.T) {
	store := newFakeUserStore()
	store.users["cus_1"] = &models.User{ID: "user-1"}
	h := newTestHandler(store)

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	event := &Event{Type: EventPaymentSucceeded, CustomerID: "cus_1", Created: created.Unix()}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if got := store.payments["user-1"]; !got.Equal(created) {
		t.Errorf("payment time = %v, want %v", got, created)
	}
}

func TestHandleEvent_CheckoutCompleted(t *testing.T) {
	store := newFakeUserStore()
	h := newTestHandler(store)

	event := &Event{Type: EventCheckoutCompleted, UserID: "user-1", CustomerID: "cus_1"}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if got := store.customers["user-1"]; got != "cus_1" {
		t.Errorf("customer = %q, want %q", got, "cus_1")
	}
}

func TestHandleEvent_UnknownType(t *testing.T) {
	store := newFakeUserStore()
	h := newTestHandler(store)

	event := &Event{Type: "refund.created", CustomerID: "cus_1"}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Errorf("unknown event types should be acknowledged, got error %v", err)
	}
}

func TestHandleEvent_UnknownCustomer(t *testing.T) {
	store := newFakeUserStore()
	h := newTestHandler(store)

	event := &Event{Type: EventSubscriptionCreated, CustomerID: "cus_missing", PriceID: "price_std"}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Errorf("missing customer should be skipped, got error %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(`{"id":"evt_1","type":"subscription.created","customer_id":"cus_1","price_id":"price_std"}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if event.Type != EventSubscriptionCreated || event.CustomerID != "cus_1" {
		t.Errorf("ParseEvent() = %+v", event)
	}

	if _, err := ParseEvent([]byte(`{"id":"evt_1"}`)); err == nil {
		t.Error("ParseEvent() should reject events without a type")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("ParseEvent() should reject malformed payloads")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"subscription.created"}`)
	now := time.Now()

	header := Sign(payload, "whsec_test", now)
	if err := VerifySignature(payload, header, "whsec_test", now); err != nil {
		t.Errorf("VerifySignature() error = %v", err)
	}

	if err := VerifySignature(payload, header, "whsec_other", now); err != ErrBadSignature {
		t.Errorf("wrong secret error = %v, want ErrBadSignature", err)
	}

	tampered := []byte(`{"id":"evt_2","type":"subscription.created"}`)
	if err := VerifySignature(tampered, header, "whsec_test", now); err != ErrBadSignature {
		t.Errorf("tampered payload error = %v, want ErrBadSignature", err)
	}

	if err := VerifySignature(payload, "", "whsec_test", now); err != ErrMissingSignature {
		t.Errorf("empty header error = %v, want ErrMissingSignature", err)
	}

	stale := Sign(payload, "whsec_test", now.Add(-6*time.Minute))
	if err := VerifySignature(payload, stale, "whsec_test", now); err != ErrStaleSignature {
		t.Errorf("stale signature error = %v, want ErrStaleSignature", err)
	}

	future := Sign(payload, "whsec_test", now.Add(6*time.Minute))
	if err := VerifySignature(payload, future, "whsec_test", now); err != ErrStaleSignature {
		t.Errorf("future signature error = %v, want ErrStaleSignature", err)
	}
}
