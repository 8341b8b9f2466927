// Package billing syncs user plan tiers from payment-provider webhook
// events. It deliberately carries no provider SDK: events arrive as signed
// generic JSON and are mapped onto plan changes in the user store.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcdvgn/copypitch/internal/models"
)

// Event types handled by the plan sync.
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
	EventCheckoutCompleted   = "checkout.session.completed"
)

// Event is the wire form of a billing webhook event.
type Event struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	CustomerID string `json:"customer_id"`
	UserID     string `json:"user_id,omitempty"`
	PriceID    string `json:"price_id,omitempty"`
	Created    int64  `json:"created"`
}

// UserStore is the store surface plan sync needs.
type UserStore interface {
	GetUserByCustomerID(ctx context.Context, customerID string) (*models.User, error)
	UpdateUserPlan(ctx context.Context, id, plan string) error
	SetUserCustomerID(ctx context.Context, id, customerID string) error
	TouchUserPayment(ctx context.Context, id string, at time.Time) error
}

// Handler applies billing events to the user store.
type Handler struct {
	store      UserStore
	pricePlans map[string]string // price id -> plan name
	logger     *slog.Logger
}

// NewHandler creates a handler. pricePlans maps provider price IDs onto
// plan names; subscriptions with an unmapped price are logged and skipped.
func NewHandler(store UserStore, pricePlans map[string]string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      store,
		pricePlans: pricePlans,
		logger:     logger.With("component", "billing"),
	}
}

// ParseEvent decodes a webhook payload.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	return &event, nil
}

// HandleEvent applies one event. Unknown event types are acknowledged and
// logged; a missing user is logged and skipped so the provider does not
// retry forever.
func (h *Handler) HandleEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return h.handleSubscriptionChange(ctx, event)
	case EventSubscriptionDeleted:
		return h.handleSubscriptionDeleted(ctx, event)
	case EventPaymentSucceeded:
		return h.handlePaymentSucceeded(ctx, event)
	case EventPaymentFailed:
		h.logger.Warn("payment failed", "customer_id", event.CustomerID, "event_id", event.ID)
		return nil
	case EventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)
	default:
		h.logger.Info("unhandled event type", "type", event.Type, "event_id", event.ID)
		return nil
	}
}

func (h *Handler) handleSubscriptionChange(ctx context.Context, event *Event) error {
	user, err := h.store.GetUserByCustomerID(ctx, event.CustomerID)
	if err != nil {
		h.logger.Error("user not found for customer", "customer_id", event.CustomerID)
		return nil
	}

	plan, ok := h.pricePlans[event.PriceID]
	if !ok {
		h.logger.Error("no plan mapped for price", "price_id", event.PriceID, "user_id", user.ID)
		return nil
	}

	if err := h.store.UpdateUserPlan(ctx, user.ID, plan); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	h.logger.Info("subscription synced", "user_id", user.ID, "plan", plan)
	return nil
}

func (h *Handler) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	user, err := h.store.GetUserByCustomerID(ctx, event.CustomerID)
	if err != nil {
		h.logger.Error("user not found for customer", "customer_id", event.CustomerID)
		return nil
	}

	if err := h.store.UpdateUserPlan(ctx, user.ID, models.PlanFree); err != nil {
		return fmt.Errorf("failed to downgrade plan: %w", err)
	}
	h.logger.Info("subscription cancelled, downgraded to free", "user_id", user.ID)
	return nil
}

func (h *Handler) handlePaymentSucceeded(ctx context.Context, event *Event) error {
	user, err := h.store.GetUserByCustomerID(ctx, event.CustomerID)
	if err != nil {
		h.logger.Error("user not found for customer", "customer_id", event.CustomerID)
		return nil
	}

	at := time.Now()
	if event.Created > 0 {
		at = time.Unix(event.Created, 0)
	}
	if err := h.store.TouchUserPayment(ctx, user.ID, at); err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

func (h *Handler) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	if event.UserID == "" || event.CustomerID == "" {
		h.logger.Error("checkout event missing user or customer id", "event_id", event.ID)
		return nil
	}
	if err := h.store.SetUserCustomerID(ctx, event.UserID, event.CustomerID); err != nil {
		return fmt.Errorf("failed to bind customer: %w", err)
	}
	h.logger.Info("customer bound", "user_id", event.UserID, "customer_id", event.CustomerID)
	return nil
}
