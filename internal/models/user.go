package models

import "time"

// Plan identifiers. Limits per plan live in the usage package.
const (
	PlanFree     = "free"
	PlanStandard = "standard"
)

// User is an account that owns templates and variants.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Name              string     `json:"name,omitempty"`
	Plan              string     `json:"plan"`
	BillingCustomerID string     `json:"billing_customer_id,omitempty"`
	LastPaymentAt     *time.Time `json:"last_payment_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
