package models

import "time"

// Template represents a reusable message template owned by a user.
// Variables holds the persisted variable set: only names that were given a
// non-empty value at some point end up here, keyed by placeholder name.
type Template struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Name       string            `json:"name"`
	Title      string            `json:"title,omitempty"`
	Category   string            `json:"category"`
	Variables  map[string]string `json:"variables"`
	VariantIDs []string          `json:"variant_ids"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TemplateListFilter filters template listings.
type TemplateListFilter struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}
