package models

import "time"

// Variant is one content variation of a template. Content may contain
// {{placeholder}} tokens. At most one variant per template is the default;
// listings always order the default variant first.
type Variant struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
