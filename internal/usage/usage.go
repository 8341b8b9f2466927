// Package usage enforces plan-tier limits on template and variant creation.
package usage

import (
	"context"
	"fmt"

	"github.com/rcdvgn/copypitch/internal/models"
)

// Action identifies the operation being checked.
type Action string

const (
	ActionCreateTemplate Action = "CREATE_TEMPLATE"
	ActionCreateVariant  Action = "CREATE_VARIANT"
)

// Limit error codes. These are stable machine-readable identifiers.
const (
	CodeTemplateLimitReached           = "TEMPLATE_LIMIT_REACHED"
	CodeVariantLimitReached            = "VARIANT_LIMIT_REACHED"
	CodeVariantPerTemplateLimitReached = "VARIANT_PER_TEMPLATE_LIMIT_REACHED"
	CodePlanNotFound                   = "PLAN_NOT_FOUND"
)

// Limits describes what a plan tier allows.
type Limits struct {
	MaxTemplates           int `yaml:"max_templates"`
	MaxVariants            int `yaml:"max_variants"`
	MaxVariantsPerTemplate int `yaml:"max_variants_per_template"`
}

// DefaultPlans returns the built-in plan table.
func DefaultPlans() map[string]Limits {
	return map[string]Limits{
		models.PlanFree: {
			MaxTemplates:           3,
			MaxVariants:            10,
			MaxVariantsPerTemplate: 5,
		},
		models.PlanStandard: {
			MaxTemplates:           25,
			MaxVariants:            100,
			MaxVariantsPerTemplate: 20,
		},
	}
}

// Result is the outcome of a limit check. When CanPerform is false, Code
// identifies the limit and Current/Limit carry the counts behind it.
type Result struct {
	CanPerform bool   `json:"can_perform"`
	Code       string `json:"code,omitempty"`
	Current    int    `json:"current,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Err converts a negative result into a LimitError, nil otherwise.
func (r *Result) Err() error {
	if r.CanPerform {
		return nil
	}
	return &LimitError{Code: r.Code, Current: r.Current, Limit: r.Limit}
}

// LimitError is a structured usage-limit rejection.
type LimitError struct {
	Code    string
	Current int
	Limit   int
}

func (e *LimitError) Error() string {
	switch e.Code {
	case CodeTemplateLimitReached:
		return fmt.Sprintf("Template limit reached (%d/%d). Upgrade to create more templates.", e.Current, e.Limit)
	case CodeVariantLimitReached:
		return fmt.Sprintf("Variant limit reached (%d/%d). Upgrade to create more variants.", e.Current, e.Limit)
	case CodeVariantPerTemplateLimitReached:
		return fmt.Sprintf("Template variant limit reached (%d/%d). Upgrade to add more variants per template.", e.Current, e.Limit)
	default:
		return "Usage limit reached. Please upgrade your plan."
	}
}

// Counter provides the document counts the checks need.
type Counter interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CountTemplates(ctx context.Context, userID string) (int, error)
	CountVariants(ctx context.Context, userID string) (int, error)
	CountTemplateVariants(ctx context.Context, templateID string) (int, error)
}

// Checker evaluates usage limits against a plan table.
type Checker struct {
	store Counter
	plans map[string]Limits
}

// NewChecker creates a checker. A nil plans map falls back to the built-in
// table.
func NewChecker(store Counter, plans map[string]Limits) *Checker {
	if plans == nil {
		plans = DefaultPlans()
	}
	return &Checker{store: store, plans: plans}
}

// Check reports whether the user may perform action. templateID is only
// consulted for variant creation, where it bounds the per-template count.
// The check never partially succeeds: a negative result means the caller
// must not create anything.
func (c *Checker) Check(ctx context.Context, userID string, action Action, templateID string) (*Result, error) {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	plan := user.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	limits, ok := c.plans[plan]
	if !ok {
		return &Result{CanPerform: false, Code: CodePlanNotFound}, nil
	}

	switch action {
	case ActionCreateTemplate:
		return c.checkTemplateLimit(ctx, userID, limits)
	case ActionCreateVariant:
		return c.checkVariantLimit(ctx, userID, templateID, limits)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func (c *Checker) checkTemplateLimit(ctx context.Context, userID string, limits Limits) (*Result, error) {
	current, err := c.store.CountTemplates(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current >= limits.MaxTemplates {
		return &Result{
			CanPerform: false,
			Code:       CodeTemplateLimitReached,
			Current:    current,
			Limit:      limits.MaxTemplates,
		}, nil
	}
	return &Result{CanPerform: true}, nil
}

func (c *Checker) checkVariantLimit(ctx context.Context, userID, templateID string, limits Limits) (*Result, error) {
	current, err := c.store.CountVariants(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current >= limits.MaxVariants {
		return &Result{
			CanPerform: false,
			Code:       CodeVariantLimitReached,
			Current:    current,
			Limit:      limits.MaxVariants,
		}, nil
	}

	if templateID != "" {
		perTemplate, err := c.store.CountTemplateVariants(ctx, templateID)
		if err != nil {
			return nil, err
		}
		if perTemplate >= limits.MaxVariantsPerTemplate {
			return &Result{
				CanPerform: false,
				Code:       CodeVariantPerTemplateLimitReached,
				Current:    perTemplate,
				Limit:      limits.MaxVariantsPerTemplate,
			}, nil
		}
	}

	return &Result{CanPerform: true}, nil
}
