// Package editor holds the editing-session state controller: in-memory
// template and variant collections, current-selection pointers, the working
// variable set, and debounced autosave of content and variable edits.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/rcdvgn/copypitch/internal/metrics"
	"github.com/rcdvgn/copypitch/internal/models"
	"github.com/rcdvgn/copypitch/internal/placeholder"
	"github.com/rcdvgn/copypitch/internal/usage"
)

// ErrNoTemplate is returned by operations that require a current template.
var ErrNoTemplate = errors.New("no template selected")

// ErrEmptyName rejects template creation with a blank name before any
// store call is made.
var ErrEmptyName = errors.New("template name is required")

// Store is the document-store surface the session needs.
type Store interface {
	CreateTemplate(ctx context.Context, userID, name, category string, initialVars map[string]string) (*models.Template, error)
	CreateVariant(ctx context.Context, userID, templateID, content, name string, isDefault bool) (*models.Variant, error)
	ListTemplates(ctx context.Context, userID string, filter models.TemplateListFilter) ([]*models.Template, error)
	ListVariants(ctx context.Context, templateID string) ([]*models.Variant, error)
	GetDefaultVariant(ctx context.Context, templateID string) (*models.Variant, error)
	SetDefaultVariant(ctx context.Context, templateID, variantID string) error
	UpdateVariantContent(ctx context.Context, id, content string) error
	UpdateTemplateVariables(ctx context.Context, id string, variables map[string]string) error
}

// UsageChecker gates template and variant creation.
type UsageChecker interface {
	Check(ctx context.Context, userID string, action usage.Action, templateID string) (*usage.Result, error)
}

// Notifier receives user-visible success/failure notifications.
type Notifier interface {
	Notify(kind, message string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(kind, message string) {}

// Config configures a session.
type Config struct {
	UserID         string
	Store          Store
	Usage          UsageChecker
	Notifier       Notifier
	Logger         *slog.Logger
	DebounceWindow time.Duration
}

// Session is the per-user editing-session state controller. One owned
// instance per active session; all mutations of the local collections go
// through it. Local state is authoritative for the session, the store is a
// best-effort mirror updated through debounced writes.
type Session struct {
	userID   string
	store    Store
	usage    UsageChecker
	notifier Notifier
	logger   *slog.Logger

	templates []*models.Template
	variants  []*models.Variant

	currentTemplateID string
	currentVariantID  string
	variables         map[string]string

	isEditing          bool
	showVariableEditor bool

	contentSaver  *Debouncer
	variableSaver *Debouncer
}

// NewSession creates a session and loads the user's templates.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = noopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		userID:        cfg.UserID,
		store:         cfg.Store,
		usage:         cfg.Usage,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger.With("component", "editor"),
		variables:     map[string]string{},
		contentSaver:  NewDebouncer(cfg.DebounceWindow),
		variableSaver: NewDebouncer(cfg.DebounceWindow),
	}

	templates, err := s.store.ListTemplates(ctx, s.userID, models.TemplateListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	s.templates = templates

	return s, nil
}

// Close cancels any pending debounced writes. Must be called on session
// teardown so a stale autosave cannot land afterwards.
func (s *Session) Close() {
	s.contentSaver.Cancel()
	s.variableSaver.Cancel()
}

// CreateNewTemplate creates a template with an empty variable map and a
// single empty default variant, prepends it locally and selects it. On a
// usage-limit rejection nothing is created and local state is untouched.
func (s *Session) CreateNewTemplate(ctx context.Context, name, category string) error {
	if name == "" {
		return ErrEmptyName
	}
	if category == "" {
		category = "General"
	}

	if s.usage != nil {
		res, err := s.usage.Check(ctx, s.userID, usage.ActionCreateTemplate, "")
		if err != nil {
			s.notifier.Notify("error", "Could not verify your plan limits.")
			return fmt.Errorf("usage check failed: %w", err)
		}
		if limitErr := res.Err(); limitErr != nil {
			s.notifier.Notify("error", limitErr.Error())
			return limitErr
		}
	}

	tmpl, err := s.store.CreateTemplate(ctx, s.userID, name, category, map[string]string{})
	if err != nil {
		s.notifier.Notify("error", "Failed to create template.")
		return err
	}
	variant, err := s.store.CreateVariant(ctx, s.userID, tmpl.ID, "", "Default", true)
	if err != nil {
		s.notifier.Notify("error", "Failed to create template.")
		return err
	}
	tmpl.VariantIDs = append(tmpl.VariantIDs, variant.ID)

	s.cancelPendingWrites()
	s.templates = append([]*models.Template{tmpl}, s.templates...)
	s.currentTemplateID = tmpl.ID
	s.variants = []*models.Variant{variant}
	s.currentVariantID = variant.ID
	s.isEditing = true
	s.reconcileVariables()

	return nil
}

// DeleteTemplate removes the template from the local list only; no remote
// delete is issued. If it was the current template, the selection is
// cleared.
func (s *Session) DeleteTemplate(templateID string) {
	filtered := s.templates[:0]
	for _, tmpl := range s.templates {
		if tmpl.ID != templateID {
			filtered = append(filtered, tmpl)
		}
	}
	s.templates = filtered

	if templateID == s.currentTemplateID {
		s.cancelPendingWrites()
		s.currentTemplateID = ""
		s.currentVariantID = ""
		s.variants = nil
		s.variables = map[string]string{}
	}
}

// SelectTemplate points the session at a template, loads its variants
// (default first) and selects the first one. Pending autosaves for the
// previous target are cancelled so a stale write cannot land.
func (s *Session) SelectTemplate(ctx context.Context, templateID string) error {
	s.cancelPendingWrites()

	if templateID == "" {
		s.currentTemplateID = ""
		s.currentVariantID = ""
		s.variants = nil
		s.variables = map[string]string{}
		return nil
	}

	s.currentTemplateID = templateID
	s.currentVariantID = ""
	s.variants = nil

	variants, err := s.store.ListVariants(ctx, templateID)
	if err != nil {
		s.variables = map[string]string{}
		return fmt.Errorf("failed to load variants: %w", err)
	}
	s.variants = variants
	if len(variants) > 0 {
		s.currentVariantID = variants[0].ID
	}
	s.reconcileVariables()
	return nil
}

// SelectVariant points the session at one of the loaded variants and
// rebuilds the working variable set against its content.
func (s *Session) SelectVariant(variantID string) {
	s.contentSaver.Cancel()
	s.currentVariantID = variantID
	s.reconcileVariables()
}

// AddVariant creates a new variant seeded from the default variant's
// content, fetched fresh from the store. The new variant is named from the
// pre-insert variant count and is never the default.
func (s *Session) AddVariant(ctx context.Context) error {
	if s.currentTemplateID == "" {
		return ErrNoTemplate
	}

	if s.usage != nil {
		res, err := s.usage.Check(ctx, s.userID, usage.ActionCreateVariant, s.currentTemplateID)
		if err != nil {
			s.notifier.Notify("error", "Could not verify your plan limits.")
			return fmt.Errorf("usage check failed: %w", err)
		}
		if limitErr := res.Err(); limitErr != nil {
			s.notifier.Notify("error", limitErr.Error())
			return limitErr
		}
	}

	defaultContent := ""
	defaultVariant, err := s.store.GetDefaultVariant(ctx, s.currentTemplateID)
	if err != nil {
		s.notifier.Notify("error", "Failed to add variant.")
		return fmt.Errorf("default variant lookup failed: %w", err)
	}
	if defaultVariant != nil {
		defaultContent = defaultVariant.Content
	}

	name := "Variant " + strconv.Itoa(len(s.variants))

	variant, err := s.store.CreateVariant(ctx, s.userID, s.currentTemplateID, defaultContent, name, false)
	if err != nil {
		s.notifier.Notify("error", "Failed to add variant.")
		return err
	}

	s.contentSaver.Cancel()
	s.variants = append(s.variants, variant)
	s.currentVariantID = variant.ID
	s.isEditing = true
	s.reconcileVariables()

	return nil
}

// UpdateVariantContent replaces the current variant's in-memory content.
// While editing, the write-through to the store is debounced; the local
// copy is updated immediately either way.
func (s *Session) UpdateVariantContent(content string) {
	if s.currentVariantID == "" {
		return
	}

	for _, variant := range s.variants {
		if variant.ID == s.currentVariantID {
			variant.Content = content
			break
		}
	}

	if !s.isEditing {
		return
	}

	variantID := s.currentVariantID
	s.contentSaver.Schedule(func() {
		if err := s.store.UpdateVariantContent(context.Background(), variantID, content); err != nil {
			s.logger.Error("failed to save variant content", "variant_id", variantID, "error", err)
			return
		}
		metrics.IncAutosaveWrites("content")
	})
}

// MakeVariantDefault flips the default flag atomically through the store,
// mirrors the flip locally and re-sorts so the default variant is first.
func (s *Session) MakeVariantDefault(ctx context.Context, variantID string) error {
	if s.currentTemplateID == "" {
		return ErrNoTemplate
	}

	if err := s.store.SetDefaultVariant(ctx, s.currentTemplateID, variantID); err != nil {
		s.notifier.Notify("error", "Failed to set default variant.")
		return err
	}

	for _, variant := range s.variants {
		variant.IsDefault = variant.ID == variantID
	}
	sort.SliceStable(s.variants, func(i, j int) bool {
		return s.variants[i].IsDefault && !s.variants[j].IsDefault
	})

	return nil
}

// UpdateVariable applies one edit to the working variable set and schedules
// a debounced write of the persisted subset (non-empty values only) to the
// template.
func (s *Session) UpdateVariable(name, value string) {
	s.variables[name] = value

	tmpl := s.CurrentTemplate()
	if tmpl == nil {
		return
	}

	textVars := placeholder.Extract(s.currentContent())
	inText := make(map[string]struct{}, len(textVars))
	for _, v := range textVars {
		inText[v] = struct{}{}
	}

	// Save candidate: the working map with this edit applied, keeping
	// entries that have a value or are still referenced in the text.
	candidate := make(map[string]string, len(s.variables))
	for key, val := range s.variables {
		if _, ok := inText[key]; val != "" || ok {
			candidate[key] = val
		}
	}

	persisted := PersistedVariables(candidate)
	s.persistVariables(tmpl, persisted)
}

// ClearAllVariables empties every text variable locally and persists an
// empty map, dropping all permanent values for the template.
func (s *Session) ClearAllVariables() {
	cleared := map[string]string{}
	for _, name := range placeholder.Extract(s.currentContent()) {
		cleared[name] = ""
	}
	s.variables = cleared

	tmpl := s.CurrentTemplate()
	if tmpl == nil {
		return
	}
	s.persistVariables(tmpl, map[string]string{})
}

func (s *Session) persistVariables(tmpl *models.Template, persisted map[string]string) {
	tmpl.Variables = persisted
	tmpl.UpdatedAt = time.Now()

	templateID := tmpl.ID
	s.variableSaver.Schedule(func() {
		if err := s.store.UpdateTemplateVariables(context.Background(), templateID, persisted); err != nil {
			s.logger.Error("failed to save template variables", "template_id", templateID, "error", err)
			return
		}
		metrics.IncAutosaveWrites("variables")
	})
}

// SetEditing toggles edit mode. Leaving edit mode flushes a pending
// content save so the last keystrokes are not lost.
func (s *Session) SetEditing(editing bool) {
	if s.isEditing && !editing {
		s.contentSaver.Flush()
	}
	s.isEditing = editing
}

// SetShowVariableEditor toggles the variable-editor UI flag.
func (s *Session) SetShowVariableEditor(show bool) {
	s.showVariableEditor = show
}

// Templates returns the local template list, most recent first.
func (s *Session) Templates() []*models.Template { return s.templates }

// Variants returns the loaded variants of the current template.
func (s *Session) Variants() []*models.Variant { return s.variants }

// CurrentTemplate returns the selected template, or nil.
func (s *Session) CurrentTemplate() *models.Template {
	for _, tmpl := range s.templates {
		if tmpl.ID == s.currentTemplateID {
			return tmpl
		}
	}
	return nil
}

// CurrentVariant returns the selected variant, or nil.
func (s *Session) CurrentVariant() *models.Variant {
	for _, variant := range s.variants {
		if variant.ID == s.currentVariantID {
			return variant
		}
	}
	return nil
}

// CurrentVariables returns the placeholder names present in the current
// variant's content, in first-appearance order.
func (s *Session) CurrentVariables() []string {
	return placeholder.Extract(s.currentContent())
}

// Variables returns a copy of the working variable set.
func (s *Session) Variables() map[string]string {
	out := make(map[string]string, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}
	return out
}

// HasVariables reports whether the working set is non-empty.
func (s *Session) HasVariables() bool { return len(s.variables) > 0 }

// IsEditing reports whether the session is in edit mode.
func (s *Session) IsEditing() bool { return s.isEditing }

// ShowVariableEditor reports the variable-editor UI flag.
func (s *Session) ShowVariableEditor() bool { return s.showVariableEditor }

func (s *Session) currentContent() string {
	if variant := s.CurrentVariant(); variant != nil {
		return variant.Content
	}
	return ""
}

func (s *Session) reconcileVariables() {
	variant := s.CurrentVariant()
	tmpl := s.CurrentTemplate()
	if variant == nil || tmpl == nil {
		s.variables = map[string]string{}
		return
	}
	s.variables = Reconcile(placeholder.Extract(variant.Content), tmpl.Variables)
}

func (s *Session) cancelPendingWrites() {
	s.contentSaver.Cancel()
	s.variableSaver.Cancel()
}
