package editor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rcdvgn/copypitch/internal/models"
	"github.com/rcdvgn/copypitch/internal/usage"
)

// fakeStore is an in-memory editor.Store that records writes.
type fakeStore struct {
	mu        sync.Mutex
	templates map[string]*models.Template
	variants  map[string]*models.Variant
	order     []string // variant ids in creation order

	contentWrites []string // "variantID=content"
	varWrites     []map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: map[string]*models.Template{},
		variants:  map[string]*models.Variant{},
	}
}

func (f *fakeStore) CreateTemplate(ctx context.Context, userID, name, category string, initialVars map[string]string) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmpl := &models.Template{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       name,
		Category:   category,
		Variables:  initialVars,
		VariantIDs: []string{},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	stored := *tmpl
	f.templates[tmpl.ID] = &stored
	return tmpl, nil
}

func (f *fakeStore) CreateVariant(ctx context.Context, userID, templateID, content, name string, isDefault bool) (*models.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmpl, ok := f.templates[templateID]
	if !ok {
		return nil, errors.New("template not found")
	}
	variant := &models.Variant{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		UserID:     userID,
		Name:       name,
		Content:    content,
		IsDefault:  isDefault,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	stored := *variant
	f.variants[variant.ID] = &stored
	f.order = append(f.order, variant.ID)
	tmpl.VariantIDs = append(tmpl.VariantIDs, variant.ID)
	return variant, nil
}

func (f *fakeStore) ListTemplates(ctx context.Context, userID string, filter models.TemplateListFilter) ([]*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Template
	for _, tmpl := range f.templates {
		if tmpl.UserID == userID {
			copied := *tmpl
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) ListVariants(ctx context.Context, templateID string) ([]*models.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var defaults, rest []*models.Variant
	for _, id := range f.order {
		variant := f.variants[id]
		if variant.TemplateID != templateID {
			continue
		}
		copied := *variant
		if copied.IsDefault {
			defaults = append(defaults, &copied)
		} else {
			rest = append(rest, &copied)
		}
	}
	return append(defaults, rest...), nil
}

func (f *fakeStore) GetDefaultVariant(ctx context.Context, templateID string) (*models.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		variant := f.variants[id]
		if variant.TemplateID == templateID && variant.IsDefault {
			copied := *variant
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetDefaultVariant(ctx context.Context, templateID, variantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.variants[variantID]; !ok {
		return errors.New("variant not found")
	}
	for _, variant := range f.variants {
		if variant.TemplateID == templateID {
			variant.IsDefault = variant.ID == variantID
		}
	}
	return nil
}

func (f *fakeStore) UpdateVariantContent(ctx context.Context, id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	variant, ok := f.variants[id]
	if !ok {
		return errors.New("variant not found")
	}
	variant.Content = content
	f.contentWrites = append(f.contentWrites, id+"="+content)
	return nil
}

func (f *fakeStore) UpdateTemplateVariables(ctx context.Context, id string, variables map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmpl, ok := f.templates[id]
	if !ok {
		return errors.New("template not found")
	}
	tmpl.Variables = variables
	f.varWrites = append(f.varWrites, variables)
	return nil
}

func (f *fakeStore) contentWriteLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contentWrites...)
}

func (f *fakeStore) varWriteLog() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.varWrites...)
}

// fakeUsage returns a canned result.
type fakeUsage struct {
	result *usage.Result
}

func (f *fakeUsage) Check(ctx context.Context, userID string, action usage.Action, templateID string) (*usage.Result, error) {
	if f.result == nil {
		return &usage.Result{CanPerform: true}, nil
	}
	return f.result, nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(kind, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, kind+": "+message)
}

func newTestSession(t *testing.T, store Store, checker UsageChecker, notifier Notifier) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), Config{
		UserID:         "user-1",
		Store:          store,
		Usage:          checker,
		Notifier:       notifier,
		DebounceWindow: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreateNewTemplate(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	if err := s.CreateNewTemplate(context.Background(), "Outreach", "Sales"); err != nil {
		t.Fatalf("CreateNewTemplate() error = %v", err)
	}

	tmpl := s.CurrentTemplate()
	if tmpl == nil || tmpl.Name != "Outreach" {
		t.Fatalf("CurrentTemplate() = %+v, want Outreach", tmpl)
	}
	if len(s.Templates()) != 1 {
		t.Errorf("Templates() len = %d, want 1", len(s.Templates()))
	}

	variant := s.CurrentVariant()
	if variant == nil {
		t.Fatal("CurrentVariant() = nil, want default variant")
	}
	if variant.Name != "Default" || !variant.IsDefault || variant.Content != "" {
		t.Errorf("default variant = %+v", variant)
	}
	if !s.IsEditing() {
		t.Error("IsEditing() = false after create, want true")
	}
}

func TestCreateNewTemplate_EmptyName(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	err := s.CreateNewTemplate(context.Background(), "", "Sales")
	if !errors.Is(err, ErrEmptyName) {
		t.Errorf("CreateNewTemplate() error = %v, want ErrEmptyName", err)
	}
	if len(store.templates) != 0 {
		t.Error("store should not have been called")
	}
}

func TestCreateNewTemplate_UsageLimit(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	checker := &fakeUsage{result: &usage.Result{
		CanPerform: false,
		Code:       usage.CodeTemplateLimitReached,
		Current:    3,
		Limit:      3,
	}}
	s := newTestSession(t, store, checker, notifier)

	err := s.CreateNewTemplate(context.Background(), "Outreach", "Sales")

	var limitErr *usage.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("CreateNewTemplate() error = %v, want *usage.LimitError", err)
	}
	if !strings.Contains(err.Error(), "3/3") {
		t.Errorf("error message %q should reference 3/3", err.Error())
	}
	if len(s.Templates()) != 0 {
		t.Error("local templates mutated on usage rejection")
	}
	if len(store.templates) != 0 {
		t.Error("template created despite usage rejection")
	}
	if len(notifier.messages) == 0 {
		t.Error("usage rejection was not reported to the notifier")
	}
}

// seedTemplate creates a template with a default variant directly in the
// store and points the session at it.
func seedTemplate(t *testing.T, s *Session, store *fakeStore, content string, savedVars map[string]string) (*models.Template, *models.Variant) {
	t.Helper()
	ctx := context.Background()

	if err := s.CreateNewTemplate(ctx, "Seeded", "General"); err != nil {
		t.Fatalf("CreateNewTemplate() error = %v", err)
	}
	tmpl := s.CurrentTemplate()
	variant := s.CurrentVariant()

	store.mu.Lock()
	store.variants[variant.ID].Content = content
	if savedVars != nil {
		store.templates[tmpl.ID].Variables = savedVars
	}
	store.mu.Unlock()

	tmpl.Variables = savedVars
	if tmpl.Variables == nil {
		tmpl.Variables = map[string]string{}
	}

	if err := s.SelectTemplate(ctx, tmpl.ID); err != nil {
		t.Fatalf("SelectTemplate() error = %v", err)
	}
	return s.CurrentTemplate(), s.CurrentVariant()
}

func TestSelectTemplate_ReconcilesVariables(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "Hi {{a}} and {{b}}", map[string]string{"a": "1", "c": "2"})

	want := map[string]string{"a": "1", "b": "", "c": "2"}
	if got := s.Variables(); !reflect.DeepEqual(got, want) {
		t.Errorf("Variables() = %v, want %v", got, want)
	}
	if got := s.CurrentVariables(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("CurrentVariables() = %v, want [a b]", got)
	}
	if !s.HasVariables() {
		t.Error("HasVariables() = false")
	}
}

func TestAddVariant(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	tmpl, defaultVariant := seedTemplate(t, s, store, "default text {{x}}", nil)

	// Content is fetched fresh from the store, not from the local cache.
	store.mu.Lock()
	store.variants[defaultVariant.ID].Content = "fresher text"
	store.mu.Unlock()

	if err := s.AddVariant(context.Background()); err != nil {
		t.Fatalf("AddVariant() error = %v", err)
	}

	variant := s.CurrentVariant()
	if variant == nil {
		t.Fatal("CurrentVariant() = nil after AddVariant")
	}
	if variant.Name != "Variant 1" {
		t.Errorf("variant name = %q, want %q (pre-insert count)", variant.Name, "Variant 1")
	}
	if variant.Content != "fresher text" {
		t.Errorf("variant content = %q, want default variant's fresh content", variant.Content)
	}
	if variant.IsDefault {
		t.Error("new variant must not be default")
	}
	if len(s.Variants()) != 2 {
		t.Errorf("Variants() len = %d, want 2", len(s.Variants()))
	}
	if !s.IsEditing() {
		t.Error("IsEditing() = false after AddVariant, want true")
	}
	_ = tmpl
}

func TestAddVariant_NoTemplate(t *testing.T) {
	s := newTestSession(t, newFakeStore(), &fakeUsage{}, nil)

	if err := s.AddVariant(context.Background()); !errors.Is(err, ErrNoTemplate) {
		t.Errorf("AddVariant() error = %v, want ErrNoTemplate", err)
	}
}

func TestAddVariant_UsageLimit(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)
	seedTemplate(t, s, store, "", nil)

	s.usage = &fakeUsage{result: &usage.Result{
		CanPerform: false,
		Code:       usage.CodeVariantPerTemplateLimitReached,
		Current:    5,
		Limit:      5,
	}}

	err := s.AddVariant(context.Background())
	var limitErr *usage.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("AddVariant() error = %v, want *usage.LimitError", err)
	}
	if len(s.Variants()) != 1 {
		t.Error("local variants mutated on usage rejection")
	}
}

func TestMakeVariantDefault(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "", nil)
	if err := s.AddVariant(context.Background()); err != nil {
		t.Fatalf("AddVariant() error = %v", err)
	}
	if err := s.AddVariant(context.Background()); err != nil {
		t.Fatalf("AddVariant() error = %v", err)
	}

	variants := s.Variants()
	v1, v2, v3 := variants[0], variants[1], variants[2]

	if err := s.MakeVariantDefault(context.Background(), v2.ID); err != nil {
		t.Fatalf("MakeVariantDefault() error = %v", err)
	}

	got := s.Variants()
	if got[0].ID != v2.ID {
		t.Errorf("first variant = %s, want new default", got[0].Name)
	}
	if got[1].ID != v1.ID || got[2].ID != v3.ID {
		t.Error("remaining variants lost relative order")
	}
	defaults := 0
	for _, v := range got {
		if v.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Errorf("found %d defaults, want exactly 1", defaults)
	}
}

func TestUpdateVariantContent_DebouncedWrite(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	_, variant := seedTemplate(t, s, store, "", nil)
	s.SetEditing(true)

	s.UpdateVariantContent("a")
	s.UpdateVariantContent("ab")
	s.UpdateVariantContent("abc")

	if got := s.CurrentVariant().Content; got != "abc" {
		t.Errorf("local content = %q, want immediate update", got)
	}

	time.Sleep(150 * time.Millisecond)

	writes := store.contentWriteLog()
	if len(writes) != 1 {
		t.Fatalf("store saw %d content writes, want 1 (%v)", len(writes), writes)
	}
	if writes[0] != variant.ID+"=abc" {
		t.Errorf("store write = %q, want last value", writes[0])
	}
}

func TestUpdateVariantContent_NotEditingDoesNotPersist(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "", nil)
	s.SetEditing(false)

	s.UpdateVariantContent("draft")
	time.Sleep(100 * time.Millisecond)

	if writes := store.contentWriteLog(); len(writes) != 0 {
		t.Errorf("store saw %d writes while not editing, want 0", len(writes))
	}
}

func TestClose_CancelsPendingWrites(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "", nil)
	s.SetEditing(true)

	s.UpdateVariantContent("doomed")
	s.Close()

	time.Sleep(100 * time.Millisecond)

	if writes := store.contentWriteLog(); len(writes) != 0 {
		t.Errorf("store saw %d writes after Close, want 0", len(writes))
	}
}

func TestUpdateVariable_PersistsNonEmptyOnly(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "Hi {{a}} {{b}}", map[string]string{"a": "1"})

	s.UpdateVariable("b", "")

	want := map[string]string{"a": "1", "b": ""}
	if got := s.Variables(); !reflect.DeepEqual(got, want) {
		t.Errorf("working map = %v, want %v", got, want)
	}

	time.Sleep(100 * time.Millisecond)

	writes := store.varWriteLog()
	if len(writes) != 1 {
		t.Fatalf("store saw %d variable writes, want 1", len(writes))
	}
	if !reflect.DeepEqual(writes[0], map[string]string{"a": "1"}) {
		t.Errorf("persisted map = %v, want empty-valued b dropped", writes[0])
	}

	if got := s.CurrentTemplate().Variables; !reflect.DeepEqual(got, map[string]string{"a": "1"}) {
		t.Errorf("local template variables = %v, want %v", got, map[string]string{"a": "1"})
	}
}

func TestUpdateVariable_CoalescesWrites(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "Hi {{a}}", nil)

	s.UpdateVariable("a", "A")
	s.UpdateVariable("a", "An")
	s.UpdateVariable("a", "Ann")

	time.Sleep(150 * time.Millisecond)

	writes := store.varWriteLog()
	if len(writes) != 1 {
		t.Fatalf("store saw %d variable writes, want 1", len(writes))
	}
	if writes[0]["a"] != "Ann" {
		t.Errorf("persisted a = %q, want last value", writes[0]["a"])
	}
}

func TestClearAllVariables(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "Hi {{a}} {{b}}", map[string]string{"a": "1", "c": "2"})

	s.ClearAllVariables()

	want := map[string]string{"a": "", "b": ""}
	if got := s.Variables(); !reflect.DeepEqual(got, want) {
		t.Errorf("working map = %v, want %v", got, want)
	}

	time.Sleep(100 * time.Millisecond)

	writes := store.varWriteLog()
	if len(writes) != 1 {
		t.Fatalf("store saw %d variable writes, want 1", len(writes))
	}
	if len(writes[0]) != 0 {
		t.Errorf("persisted map = %v, want empty", writes[0])
	}
}

func TestDeleteTemplate_LocalOnly(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	tmpl, _ := seedTemplate(t, s, store, "", nil)

	s.DeleteTemplate(tmpl.ID)

	if len(s.Templates()) != 0 {
		t.Error("template still in local list")
	}
	if s.CurrentTemplate() != nil {
		t.Error("current template not cleared")
	}
	if s.HasVariables() {
		t.Error("variables not cleared")
	}

	// The remote document is untouched: deletion is a local hide.
	store.mu.Lock()
	_, exists := store.templates[tmpl.ID]
	store.mu.Unlock()
	if !exists {
		t.Error("remote template was deleted; session deletion must stay local")
	}
}

func TestSelectVariant_CancelsPendingContentWrite(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, &fakeUsage{}, nil)

	seedTemplate(t, s, store, "", nil)
	if err := s.AddVariant(context.Background()); err != nil {
		t.Fatalf("AddVariant() error = %v", err)
	}
	second := s.CurrentVariant()
	first := s.Variants()[0]

	s.SetEditing(true)
	s.UpdateVariantContent("typed on second")
	s.SelectVariant(first.ID)

	time.Sleep(100 * time.Millisecond)

	if writes := store.contentWriteLog(); len(writes) != 0 {
		t.Errorf("pending write for %s landed after switching away: %v", second.Name, writes)
	}
}
