package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rcdvgn/copypitch/internal/editor"
	"github.com/rcdvgn/copypitch/internal/metrics"
	"github.com/rcdvgn/copypitch/internal/models"
	"github.com/rcdvgn/copypitch/internal/placeholder"
	"github.com/rcdvgn/copypitch/internal/usage"
)

// CreateTemplateRequest is the request body for POST /api/v1/templates
type CreateTemplateRequest struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Content  string `json:"content,omitempty"`
}

// CreateVariantRequest is the request body for POST .../variants
type CreateVariantRequest struct {
	Name string `json:"name,omitempty"`
}

// UpdateVariablesRequest is the request body for PUT .../variables
type UpdateVariablesRequest struct {
	Variables map[string]string `json:"variables"`
}

// UpdateContentRequest is the request body for PUT /api/v1/variants/{id}/content
type UpdateContentRequest struct {
	Content string `json:"content"`
}

// RenderRequest is the request body for POST .../render
type RenderRequest struct {
	VariantID string            `json:"variant_id,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// TemplateResponse bundles a template with its variants.
type TemplateResponse struct {
	Template *models.Template  `json:"template"`
	Variants []*models.Variant `json:"variants"`
}

// VariablesResponse carries the working variable map for an editing view.
type VariablesResponse struct {
	Variables map[string]string `json:"variables"`
}

// RenderResponse is the response for POST .../render
type RenderResponse struct {
	Output    string   `json:"output"`
	Variables []string `json:"variables"`
}

// requireTemplate loads the template and enforces ownership. A template
// owned by someone else reads as absent.
func (s *Server) requireTemplate(w http.ResponseWriter, r *http.Request) *models.Template {
	tmpl, err := s.store.GetTemplate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		s.notFoundOrError(w, err, "Template")
		return nil
	}
	if tmpl.UserID != userID(r) {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return nil
	}
	return tmpl
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TemplateListFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	templates, err := s.store.ListTemplates(r.Context(), userID(r), filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// handleCreateTemplate handles POST /api/v1/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	uid := userID(r)
	result, err := s.usage.Check(r.Context(), uid, usage.ActionCreateTemplate, "")
	if err != nil {
		s.logger.Error("usage check failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to check plan limits")
		return
	}
	if !result.CanPerform {
		s.sendLimitRejection(w, result)
		return
	}

	tmpl, err := s.store.CreateTemplate(r.Context(), uid, req.Name, req.Category, nil)
	if err != nil {
		s.logger.Error("failed to create template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	// Every template starts with a default variant.
	variant, err := s.store.CreateVariant(r.Context(), uid, tmpl.ID, req.Content, "Default", true)
	if err != nil {
		s.logger.Error("failed to create default variant", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}
	tmpl.VariantIDs = append(tmpl.VariantIDs, variant.ID)

	metrics.IncTemplatesCreated()
	metrics.IncVariantsCreated()
	s.logger.Info("template created", "template_id", tmpl.ID, "user_id", uid)

	s.sendJSON(w, http.StatusCreated, TemplateResponse{
		Template: tmpl,
		Variants: []*models.Variant{variant},
	})
}

// handleGetTemplate handles GET /api/v1/templates/{templateID}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	variants, err := s.store.ListVariants(r.Context(), tmpl.ID)
	if err != nil {
		s.logger.Error("failed to list variants", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load template")
		return
	}

	s.sendJSON(w, http.StatusOK, TemplateResponse{Template: tmpl, Variants: variants})
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{templateID}.
// This permanently removes the template and its variants.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	if err := s.store.DeleteTemplate(r.Context(), tmpl.ID); err != nil {
		s.logger.Error("failed to delete template", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	s.logger.Info("template deleted", "template_id", tmpl.ID, "user_id", userID(r))
	w.WriteHeader(http.StatusNoContent)
}

// handleGetVariables handles GET /api/v1/templates/{templateID}/variables.
// The response is the working variable map for the chosen variant: every
// placeholder in the variant's content, filled from the template's saved
// values where available. ?variant= selects a variant; the default variant
// is used otherwise.
func (s *Server) handleGetVariables(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	content, ok := s.variantContent(w, r, tmpl, r.URL.Query().Get("variant"))
	if !ok {
		return
	}

	names := placeholder.Extract(content)
	s.sendJSON(w, http.StatusOK, VariablesResponse{
		Variables: editor.Reconcile(names, tmpl.Variables),
	})
}

// handlePutVariables handles PUT /api/v1/templates/{templateID}/variables.
// Only entries with a non-empty value are persisted.
func (s *Server) handlePutVariables(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	var req UpdateVariablesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	persisted := editor.PersistedVariables(req.Variables)
	if err := s.store.UpdateTemplateVariables(r.Context(), tmpl.ID, persisted); err != nil {
		s.logger.Error("failed to update variables", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update variables")
		return
	}

	s.sendJSON(w, http.StatusOK, VariablesResponse{Variables: persisted})
}

// handleListVariants handles GET /api/v1/templates/{templateID}/variants
func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	variants, err := s.store.ListVariants(r.Context(), tmpl.ID)
	if err != nil {
		s.logger.Error("failed to list variants", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list variants")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{"variants": variants})
}

// handleCreateVariant handles POST /api/v1/templates/{templateID}/variants.
// The new variant starts from the default variant's current content.
func (s *Server) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	var req CreateVariantRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	uid := userID(r)
	result, err := s.usage.Check(r.Context(), uid, usage.ActionCreateVariant, tmpl.ID)
	if err != nil {
		s.logger.Error("usage check failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to check plan limits")
		return
	}
	if !result.CanPerform {
		s.sendLimitRejection(w, result)
		return
	}

	content := ""
	defaultVariant, err := s.store.GetDefaultVariant(r.Context(), tmpl.ID)
	if err != nil {
		s.logger.Error("failed to load default variant", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create variant")
		return
	}
	if defaultVariant != nil {
		content = defaultVariant.Content
	}

	name := req.Name
	if name == "" {
		count, err := s.store.CountTemplateVariants(r.Context(), tmpl.ID)
		if err != nil {
			s.logger.Error("failed to count variants", "template_id", tmpl.ID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to create variant")
			return
		}
		name = "Variant " + strconv.Itoa(count)
	}

	variant, err := s.store.CreateVariant(r.Context(), uid, tmpl.ID, content, name, false)
	if err != nil {
		s.logger.Error("failed to create variant", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create variant")
		return
	}

	metrics.IncVariantsCreated()
	s.sendJSON(w, http.StatusCreated, variant)
}

// handleSetDefaultVariant handles POST .../variants/{variantID}/default
func (s *Server) handleSetDefaultVariant(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	variantID := chi.URLParam(r, "variantID")
	if err := s.store.SetDefaultVariant(r.Context(), tmpl.ID, variantID); err != nil {
		s.notFoundOrError(w, err, "Variant")
		return
	}

	variants, err := s.store.ListVariants(r.Context(), tmpl.ID)
	if err != nil {
		s.logger.Error("failed to list variants", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list variants")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{"variants": variants})
}

// handleUpdateVariantContent handles PUT /api/v1/variants/{variantID}/content
func (s *Server) handleUpdateVariantContent(w http.ResponseWriter, r *http.Request) {
	variant, err := s.store.GetVariant(r.Context(), chi.URLParam(r, "variantID"))
	if err != nil {
		s.notFoundOrError(w, err, "Variant")
		return
	}
	if variant.UserID != userID(r) {
		s.sendError(w, http.StatusNotFound, "Variant not found")
		return
	}

	var req UpdateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.UpdateVariantContent(r.Context(), variant.ID, req.Content); err != nil {
		s.logger.Error("failed to update content", "variant_id", variant.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update content")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRender handles POST /api/v1/templates/{templateID}/render. Saved
// variable values apply first, request values override them; placeholders
// with no value are left in the output untouched.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	tmpl := s.requireTemplate(w, r)
	if tmpl == nil {
		return
	}

	var req RenderRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	content, ok := s.variantContent(w, r, tmpl, req.VariantID)
	if !ok {
		return
	}

	values := make(map[string]string, len(tmpl.Variables)+len(req.Variables))
	for name, value := range tmpl.Variables {
		values[name] = value
	}
	for name, value := range req.Variables {
		values[name] = value
	}

	metrics.IncRenders()
	s.sendJSON(w, http.StatusOK, RenderResponse{
		Output:    placeholder.Substitute(content, values),
		Variables: placeholder.Extract(content),
	})
}

// variantContent resolves the content to operate on: the named variant when
// given, the default variant otherwise. Reports false after writing an
// error response.
func (s *Server) variantContent(w http.ResponseWriter, r *http.Request, tmpl *models.Template, variantID string) (string, bool) {
	if variantID != "" {
		variant, err := s.store.GetVariant(r.Context(), variantID)
		if err != nil {
			s.notFoundOrError(w, err, "Variant")
			return "", false
		}
		if variant.TemplateID != tmpl.ID {
			s.sendError(w, http.StatusNotFound, "Variant not found")
			return "", false
		}
		return variant.Content, true
	}

	variant, err := s.store.GetDefaultVariant(r.Context(), tmpl.ID)
	if err != nil {
		s.logger.Error("failed to load default variant", "template_id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load variant")
		return "", false
	}
	if variant == nil {
		return "", true
	}
	return variant.Content, true
}
