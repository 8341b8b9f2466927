package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rcdvgn/copypitch/internal/auth"
	"github.com/rcdvgn/copypitch/internal/billing"
	"github.com/rcdvgn/copypitch/internal/metrics"
	"github.com/rcdvgn/copypitch/internal/models"
	"github.com/rcdvgn/copypitch/internal/store"
	"github.com/rcdvgn/copypitch/internal/usage"
)

const maxBodyBytes = 1 << 20 // 1 MB

// RegisterRequest is the request body for POST /auth/register
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token and the account it belongs to.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// HealthResponse is the response for GET /healthz
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response. Code, Current and Limit are only set
// for usage-limit rejections.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Current int    `json:"current,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).String(),
	})
}

// handleRegister handles POST /auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}
	if req.Password == "" {
		s.sendError(w, http.StatusBadRequest, "password is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, hash, req.Name)
	if err != nil {
		s.sendError(w, http.StatusConflict, "Account already exists")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	s.logger.Info("account created", "user_id", user.ID)
	s.sendJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// handleLogin handles POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.sendError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	s.sendJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// handleMe handles GET /api/v1/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), userID(r))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}
	s.sendJSON(w, http.StatusOK, user)
}

// handleBillingWebhook handles POST /webhooks/billing
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	header := r.Header.Get("X-Webhook-Signature")
	if err := billing.VerifySignature(body, header, s.config.Billing.WebhookSecret, time.Now()); err != nil {
		s.logger.Warn("webhook signature rejected", "error", err, "remote_addr", r.RemoteAddr)
		s.sendError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	event, err := billing.ParseEvent(body)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	metrics.IncWebhookEvents(event.Type)

	if err := s.billing.HandleEvent(r.Context(), event); err != nil {
		s.logger.Error("failed to handle billing event", "type", event.Type, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendLimitRejection sends a structured 403 for a failed usage check.
func (s *Server) sendLimitRejection(w http.ResponseWriter, result *usage.Result) {
	metrics.IncUsageLimitRejections(result.Code)
	s.sendJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   result.Err().Error(),
		Code:    result.Code,
		Current: result.Current,
		Limit:   result.Limit,
	})
}

// notFoundOrError maps store lookup failures onto HTTP statuses.
func (s *Server) notFoundOrError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("storage error", "error", err)
	s.sendError(w, http.StatusInternalServerError, "Storage error")
}
