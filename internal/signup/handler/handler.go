// Package handler exposes the signup service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"onboard/internal/email"
	"onboard/internal/password"
	"onboard/internal/phone"
	"onboard/internal/ratelimit"
	"onboard/internal/signup/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/httputil"
	"onboard/pkg/platform/middleware/admin"
	request "onboard/pkg/platform/middleware/request"
)

const (
	msgEmailUnavailable    = "Email validation service temporarily unavailable"
	msgPhoneUnavailable    = "Phone validation service temporarily unavailable"
	msgPasswordUnavailable = "Password validation service temporarily unavailable"
	msgRegistrationFailed  = "Registration failed. Please try again later."
)

// Service is the signup surface the handler needs.
type Service interface {
	SubmitSignup(ctx context.Context, req *models.SignupRequest) (*models.SubmitResult, error)
	ValidateEmail(ctx context.Context, address string) (email.Result, error)
	ValidatePhone(ctx context.Context, raw, countryID string) phone.Result
	ValidatePassword(ctx context.Context, pw string) password.Result
	Rules(ctx context.Context) models.Rules
	GetAccount(ctx context.Context, accountID id.PrimaryAccountID) (*models.AccountView, error)
	UpdatePrimaryAccount(ctx context.Context, accountID id.PrimaryAccountID, req *models.UpdatePrimaryAccountRequest) (*models.PrimaryAccount, error)
	EnsureAuthAccount(ctx context.Context, accountID id.PrimaryAccountID) (*models.AuthAccount, error)
}

// RateLimiter throttles a class of endpoints.
type RateLimiter interface {
	Middleware(class ratelimit.EndpointClass) func(http.Handler) http.Handler
}

type Handler struct {
	svc     Service
	logger  *slog.Logger
	limiter RateLimiter
}

type Option func(*Handler)

func WithRateLimiter(l RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the public signup routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/signup/rules", h.handleRules)
	r.Group(func(r chi.Router) {
		h.throttle(r, ratelimit.ClassValidate)
		r.Post("/signup/validate/email", h.handleValidateEmail)
		r.Post("/signup/validate/phone", h.handleValidatePhone)
		r.Post("/signup/validate/password", h.handleValidatePassword)
	})
	r.Group(func(r chi.Router) {
		h.throttle(r, ratelimit.ClassSubmit)
		r.Post("/signup", h.handleSubmit)
	})
}

func (h *Handler) throttle(r chi.Router, class ratelimit.EndpointClass) {
	if h.limiter != nil {
		r.Use(h.limiter.Middleware(class))
	}
}

// RegisterAdmin mounts the account maintenance routes behind the admin token.
func (h *Handler) RegisterAdmin(r chi.Router, adminToken string) {
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, h.logger))
		r.Get("/admin/accounts/{id}", h.handleGetAccount)
		r.Patch("/admin/accounts/{id}", h.handleUpdateAccount)
		r.Post("/admin/accounts/{id}/auth-account", h.handleEnsureAuthAccount)
	})
}

type fieldValidationResponse struct {
	Valid    bool     `json:"valid"`
	Messages []string `json:"messages"`
}

type phoneValidationResponse struct {
	Valid     bool     `json:"valid"`
	Messages  []string `json:"messages"`
	Formatted string   `json:"formatted"`
	PhoneType string   `json:"phone_type"`
}

type passwordValidationResponse struct {
	Valid    bool     `json:"valid"`
	Score    int      `json:"score"`
	Messages []string `json:"messages"`
}

type submitResponse struct {
	Success        bool     `json:"success"`
	Errors         []string `json:"errors,omitempty"`
	RedirectTarget string   `json:"redirect_target,omitempty"`
}

func nonNil(msgs []string) []string {
	if msgs == nil {
		return []string{}
	}
	return msgs
}

func (h *Handler) handleRules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.svc.Rules(r.Context()))
}

func (h *Handler) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[validateEmailRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.svc.ValidateEmail(ctx, req.Email)
	if err != nil {
		h.logger.ErrorContext(ctx, "email validation failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteJSON(w, http.StatusOK, fieldValidationResponse{Messages: []string{msgEmailUnavailable}})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fieldValidationResponse{Valid: res.Valid, Messages: nonNil(res.Messages)})
}

func (h *Handler) handleValidatePhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[validatePhoneRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, ok := h.safePhone(ctx, req.Phone, req.CountryID)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, phoneValidationResponse{Messages: []string{msgPhoneUnavailable}})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, phoneValidationResponse{
		Valid:     res.Valid,
		Messages:  nonNil(res.Messages),
		Formatted: res.Formatted,
		PhoneType: string(res.Type),
	})
}

// safePhone shields the endpoint from a panicking validator.
func (h *Handler) safePhone(ctx context.Context, raw, countryID string) (res phone.Result, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(ctx, "phone validation panicked",
				"request_id", request.GetRequestID(ctx),
				"panic", rec,
			)
			ok = false
		}
	}()
	return h.svc.ValidatePhone(ctx, raw, countryID), true
}

func (h *Handler) handleValidatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[validatePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, ok := h.safePassword(ctx, req.Password)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, passwordValidationResponse{Messages: []string{msgPasswordUnavailable}})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, passwordValidationResponse{
		Valid:    res.Valid,
		Score:    res.Score,
		Messages: nonNil(res.Messages),
	})
}

func (h *Handler) safePassword(ctx context.Context, pw string) (res password.Result, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(ctx, "password validation panicked",
				"request_id", request.GetRequestID(ctx),
				"panic", rec,
			)
			ok = false
		}
	}()
	return h.svc.ValidatePassword(ctx, pw), true
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[signupRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.svc.SubmitSignup(ctx, req.toModel())
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeDuplicateAccount:
			h.logger.InfoContext(ctx, "duplicate signup",
				"request_id", requestID,
			)
			msg := err.Error()
			if de, found := dErrors.From(err); found {
				msg = de.Message
			}
			httputil.WriteJSON(w, http.StatusConflict, submitResponse{Errors: []string{msg}})
		default:
			h.logger.ErrorContext(ctx, "signup failed",
				"request_id", requestID,
				"error", err,
			)
			httputil.WriteJSON(w, http.StatusInternalServerError, submitResponse{Errors: []string{msgRegistrationFailed}})
		}
		return
	}
	if !res.Success {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, submitResponse{Errors: res.Errors})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, submitResponse{Success: true, RedirectTarget: res.RedirectTarget})
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (id.PrimaryAccountID, bool) {
	accountID, err := id.ParsePrimaryAccountID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid account id"))
		return id.PrimaryAccountID{}, false
	}
	return accountID, true
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeAdminError(r.Context(), w, "failed to load account", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateAccountRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	account, err := h.svc.UpdatePrimaryAccount(ctx, accountID, req.toModel())
	if err != nil {
		h.writeAdminError(ctx, w, "failed to update account", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) handleEnsureAuthAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	auth, err := h.svc.EnsureAuthAccount(r.Context(), accountID)
	if err != nil {
		h.writeAdminError(r.Context(), w, "failed to ensure auth account", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auth)
}

func (h *Handler) writeAdminError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
