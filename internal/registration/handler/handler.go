// Package handler exposes the registration pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatehouse/internal/platform/config"
	"gatehouse/internal/platform/middleware"
	"gatehouse/internal/registration"
	"gatehouse/internal/registration/metrics"
	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
)

// accountConfirmer finalizes email confirmation for a persisted account.
type accountConfirmer interface {
	ConfirmEmail(ctx context.Context, id domain.UserID) error
}

// tokenParser validates a confirmation token and returns the subject user ID.
type tokenParser func(token string, now time.Time) (string, error)

// Handler handles registration endpoints. Each request builds a fresh
// pipeline instance from the shared dependency set.
type Handler struct {
	logger  *slog.Logger
	deps    registration.Deps
	cfg     config.Registration
	metrics *metrics.Metrics

	customFields []models.CustomFieldDefinition

	confirmer  accountConfirmer
	parseToken tokenParser
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics sets the metrics collector passed to each pipeline.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithCustomFieldDefinitions installs the custom-field schema offered on the
// registration form.
func WithCustomFieldDefinitions(defs []models.CustomFieldDefinition) Option {
	return func(h *Handler) {
		h.customFields = defs
	}
}

// WithEmailConfirmation enables the confirm-email endpoint.
func WithEmailConfirmation(confirmer accountConfirmer, parse tokenParser) Option {
	return func(h *Handler) {
		h.confirmer = confirmer
		h.parseToken = parse
	}
}

// New creates a registration Handler.
func New(deps registration.Deps, cfg config.Registration, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger: logger,
		deps:   deps,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	sub := chi.NewRouter()
	sub.Use(middleware.Recovery(h.logger))
	sub.Use(middleware.RequestID)
	sub.Use(middleware.RequestTime)
	sub.Use(middleware.ClientMetadata)
	sub.Use(middleware.Logger(h.logger))
	sub.Use(middleware.ContentTypeJSON)
	sub.Post("/register", h.handleRegister)
	sub.Get("/confirm-email", h.handleConfirmEmail)

	r.Mount("/", sub)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid registration request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	svc, err := registration.New(ctx, h.deps, h.cfg,
		registration.WithLogger(h.logger),
		registration.WithMetrics(h.metrics),
		registration.WithCustomFieldDefinitions(h.customFields),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	svc.SetFromInput(ctx, req.Input())
	if req.AvatarURL != "" {
		svc.SetAvatarURL(req.AvatarURL)
	}
	if req.PreRegKey != "" {
		svc.SetPreRegActionKey(req.PreRegKey)
	}

	ok, err := svc.Validate(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeValidationErrors(w, svc.Draft().Errors())
		return
	}

	persisted, err := svc.Commit(ctx)
	if err != nil {
		if domainerrors.HasCode(err, domainerrors.CodeConflict) {
			writeError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "registration commit failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, domainerrors.New(domainerrors.CodeInternal, "registration failed"))
		return
	}

	writeJSON(w, http.StatusCreated, newRegisterResponse(persisted, svc.PreRegContent()))
}

func (h *Handler) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.confirmer == nil || h.parseToken == nil {
		writeError(w, domainerrors.New(domainerrors.CodeNotFound, "email confirmation is not enabled"))
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "missing confirmation token"))
		return
	}

	subject, err := h.parseToken(token, requestcontext.Now(ctx))
	if err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid or expired confirmation token"))
		return
	}
	userID, err := domain.ParseUserID(subject)
	if err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid or expired confirmation token"))
		return
	}

	if err := h.confirmer.ConfirmEmail(ctx, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
