package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventgate/internal/guest/models"
	"eventgate/internal/platform/middleware"
	"eventgate/pkg/platform/httputil"
)

// Service defines the interface for guest lookups.
type Service interface {
	FindByToken(ctx context.Context, token string) (*models.Profile, error)
	Register(ctx context.Context, p *models.Profile) (*models.Profile, error)
}

type Handler struct {
	guests Service
	logger *slog.Logger
}

func New(guests Service, logger *slog.Logger) *Handler {
	return &Handler{guests: guests, logger: logger}
}

// Register mounts the scanner-facing lookup route.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/user/token/{token}", h.HandleGetByToken)
}

// RegisterAdmin mounts guest registration; callers wrap it with RequireRole.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/api/guests", h.HandleRegister)
}

type userResponse struct {
	Success bool            `json:"success"`
	User    *models.Profile `json:"user"`
}

func (h *Handler) HandleGetByToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	token := chi.URLParam(r, "token")

	profile, err := h.guests.FindByToken(ctx, token)
	if err != nil {
		h.logger.WarnContext(ctx, "guest lookup failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: profile})
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.Profile](w, r, h.logger, requestID)
	if !ok {
		return
	}

	profile, err := h.guests.Register(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to register guest",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, userResponse{Success: true, User: profile})
}
