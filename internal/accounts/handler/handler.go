package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventgate/internal/accounts/models"
	"eventgate/internal/platform/middleware"
	"eventgate/pkg/platform/httputil"
)

// Service defines the interface for staff account flows.
type Service interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.Account, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error)
	SetPassword(ctx context.Context, req *models.SetPasswordRequest) error
	ForgotPassword(ctx context.Context, req *models.ForgotPasswordRequest) error
	Approve(ctx context.Context, email string) (*models.Account, error)
}

type Handler struct {
	accounts Service
	logger   *slog.Logger
}

func New(accounts Service, logger *slog.Logger) *Handler {
	return &Handler{accounts: accounts, logger: logger}
}

// RegisterPublic mounts the unauthenticated account routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/api/register", h.HandleRegister)
	r.Post("/api/login", h.HandleLogin)
	r.Post("/api/forgot-password", h.HandleForgotPassword)
}

// RegisterStaff mounts routes that need a staff token.
func (h *Handler) RegisterStaff(r chi.Router) {
	r.Post("/api/set-password", h.HandleSetPassword)
}

// RegisterAdmin mounts approval; callers wrap it with RequireRole.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/api/admin/approve/{email}", h.HandleApprove)
}

type accountResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	User    *models.Profile `json:"user,omitempty"`
}

type loginResponse struct {
	Success         bool            `json:"success"`
	FirstLogin      bool            `json:"firstLogin,omitempty"`
	Reset           bool            `json:"reset,omitempty"`
	PendingApproval bool            `json:"pendingApproval,omitempty"`
	Token           string          `json:"token,omitempty"`
	User            *models.Profile `json:"user,omitempty"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	account, err := h.accounts.Register(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "registration failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	profile := account.Profile()
	httputil.WriteJSON(w, http.StatusCreated, accountResponse{
		Success: true,
		Message: "registered, check your email for a temporary password",
		User:    &profile,
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	result, err := h.accounts.Login(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := loginResponse{
		Success:         true,
		FirstLogin:      result.FirstLogin,
		Reset:           result.Reset,
		PendingApproval: result.PendingApproval,
		Token:           result.Token,
	}
	if result.Token != "" {
		profile := result.Account.Profile()
		resp.User = &profile
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SetPasswordRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	if err := h.accounts.SetPassword(ctx, req); err != nil {
		h.logger.WarnContext(ctx, "set password failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, accountResponse{Success: true, Message: "password updated"})
}

func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ForgotPasswordRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	if err := h.accounts.ForgotPassword(ctx, req); err != nil {
		h.logger.WarnContext(ctx, "forgot password failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, accountResponse{Success: true, Message: "a temporary password has been sent"})
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	account, err := h.accounts.Approve(ctx, chi.URLParam(r, "email"))
	if err != nil {
		h.logger.WarnContext(ctx, "approval failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	profile := account.Profile()
	httputil.WriteJSON(w, http.StatusOK, accountResponse{Success: true, User: &profile})
}
