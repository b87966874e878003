package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eventgate/internal/checkpoint/models"
	"eventgate/internal/checkpoint/policy"
	"eventgate/internal/platform/middleware"
	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/httputil"
)

// Service defines the interface for entry and distribution operations.
type Service interface {
	Status(ctx context.Context, token string) (*models.TokenRecord, error)
	UpdateEntryGate(ctx context.Context, token string) (*models.TokenRecord, bool, error)
	UpdateCheckpoint(ctx context.Context, token string, cp models.CheckpointID) (*models.TokenRecord, error)
}

// Handler serves the /api/prasad routes used by scanners.
type Handler struct {
	gateway Service
	catalog *models.Catalog
	logger  *slog.Logger
}

func New(gateway Service, catalog *models.Catalog, logger *slog.Logger) *Handler {
	return &Handler{gateway: gateway, catalog: catalog, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/prasad/checkpoints", h.HandleCheckpoints)
	r.Get("/api/prasad/status", h.HandleStatus)
	r.Post("/api/prasad/entry", h.HandleEntry)
	r.Post("/api/prasad/update", h.HandleUpdate)
}

type statusResponse struct {
	Token  string          `json:"token"`
	Prasad map[string]bool `json:"prasad"`
}

type entryResponse struct {
	Success         bool            `json:"success"`
	AlreadyRecorded bool            `json:"alreadyRecorded"`
	Prasad          map[string]bool `json:"prasad"`
}

type updateResponse struct {
	Success bool            `json:"success"`
	Prasad  map[string]bool `json:"prasad"`
}

// rejectionResponse is the 409 body the scanner maps back to a decision.
type rejectionResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type checkpointsResponse struct {
	EntryGate   string   `json:"entryGate"`
	Checkpoints []string `json:"checkpoints"`
}

func (h *Handler) HandleCheckpoints(w http.ResponseWriter, _ *http.Request) {
	ids := h.catalog.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	httputil.WriteJSON(w, http.StatusOK, checkpointsResponse{
		EntryGate:   models.EntryGate.String(),
		Checkpoints: out,
	})
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "token is required"))
		return
	}

	record, err := h.gateway.Status(ctx, token)
	if err != nil {
		h.logger.WarnContext(ctx, "status lookup failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, statusResponse{Token: token, Prasad: h.catalog.Flags(record)})
}

func (h *Handler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.UpdateEntryRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	record, applied, err := h.gateway.UpdateEntryGate(ctx, req.Token)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record entry",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, entryResponse{
		Success:         true,
		AlreadyRecorded: !applied,
		Prasad:          h.catalog.Flags(record),
	})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.UpdateCheckpointRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	record, err := h.gateway.UpdateCheckpoint(ctx, req.Token, models.CheckpointID(req.PrasadType))
	if err != nil {
		if reason, rejected := rejectionReason(err); rejected {
			h.logger.InfoContext(ctx, "checkpoint update rejected",
				"request_id", requestID,
				"checkpoint", req.PrasadType,
				"reason", reason,
			)
			httputil.WriteJSON(w, http.StatusConflict, rejectionResponse{
				Reason:  reason,
				Message: messageOf(err),
			})
			return
		}
		h.logger.ErrorContext(ctx, "failed to update checkpoint",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, updateResponse{Success: true, Prasad: h.catalog.Flags(record)})
}

func rejectionReason(err error) (string, bool) {
	switch {
	case dErrors.HasCode(err, dErrors.CodeAlreadyDone):
		return policy.AlreadyDone.Reason(), true
	case dErrors.HasCode(err, dErrors.CodePreconditionRequired):
		return policy.BlockedPrecondition.Reason(), true
	}
	return "", false
}

func messageOf(err error) string {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return err.Error()
}
