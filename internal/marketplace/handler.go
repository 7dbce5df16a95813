package marketplace

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// SyncEnqueuer schedules a background sync for a user and returns the task id.
type SyncEnqueuer interface {
	EnqueueMarketplaceSync(ctx context.Context, userID string) (string, error)
}

// Handler wires HTTP endpoints for the marketplace boundary.
type Handler struct {
	logger *slog.Logger
	states *StateStore
	sync   SyncEnqueuer
}

// NewHandler constructs marketplace handler.
func NewHandler(logger *slog.Logger, states *StateStore, sync SyncEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, states: states, sync: sync}
}

// MountRoutes registers marketplace routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/oauth/state", h.handleCreateState)
	r.Post("/users/{uid}/sync", h.handleSync)
}

type stateRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type stateResponse struct {
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

func (h *Handler) handleCreateState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	state, err := h.states.Create(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("create oauth state", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stateResponse{State: state.State, CodeChallenge: state.CodeChallenge, CodeChallengeMethod: "S256"})
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Sync Unavailable", "job queue not configured")
		return
	}
	id, err := h.sync.EnqueueMarketplaceSync(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		h.logger.Error("enqueue marketplace sync", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}
