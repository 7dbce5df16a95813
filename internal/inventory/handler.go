package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handlePostMovement)
	r.Delete("/movements/{id}", h.handleReverseMovement)
	r.Get("/users/{uid}/movements", h.handleListMovements)
	r.Get("/kits/{id}/availability", h.handleKitAvailability)
	r.Delete("/skus/{id}", h.handleDeleteSKU)
	r.Get("/package-types", h.handlePackageTypes)
}

type movementRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	SKU          string `json:"sku" validate:"required"`
	Type         string `json:"movement_type" validate:"required,oneof=entrada saida"`
	Quantity     int    `json:"quantity" validate:"required,gt=0"`
	Reason       string `json:"reason"`
	ViaComponent bool   `json:"via_component"`
}

func (h *Handler) handlePostMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.PostMovement(r.Context(), MovementInput{
		UserID:       req.UserID,
		SKUCode:      req.SKU,
		Type:         MovementType(req.Type),
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		ViaComponent: req.ViaComponent,
		ActorID:      r.Header.Get("X-Actor-Uid"),
	})
	if err != nil {
		h.fail(w, "post movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) handleReverseMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	m, err := h.service.ReverseMovement(r.Context(), id, r.Header.Get("X-Actor-Uid"))
	if err != nil {
		h.fail(w, "reverse movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), MovementFilter{
		UserID:  chi.URLParam(r, "uid"),
		SKUCode: q.Get("sku"),
		Limit:   limit,
	})
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) handleKitAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	availability, err := h.service.KitAvailability(r.Context(), id)
	if err != nil {
		h.fail(w, "kit availability", err)
		return
	}
	httpx.JSON(w, http.StatusOK, availability)
}

func (h *Handler) handleDeleteSKU(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSKU(r.Context(), id); err != nil {
		h.fail(w, "delete sku", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePackageTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.PackageTypes(r.Context())
	if err != nil {
		h.fail(w, "package types", err)
		return
	}
	httpx.JSON(w, http.StatusOK, types)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrValidation)
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("inventory request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
