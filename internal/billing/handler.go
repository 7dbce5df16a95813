package billing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// IdempotencyGuard deduplicates requests carrying an Idempotency-Key header.
type IdempotencyGuard interface {
	Claim(ctx context.Context, scope shared.IdempotencyScope, key string) error
	Release(ctx context.Context, scope shared.IdempotencyScope, key string) error
}

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    IdempotencyGuard
}

// NewHandler constructs billing handler.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idem: idem}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/{uid}", h.handleListInvoices)
	r.Post("/invoices/{uid}/{period}/compute", h.handleCompute)
	r.Get("/invoices/{uid}/{period}/storage-summary", h.handleStorageSummary)
	r.Post("/manual-items", h.handleAddManualItem)
	r.Get("/manual-items", h.handleManualHistory)
	r.Post("/manual-items/rehome", h.handleRehome)
	r.Get("/manual-services", h.handleManualServices)
	r.Get("/overview", h.handleOverview)
	r.Post("/recompute/{period}", h.handleRecompute)
}

type manualItemRequest struct {
	UserID      string `json:"uid" validate:"required"`
	Period      string `json:"period" validate:"required"`
	ServiceID   int64  `json:"service_id" validate:"required,gt=0"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	ServiceDate string `json:"service_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	period := PeriodOf(time.Now())
	if raw := r.URL.Query().Get("period"); raw != "" {
		parsed, err := ParsePeriod(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		period = parsed
	}
	invoices, err := h.service.ListInvoices(r.Context(), chi.URLParam(r, "uid"), period)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.ComputeInvoice(r.Context(), chi.URLParam(r, "uid"), period)
	if err != nil {
		h.fail(w, "compute invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) handleStorageSummary(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.StorageSummary(r.Context(), chi.URLParam(r, "uid"), period)
	if err != nil {
		h.fail(w, "storage summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAddManualItem(w http.ResponseWriter, r *http.Request) {
	var req manualItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := ParsePeriod(req.Period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ManualItemInput{
		UserID:    req.UserID,
		Period:    period,
		ServiceID: req.ServiceID,
		Quantity:  req.Quantity,
		ActorID:   r.Header.Get("X-Actor-Uid"),
	}
	if req.ServiceDate != "" {
		// validated by the datetime tag
		d, _ := time.Parse(time.DateOnly, req.ServiceDate)
		input.ServiceDate = &d
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idem != nil {
		if err := h.idem.Claim(r.Context(), shared.ScopeManualItem, key); err != nil {
			h.fail(w, "idempotency check", err)
			return
		}
	}
	invoice, err := h.service.AddManualItem(r.Context(), input)
	if err != nil {
		if key != "" && h.idem != nil {
			if delErr := h.idem.Release(context.WithoutCancel(r.Context()), shared.ScopeManualItem, key); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.fail(w, "add manual item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) handleManualHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.service.ManualItemHistory(r.Context(), limit)
	if err != nil {
		h.fail(w, "manual item history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleRehome(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RehomeManualItems(r.Context())
	if err != nil {
		h.fail(w, "rehome manual items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleManualServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ManualServices(r.Context())
	if err != nil {
		h.fail(w, "manual services", err)
		return
	}
	httpx.JSON(w, http.StatusOK, services)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.fail(w, "billing overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.RecomputeAll(r.Context(), period)
	if err != nil {
		h.fail(w, "recompute period", err)
		return
	}
	status := http.StatusOK
	if len(result.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("billing request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
