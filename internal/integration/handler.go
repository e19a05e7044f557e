package integration

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes business event endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency httpx.IdempotencyStore
}

// NewHandler builds a Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency httpx.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

// MountRoutes registers event routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.sale)
	r.Post("/purchases", h.purchase)
	r.Post("/expenses", h.expense)
	r.Post("/stock-adjustments", h.stockAdjustment)
}

type dates struct {
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	DueDate string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

func (d dates) parse() (time.Time, *time.Time, error) {
	date, err := httpx.ParseDate(d.Date)
	if err != nil {
		return time.Time{}, nil, err
	}
	if d.DueDate == "" {
		return date, nil, nil
	}
	due, err := httpx.ParseDate(d.DueDate)
	if err != nil {
		return time.Time{}, nil, err
	}
	return date, &due, nil
}

type saleRequest struct {
	SaleEvent
	dates
}

type purchaseRequest struct {
	PurchaseEvent
	dates
}

type expenseRequest struct {
	ExpenseEvent
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type stockRequest struct {
	StockAdjustmentEvent
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) sale(w http.ResponseWriter, r *http.Request) {
	err := httpx.Idempotent(w, r, h.idempotency, "events.sale", func(r *http.Request) (int, any, error) {
		id, err := httpx.Identity(r)
		if err != nil {
			return 0, nil, err
		}
		var req saleRequest
		if err := httpx.Bind(r, &req); err != nil {
			return 0, nil, err
		}
		evt := req.SaleEvent
		if evt.Date, evt.DueDate, err = req.parse(); err != nil {
			return 0, nil, err
		}
		evt.TenantID, evt.ActorID = id.TenantID, id.ActorID
		evt.Method = strings.ToUpper(evt.Method)
		posted, err := h.service.PostSale(r.Context(), evt)
		return http.StatusCreated, posted, err
	})
	h.logFailure("post sale event", err)
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	err := httpx.Idempotent(w, r, h.idempotency, "events.purchase", func(r *http.Request) (int, any, error) {
		id, err := httpx.Identity(r)
		if err != nil {
			return 0, nil, err
		}
		var req purchaseRequest
		if err := httpx.Bind(r, &req); err != nil {
			return 0, nil, err
		}
		evt := req.PurchaseEvent
		if evt.Date, evt.DueDate, err = req.parse(); err != nil {
			return 0, nil, err
		}
		evt.TenantID, evt.ActorID = id.TenantID, id.ActorID
		posted, err := h.service.PostPurchase(r.Context(), evt)
		return http.StatusCreated, posted, err
	})
	h.logFailure("post purchase event", err)
}

func (h *Handler) expense(w http.ResponseWriter, r *http.Request) {
	err := httpx.Idempotent(w, r, h.idempotency, "events.expense", func(r *http.Request) (int, any, error) {
		id, err := httpx.Identity(r)
		if err != nil {
			return 0, nil, err
		}
		var req expenseRequest
		if err := httpx.Bind(r, &req); err != nil {
			return 0, nil, err
		}
		evt := req.ExpenseEvent
		if evt.Date, err = httpx.ParseDate(req.Date); err != nil {
			return 0, nil, err
		}
		evt.TenantID, evt.ActorID = id.TenantID, id.ActorID
		posted, err := h.service.PostExpense(r.Context(), evt)
		return http.StatusCreated, posted, err
	})
	h.logFailure("post expense event", err)
}

func (h *Handler) stockAdjustment(w http.ResponseWriter, r *http.Request) {
	err := httpx.Idempotent(w, r, h.idempotency, "events.stock_adjustment", func(r *http.Request) (int, any, error) {
		id, err := httpx.Identity(r)
		if err != nil {
			return 0, nil, err
		}
		var req stockRequest
		if err := httpx.Bind(r, &req); err != nil {
			return 0, nil, err
		}
		evt := req.StockAdjustmentEvent
		if evt.Date, err = httpx.ParseDate(req.Date); err != nil {
			return 0, nil, err
		}
		evt.TenantID, evt.ActorID = id.TenantID, id.ActorID
		posted, err := h.service.PostStockAdjustment(r.Context(), evt)
		return http.StatusCreated, posted, err
	})
	h.logFailure("post stock adjustment event", err)
}

func (h *Handler) logFailure(op string, err error) {
	if err == nil {
		return
	}
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
}
