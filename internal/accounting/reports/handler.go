package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/income-statement", h.incomeStatement)
	r.Get("/balance-sheet", h.balanceSheet)
	r.Get("/accounts/{id}/balance", h.AccountBalance)
}

func (h *Handler) today() time.Time {
	now := h.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.DateQueryOr(r, "as_of", h.today())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), id.TenantID, asOf)
	if err != nil {
		h.fail(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rg, err := h.rangeQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if rg.From.IsZero() {
		rg.From = time.Date(rg.To.Year(), rg.To.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	pl, err := h.service.IncomeStatement(r.Context(), id.TenantID, rg)
	if err != nil {
		h.fail(w, "income statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.DateQueryOr(r, "as_of", h.today())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), id.TenantID, asOf)
	if err != nil {
		h.fail(w, "balance sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

// AccountBalance serves the balance of one account over a date range.
func (h *Handler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rg, err := h.rangeQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.service.AccountBalance(r.Context(), id.TenantID, accountID, rg)
	if err != nil {
		h.fail(w, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) rangeQuery(r *http.Request) (Range, error) {
	to, err := httpx.DateQueryOr(r, "to", h.today())
	if err != nil {
		return Range{}, err
	}
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		return Range{}, err
	}
	rg := Range{To: to}
	if from != nil {
		rg.From = *from
	}
	return rg, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
