package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

const (
	defaultDateRange = 30 * 24 * time.Hour
	maxDateRange     = 366 * 24 * time.Hour
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler menangani permintaan audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		now:     time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.fail(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.fail(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads inclusive from/to dates, defaulting to the last 30 days.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	id, err := httpx.Identity(r)
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	today := h.now().UTC().Truncate(24 * time.Hour)
	to, err := httpx.DateQueryOr(r, "to", today)
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	from, err := httpx.DateQueryOr(r, "from", to.Add(-defaultDateRange))
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	if from.After(to) || to.Sub(from) > maxDateRange {
		return audit.TimelineFilters{}, fmt.Errorf("%w: invalid date range", httpx.ErrBadRequest)
	}

	query := r.URL.Query()
	filters := audit.TimelineFilters{
		TenantID: id.TenantID,
		From:     from,
		To:       to.AddDate(0, 0, 1),
		Entity:   strings.TrimSpace(query.Get("entity")),
		EntityID: strings.TrimSpace(query.Get("entity_id")),
		Action:   strings.TrimSpace(query.Get("action")),
		Page:     httpx.IntQuery(r, "page", 1),
		PageSize: httpx.IntQuery(r, "page_size", 0),
	}
	if raw := strings.TrimSpace(query.Get("actor_id")); raw != "" {
		actor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || actor < 0 {
			return audit.TimelineFilters{}, fmt.Errorf("%w: invalid actor_id %q", httpx.ErrBadRequest, raw)
		}
		filters.ActorID = &actor
	}
	return filters, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
