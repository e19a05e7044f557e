package subledger

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes counterparty, document and payment endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency httpx.IdempotencyStore
}

// NewHandler builds a Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency httpx.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

// MountCounterparties registers /counterparties routes.
func (h *Handler) MountCounterparties(r chi.Router) {
	r.Get("/", h.listCounterparties)
	r.Post("/", h.createCounterparty)
}

// MountDocuments registers /documents routes.
func (h *Handler) MountDocuments(r chi.Router) {
	r.Get("/", h.listDocuments)
	r.Get("/{id}", h.getDocument)
	r.Post("/{id}/payments", h.recordPayment)
}

// Aging serves the aging report.
func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.DateQueryOr(r, "as_of", time.Now().UTC())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := DocumentKind(strings.ToUpper(r.URL.Query().Get("kind")))
	if kind == "" {
		kind = Receivable
	}
	report, err := h.service.Aging(r.Context(), id.TenantID, kind, asOf)
	if err != nil {
		h.fail(w, "aging report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) createCounterparty(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in CounterpartyInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.TenantID, in.ActorID = id.TenantID, id.ActorID
	created, err := h.service.CreateCounterparty(r.Context(), in)
	if err != nil {
		h.fail(w, "create counterparty", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listCounterparties(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := CounterpartyKind(strings.ToUpper(r.URL.Query().Get("kind")))
	list, err := h.service.ListCounterparties(r.Context(), id.TenantID, kind)
	if err != nil {
		h.fail(w, "list counterparties", err)
		return
	}
	if list == nil {
		list = []Counterparty{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"counterparties": list})
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := DocumentFilter{
		Kind:           DocumentKind(strings.ToUpper(q.Get("kind"))),
		Status:         DocumentStatus(strings.ToUpper(q.Get("status"))),
		CounterpartyID: int64(httpx.IntQuery(r, "counterparty_id", 0)),
	}
	docs, err := h.service.ListDocuments(r.Context(), id.TenantID, filter)
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetDocument(r.Context(), id.TenantID, docID)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Method    string          `json:"method" validate:"omitempty,oneof=CASH BANK TRANSFER cash bank transfer"`
	Reference string          `json:"reference" validate:"max=128"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	err := httpx.Idempotent(w, r, h.idempotency, "documents.payment", func(r *http.Request) (int, any, error) {
		id, err := httpx.Identity(r)
		if err != nil {
			return 0, nil, err
		}
		docID, err := httpx.IDParam(r, "id")
		if err != nil {
			return 0, nil, err
		}
		var req paymentRequest
		if err := httpx.Bind(r, &req); err != nil {
			return 0, nil, err
		}
		date, err := httpx.ParseDate(req.Date)
		if err != nil {
			return 0, nil, err
		}
		reference := req.Reference
		if reference == "" {
			reference = r.Header.Get(httpx.IdempotencyHeader)
		}
		payment, err := h.service.RecordPayment(r.Context(), PaymentInput{
			TenantID:   id.TenantID,
			ActorID:    id.ActorID,
			DocumentID: docID,
			Amount:     req.Amount,
			Date:       date,
			Method:     PaymentMethod(req.Method),
			Reference:  reference,
		})
		return http.StatusCreated, payment, err
	})
	if err != nil {
		if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error("record payment", slog.Any("error", err))
		}
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
