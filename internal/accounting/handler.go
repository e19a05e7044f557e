package accounting

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	core "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler wires ledger transaction endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency httpx.IdempotencyStore
}

// NewHandler builds a Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency httpx.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.post)
	r.Get("/{id}", h.get)
	r.Post("/{id}/void", h.void)
}

type counterpartyRequest struct {
	ID      int64  `json:"id" validate:"required,gt=0"`
	DueDate string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

type postRequest struct {
	Number       string               `json:"number" validate:"max=64"`
	Date         string               `json:"date" validate:"required,datetime=2006-01-02"`
	Type         TransactionType      `json:"type" validate:"required"`
	Description  string               `json:"description" validate:"max=500"`
	Reference    string               `json:"reference" validate:"max=128"`
	Lines        []PostingLineInput   `json:"lines" validate:"required,dive"`
	Items        []ItemInput          `json:"items" validate:"dive"`
	Counterparty *counterpartyRequest `json:"counterparty"`
}

func (req postRequest) input(id core.Identity, fallbackNumber string) (PostingInput, error) {
	date, err := httpx.ParseDate(req.Date)
	if err != nil {
		return PostingInput{}, err
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		number = fallbackNumber
	}
	in := PostingInput{
		TenantID:    id.TenantID,
		ActorID:     id.ActorID,
		Number:      number,
		Date:        date,
		Type:        TransactionType(strings.ToUpper(string(req.Type))),
		Description: req.Description,
		Reference:   req.Reference,
		Lines:       req.Lines,
		Items:       req.Items,
	}
	if req.Counterparty != nil {
		ref := &CounterpartyRef{ID: req.Counterparty.ID}
		if req.Counterparty.DueDate != "" {
			due, err := httpx.ParseDate(req.Counterparty.DueDate)
			if err != nil {
				return PostingInput{}, err
			}
			ref.DueDate = &due
		}
		in.Counterparty = ref
	}
	return in, nil
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	err := httpx.Idempotent(w, r, h.idempotency, "transactions.post", func(r *http.Request) (int, any, error) {
		id, err := httpx.Identity(r)
		if err != nil {
			return 0, nil, err
		}
		var req postRequest
		if err := httpx.Bind(r, &req); err != nil {
			return 0, nil, err
		}
		in, err := req.input(id, r.Header.Get(httpx.IdempotencyHeader))
		if err != nil {
			return 0, nil, err
		}
		posted, err := h.service.PostTransaction(r.Context(), in)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, posted, nil
	})
	h.logFailure("post transaction", err)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	posting, err := h.service.GetTransaction(r.Context(), id.TenantID, txID)
	if err != nil {
		h.logFailure("get transaction", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, posting)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{Type: TransactionType(strings.ToUpper(r.URL.Query().Get("type")))}
	if filter.From, err = httpx.DateQuery(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.DateQuery(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.IncludeVoid, _ = strconv.ParseBool(r.URL.Query().Get("include_void"))
	page := httpx.IntQuery(r, "page", 1)
	limit := httpx.IntQuery(r, "limit", 20)
	items, total, err := h.service.ListTransactions(r.Context(), id.TenantID, filter, page, limit)
	if err != nil {
		h.logFailure("list transactions", err)
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": items,
		"pagination":   core.NewPagination(page, limit, total),
	})
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req voidRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	voided, err := h.service.VoidTransaction(r.Context(), VoidInput{
		TenantID:      id.TenantID,
		ActorID:       id.ActorID,
		TransactionID: txID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.logFailure("void transaction", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, voided)
}

func (h *Handler) logFailure(op string, err error) {
	if err == nil {
		return
	}
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
}
