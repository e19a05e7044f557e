package httpx_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	ledgererr "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ledgererr.ErrUnbalanced, http.StatusBadRequest},
		{fmt.Errorf("%w: bad json", httpx.ErrBadRequest), http.StatusBadRequest},
		{fmt.Errorf("account 4: %w", ledgererr.ErrNotFound), http.StatusNotFound},
		{ledgererr.ErrAlreadyVoid, http.StatusConflict},
		{shared.ErrIdempotencyMismatch, http.StatusConflict},
		{httpx.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, title := httpx.StatusFor(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.NotEmpty(t, title)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	httpx.RespondError(rr, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Empty(t, problem.Detail)

	rr = httptest.NewRecorder()
	httpx.RespondError(rr, ledgererr.ErrUnbalanced)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, http.StatusBadRequest, problem.Status)
	require.Contains(t, problem.Detail, "balance")
}

func TestBindValidates(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	var p payload
	err := httpx.Bind(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), &p)
	require.ErrorIs(t, err, httpx.ErrBadRequest)
	require.Contains(t, err.Error(), "Name failed required")

	err = httpx.Bind(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`)), &p)
	require.ErrorIs(t, err, httpx.ErrBadRequest)

	require.NoError(t, httpx.Bind(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`)), &p))
	require.Equal(t, "a", p.Name)
}

func TestDateQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?from=2025-03-01&bad=03/01/2025", nil)
	from, err := httpx.DateQuery(r, "from")
	require.NoError(t, err)
	require.Equal(t, "2025-03-01", from.Format(httpx.DateLayout))

	missing, err := httpx.DateQuery(r, "to")
	require.NoError(t, err)
	require.Nil(t, missing)

	_, err = httpx.DateQuery(r, "bad")
	require.ErrorIs(t, err, httpx.ErrBadRequest)

	require.Equal(t, 7, httpx.IntQuery(r, "limit", 7))
}

type idempotentCall struct {
	store *memory.Store
	calls atomic.Int32
}

func (c *idempotentCall) do(t *testing.T, tenant int64, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(httpx.IdempotencyHeader, key)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{TenantID: tenant}))
	rr := httptest.NewRecorder()
	_ = httpx.Idempotent(rr, req, c.store, "test.create", func(r *http.Request) (int, any, error) {
		var in struct {
			Amount string `json:"amount"`
		}
		if err := httpx.Bind(r, &in); err != nil {
			return 0, nil, err
		}
		if in.Amount == "" {
			return 0, nil, fmt.Errorf("%w: amount required", ledgererr.ErrValidation)
		}
		n := c.calls.Add(1)
		return http.StatusCreated, map[string]any{"call": n, "amount": in.Amount}, nil
	})
	return rr
}

func TestIdempotentReplaysCompletedResponse(t *testing.T) {
	c := &idempotentCall{store: memory.New()}

	first := c.do(t, 1, "k-1", `{"amount":"10"}`)
	require.Equal(t, http.StatusCreated, first.Code)
	require.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := c.do(t, 1, "k-1", `{"amount":"10"}`)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.EqualValues(t, 1, c.calls.Load())

	other := c.do(t, 2, "k-1", `{"amount":"10"}`)
	require.Equal(t, http.StatusCreated, other.Code)
	require.EqualValues(t, 2, c.calls.Load())
}

func TestIdempotentRejectsDifferentBody(t *testing.T) {
	c := &idempotentCall{store: memory.New()}

	require.Equal(t, http.StatusCreated, c.do(t, 1, "k-2", `{"amount":"10"}`).Code)
	rr := c.do(t, 1, "k-2", `{"amount":"11"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.EqualValues(t, 1, c.calls.Load())
}

func TestIdempotentReleasesKeyOnFailure(t *testing.T) {
	c := &idempotentCall{store: memory.New()}

	rr := c.do(t, 1, "k-3", `{"amount":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = c.do(t, 1, "k-3", `{"amount":"5"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Empty(t, rr.Header().Get("Idempotent-Replayed"))
}

func TestIdempotentWithoutKeyRunsEveryTime(t *testing.T) {
	c := &idempotentCall{store: memory.New()}
	for range 2 {
		rr := c.do(t, 1, "", `{"amount":"1"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	require.EqualValues(t, 2, c.calls.Load())
}
