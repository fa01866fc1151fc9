package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	mW "github.com/havenstay/backend/internal/middleware"
	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
	"github.com/havenstay/backend/internal/reconciliation"
	"github.com/havenstay/backend/internal/services"
	"github.com/havenstay/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "handler-test-secret"

type fixture struct {
	router http.Handler
	store  *store.MemoryStore
	staff  string
	guest  string
}

func newFixture(t *testing.T, ledgers models.LedgerStore) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	if ledgers == nil {
		ledgers = mem
	}

	engine := reconciliation.New(ledgers)
	svc := services.NewPaymentService(engine, ledgers, services.RetryPolicy{Retries: 1}, nil)
	h := NewPaymentHandler(svc, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.Mount(r, mW.Auth(secret))
	})

	staff, err := mW.IssueToken(secret, mW.Identity{UserID: "staff-1", Role: mW.RoleStaff}, time.Hour)
	require.NoError(t, err)
	guest, err := mW.IssueToken(secret, mW.Identity{UserID: "guest-1", Role: mW.RoleGuest, BookingID: "BK-1"}, time.Hour)
	require.NoError(t, err)

	return &fixture{router: r, store: mem, staff: staff, guest: guest}
}

func (f *fixture) seed(t *testing.T, id, guest string, total, paid money.Amount) {
	t.Helper()
	rec := models.NewLedgerRecord(id, total, paid, time.Now())
	rec.GuestName = guest
	require.NoError(t, f.store.Create(context.Background(), rec))
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestPaymentHandler_SubmitAndApprove(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "BK-1", "Maria Santos", 100000, 70000)

	w := f.do(http.MethodPost, "/api/v1/bookings/BK-1/payments", f.guest,
		`{"claimed_amount": "500.00", "proof_reference": "uploads/p1.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var submitted reconciliation.Result
	decodeBody(t, w, &submitted)
	assert.Equal(t, models.PaymentPending, submitted.Record.Status)
	assert.Equal(t, money.Amount(50000), submitted.Record.ClaimedAmount)

	w = f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/approve", f.staff, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	decodeBody(t, w, &body)
	assert.Equal(t, "300.00", body["applied"])
	assert.Equal(t, "200.00", body["change"])
	ledger := body["ledger"].(map[string]any)
	assert.Equal(t, "approved", ledger["status"])
	assert.Equal(t, "0.00", ledger["remaining_balance"])
	assert.Equal(t, "staff-1", ledger["reviewed_by"])

	t.Run("second adjudication is refused", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/reject", f.staff, `{"reason": "late"}`)
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp services.ErrorResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, "This payment has already been reviewed", resp.Error)
		assert.Empty(t, w.Header().Get("Retry-After"))
	})
}

func TestPaymentHandler_ApproveWithChunkedEmptyBody(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "BK-1", "Maria Santos", 100000, 70000)

	w := f.do(http.MethodPost, "/api/v1/bookings/BK-1/payments", f.guest,
		`{"claimed_amount": "300.00", "proof_reference": "uploads/p1.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/admin/payments/BK-1/approve", nil)
	r.Body = io.NopCloser(strings.NewReader(""))
	r.ContentLength = -1
	r.TransferEncoding = []string{"chunked"}
	r.Header.Set("Authorization", "Bearer "+f.staff)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res reconciliation.Result
	decodeBody(t, w, &res)
	assert.Equal(t, money.Amount(30000), res.Applied)
	assert.Equal(t, models.PaymentApproved, res.Record.Status)
}

func TestPaymentHandler_ErrorTranslation(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "BK-1", "Maria Santos", 100000, 0)

	t.Run("negative amount", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/approve", f.staff, `{"collected_amount": "-1.00"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp services.ErrorResponse
		decodeBody(t, w, &resp)
		assert.Contains(t, resp.Details, "collected_amount")
	})

	t.Run("underpaid balance collection", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/approve", f.staff,
			`{"collected_amount": 400, "mode": "balance_collection"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp services.ErrorResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, "Amount must be at least 1000.00", resp.Details["collected_amount"])
	})

	t.Run("too many decimals", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/approve", f.staff, `{"collected_amount": "1.001"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("unknown booking", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/admin/payments/BK-404", f.staff, "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp services.ErrorResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, "Booking not found", resp.Error)
	})

	t.Run("unknown field", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/reject", f.staff, `{"reason": "x", "status": "approved"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid mode", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/approve", f.staff, `{"mode": "cash"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("guest cannot adjudicate", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/approve", f.guest, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("guest is scoped to their booking", func(t *testing.T) {
		f.seed(t, "BK-2", "Juan Dela Cruz", 1000, 0)
		w := f.do(http.MethodGet, "/api/v1/bookings/BK-2/ledger", f.guest, "")
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(http.MethodGet, "/api/v1/bookings/BK-1/ledger", f.guest, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("guest token without a booking reaches nothing", func(t *testing.T) {
		unscoped, err := mW.IssueToken(secret, mW.Identity{UserID: "guest-x", Role: mW.RoleGuest}, time.Hour)
		require.NoError(t, err)

		w := f.do(http.MethodGet, "/api/v1/bookings/BK-1/ledger", unscoped, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NotContains(t, w.Body.String(), "Maria Santos")

		w = f.do(http.MethodPost, "/api/v1/bookings/BK-1/payments", unscoped,
			`{"claimed_amount": "10.00", "proof_reference": "uploads/x.jpg"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/admin/payments", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// failingStore fails every commit with the configured error.
type failingStore struct {
	*store.MemoryStore
	err error
}

func (s *failingStore) CommitIfVersion(context.Context, *models.LedgerRecord, int64) (int64, error) {
	return 0, s.err
}

func TestPaymentHandler_StorageErrors(t *testing.T) {
	t.Run("conflict after retries", func(t *testing.T) {
		fs := &failingStore{MemoryStore: store.NewMemoryStore(), err: models.ErrConflict}
		f := newFixture(t, fs)
		f.store = fs.MemoryStore
		f.seed(t, "BK-1", "Maria Santos", 1000, 0)

		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/reject", f.staff, `{"reason": "x"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))

		var resp services.ErrorResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, "Please retry", resp.Error)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		fs := &failingStore{MemoryStore: store.NewMemoryStore(), err: errors.Join(models.ErrStorageUnavailable, errors.New("connection reset"))}
		f := newFixture(t, fs)
		f.store = fs.MemoryStore
		f.seed(t, "BK-1", "Maria Santos", 1000, 0)

		w := f.do(http.MethodPost, "/api/v1/admin/payments/BK-1/reject", f.staff, `{"reason": "x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestPaymentHandler_ListAndSummary(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "BK-1", "Maria Santos", 100000, 0)
	f.seed(t, "BK-2", "Juan Dela Cruz", 50000, 10000)
	f.seed(t, "BK-3", "Maria Clara", 80000, 80000)

	w := f.do(http.MethodGet, "/api/v1/admin/payments?q=maria&sort=remaining_balance&order=desc&limit=1&page=1", f.staff, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page struct {
		Items []struct {
			BookingID string `json:"booking_id"`
		} `json:"items"`
		Total      int `json:"total"`
		TotalPages int `json:"total_pages"`
	}
	decodeBody(t, w, &page)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "BK-1", page.Items[0].BookingID)

	t.Run("invalid filters", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/admin/payments?status=refunded", f.staff, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.do(http.MethodGet, "/api/v1/admin/payments?page=abc", f.staff, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.do(http.MethodGet, "/api/v1/admin/payments?limit=201", f.staff, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("summary", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/admin/payments/summary", f.staff, "")
		require.Equal(t, http.StatusOK, w.Code)

		var summary map[string]any
		decodeBody(t, w, &summary)
		assert.Equal(t, float64(3), summary["pending"])
		assert.Equal(t, "2300.00", summary["total_amount"])
		assert.Equal(t, "1400.00", summary["total_remaining"])
	})
}
