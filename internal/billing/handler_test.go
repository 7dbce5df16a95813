package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) Claim(ctx context.Context, scope shared.IdempotencyScope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[string(scope)+":"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[string(scope)+":"+key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Release(ctx context.Context, scope shared.IdempotencyScope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, string(scope)+":"+key)
	return nil
}

func newTestRouter(repo *memoryRepo, idem IdempotencyGuard) http.Handler {
	handler := NewHandler(nil, newTestService(repo, nil), idem)
	r := chi.NewRouter()
	r.Route("/billing", handler.MountRoutes)
	return r
}

func TestHandlerComputeInvoice(t *testing.T) {
	router := newTestRouter(seededRepo(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/invoices/u1/2024-08/compute", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Period string `json:"period"`
		Total  string `json:"total_amount"`
		Items  []any  `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2024-08", body.Period)
	require.Equal(t, "288.87", body.Total)
	require.Len(t, body.Items, 4)
}

func TestHandlerRejectsBadPeriod(t *testing.T) {
	router := newTestRouter(seededRepo(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/invoices/u1/2024-13/compute", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHandlerManualItemIdempotencyKey(t *testing.T) {
	repo := seededRepo()
	idem := &memoryIdempotency{keys: map[string]struct{}{}}
	router := newTestRouter(repo, idem)
	payload := `{"uid":"u1","period":"2024-08","service_id":10,"service_date":"2024-08-25"}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/billing/manual-items", strings.NewReader(payload))
		req.Header.Set("Idempotency-Key", "abc-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, send().Code)
	require.Equal(t, http.StatusConflict, send().Code)

	manual := 0
	for _, item := range repo.state.items {
		if item.Type == ItemManual {
			manual++
		}
	}
	require.Equal(t, 1, manual)
}

func TestHandlerManualItemFailureReleasesKey(t *testing.T) {
	idem := &memoryIdempotency{keys: map[string]struct{}{}}
	router := newTestRouter(seededRepo(), idem)

	req := httptest.NewRequest(http.MethodPost, "/billing/manual-items", strings.NewReader(`{"uid":"u1","period":"2024-08","service_id":99}`))
	req.Header.Set("Idempotency-Key", "abc-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, idem.keys)
}

func TestHandlerManualItemValidation(t *testing.T) {
	router := newTestRouter(seededRepo(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/manual-items", strings.NewReader(`{"period":"2024-08"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTierGapIsUnprocessable(t *testing.T) {
	repo := seededRepo()
	repo.services[12] = CatalogService{ID: 12, Name: "Separação", Type: ServiceTieredOneOff, Tiers: TierSet{{From: 10, To: intPtr(20), Price: *decPtr("1.00")}}}
	router := newTestRouter(repo, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/manual-items", strings.NewReader(`{"uid":"u1","period":"2024-08","service_id":12,"quantity":5}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerRecomputeReportsFailures(t *testing.T) {
	repo := seededRepo()
	repo.users = []string{"u1", "u3"}
	repo.failOn["contracts:u3"] = errors.New("broken contract row")
	router := newTestRouter(repo, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/recompute/2024-08", nil))
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var result BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "u3", result.Failures[0].UserID)
}
