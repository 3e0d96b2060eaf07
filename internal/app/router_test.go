package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts/accountstest"
	"github.com/odyssey-erp/ledger/internal/accounting/coa"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/journals/journalstest"
	"github.com/odyssey-erp/ledger/internal/observability"
	"github.com/odyssey-erp/ledger/internal/shared"
	"github.com/odyssey-erp/ledger/jobs"
)

type auditCapture struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditCapture) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *auditCapture) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := &auditCapture{}
	chart := accountstest.New()
	metrics := observability.NewMetrics()
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000}
	return NewRouter(RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accounts.NewService(chart, audit, logger)),
		CoAHandler:      coa.NewHandler(logger, coa.NewService(chart, coa.Options{Logger: logger, Metrics: metrics.Ledger()}), coa.HandlerOptions{}),
		JournalsHandler: journals.NewHandler(logger, journals.NewService(journalstest.New(), journals.Options{Logger: logger})),
		JobHandler:      jobs.NewHandler(nil, logger),
		Metrics:         metrics,
	}), audit
}

func do(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(h, http.MethodGet, "/jobs/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue":"default"`)
}

func TestRouterPropagatesActor(t *testing.T) {
	h, audit := newTestRouter(t)
	rec := do(h, http.MethodPost, "/clients/1/accounts/",
		`{"code":"1000","name":"Assets","type":"ASSET"}`,
		map[string]string{ActorHeader: "42"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, audit.logs, 1)
	assert.Equal(t, int64(42), audit.logs[0].ActorID)
	assert.Equal(t, int64(1), audit.logs[0].ClientID)

	rec = do(h, http.MethodPost, "/clients/1/accounts/",
		`{"code":"2000","name":"Liabilities","type":"LIABILITY"}`,
		map[string]string{ActorHeader: "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, audit.logs, 1)
}

func TestRouterMountsLedgerRoutes(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(h, http.MethodPost, "/clients/3/accounts/seed", `{}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/clients/3/accounts/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "AccountNumber,AccountName"))

	rec = do(h, http.MethodGet, "/clients/3/accounts/tree", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/clients/3/journal-entries/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/clients/3/entities/1/journal-entries/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_http_requests_total")
	assert.Contains(t, rec.Body.String(), `ledger_coa_imports_total{result="applied"} 1`)
}
