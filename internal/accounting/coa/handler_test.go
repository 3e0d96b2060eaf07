package coa_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts/accountstest"
	"github.com/odyssey-erp/ledger/internal/accounting/coa"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIdempotency struct {
	mu        sync.Mutex
	responses map[string][]byte
	pending   map[string]bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{responses: map[string][]byte{}, pending: map[string]bool{}}
}

func idemKey(clientID int64, key string) string { return fmt.Sprintf("%d/%s", clientID, key) }

func (m *memIdempotency) CheckAndInsert(_ context.Context, clientID int64, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := idemKey(clientID, key)
	if _, done := m.responses[k]; done || m.pending[k] {
		return internalShared.ErrIdempotencyConflict
	}
	m.pending[k] = true
	return nil
}

func (m *memIdempotency) Complete(_ context.Context, clientID int64, key string, response []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := idemKey(clientID, key)
	if !m.pending[k] {
		return internalShared.ErrIdempotencyNotFound
	}
	delete(m.pending, k)
	m.responses[k] = response
	return nil
}

func (m *memIdempotency) Lookup(_ context.Context, clientID int64, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := idemKey(clientID, key)
	if body, ok := m.responses[k]; ok {
		return body, nil
	}
	if m.pending[k] {
		return nil, nil
	}
	return nil, internalShared.ErrIdempotencyNotFound
}

func (m *memIdempotency) Delete(_ context.Context, clientID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := idemKey(clientID, key)
	delete(m.pending, k)
	delete(m.responses, k)
	return nil
}

func newCoARouter(t *testing.T) (http.Handler, *accountstest.Memory) {
	h, repo, _ := newCoARouterWithKeys(t)
	return h, repo
}

func newCoARouterWithKeys(t *testing.T) (http.Handler, *accountstest.Memory, *memIdempotency) {
	t.Helper()
	repo := accountstest.New()
	keys := newMemIdempotency()
	svc := coa.NewService(repo, coa.Options{})
	h := coa.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, coa.HandlerOptions{
		MaxBytes:    1 << 16,
		Idempotency: keys,
	})
	r := chi.NewRouter()
	r.Route("/clients/{clientID}/accounts", h.MountRoutes)
	return r, repo, keys
}

func send(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerImportRawCSV(t *testing.T) {
	h, repo := newCoARouter(t)
	req := httptest.NewRequest(http.MethodPost, "/clients/1/accounts/import",
		strings.NewReader("code,name,type,parent\n1000,Assets,asset,\n1100,Cash,asset,1000\n"))
	req.Header.Set("Content-Type", "text/csv")

	rec := send(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary coa.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 2, repo.Len())
}

func TestHandlerImportMultipartDryRun(t *testing.T) {
	h, repo := newCoARouter(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "chart.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("code,name,type\n1000,Assets,ASSET\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/clients/1/accounts/import?dryRun=true", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := send(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"dryRun":true`)
	assert.Zero(t, repo.Len())
}

func TestHandlerImportRejectsBadFile(t *testing.T) {
	h, repo := newCoARouter(t)
	req := httptest.NewRequest(http.MethodPost, "/clients/1/accounts/import",
		strings.NewReader("code,name,type\n1000,Assets,ASSET\n1000,Again,ASSET\n"))
	rec := send(h, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem struct {
		Errors []shared.RowIssue `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, 3, problem.Errors[0].Row)
	assert.Zero(t, repo.Len())
}

func TestHandlerImportTooLarge(t *testing.T) {
	h, _ := newCoARouter(t)
	big := "code,name,type\n" + strings.Repeat("1000,Assets,ASSET\n", 5000)
	rec := send(h, httptest.NewRequest(http.MethodPost, "/clients/1/accounts/import", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandlerImportIdempotencyKey(t *testing.T) {
	h, repo, keys := newCoARouterWithKeys(t)
	newReq := func(key, body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/clients/1/accounts/import", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", key)
		return req
	}
	chart := "code,name,type\n1000,Assets,ASSET\n"

	first := send(h, newReq("abc", chart))
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	// A repeat gets the first summary back instead of a second reconciliation.
	repeat := send(h, newReq("abc", chart))
	require.Equal(t, http.StatusOK, repeat.Code, repeat.Body.String())
	assert.Equal(t, "true", repeat.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), repeat.Body.String())
	var summary coa.Summary
	require.NoError(t, json.Unmarshal(repeat.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, repo.Len())

	require.NoError(t, keys.CheckAndInsert(context.Background(), 1, "inflight", "coa.import"))
	rec := send(h, newReq("inflight", chart))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "in progress")

	// A failed import releases its key.
	rec = send(h, newReq("retry", "code,name,type\n2000,Broken,NOPE\n"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = send(h, newReq("retry", "code,name,type\n1000,Assets,ASSET\n2000,Fixed,ASSET\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 2, repo.Len())
}

func TestHandlerSeedAndExport(t *testing.T) {
	h, _ := newCoARouter(t)

	rec := send(h, httptest.NewRequest(http.MethodPost, "/clients/3/accounts/seed", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = send(h, httptest.NewRequest(http.MethodPost, "/clients/3/accounts/seed", strings.NewReader(`{"template":"standard"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = send(h, httptest.NewRequest(http.MethodGet, "/clients/3/accounts/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "AccountNumber,AccountName,AccountType,ParentAccountNumber"))
	assert.Contains(t, rec.Body.String(), "1110,Cash,ASSET,1100")

	rec = send(h, httptest.NewRequest(http.MethodGet, "/clients/3/accounts/export?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	set, err := coa.ReadXLSX(rec.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, set.Rows)

	rec = send(h, httptest.NewRequest(http.MethodGet, "/clients/3/accounts/export?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
