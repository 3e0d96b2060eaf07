package coa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

const (
	contentTypeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV   = "text/csv"
	idempotencyKey   = "Idempotency-Key"
	idempotentReplay = "Idempotent-Replayed"
)

// IdempotencyPort remembers processed import requests and their summaries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, clientID int64, key, module string) error
	Complete(ctx context.Context, clientID int64, key string, response []byte) error
	Lookup(ctx context.Context, clientID int64, key string) ([]byte, error)
	Delete(ctx context.Context, clientID int64, key string) error
}

// Handler serves import, export and seed under /clients/{clientID}/accounts.
type Handler struct {
	service         *Service
	logger          *slog.Logger
	validator       *validator.Validate
	idempotency     IdempotencyPort
	maxBytes        int64
	defaultTemplate string
}

// HandlerOptions tunes upload limits and the default seed template.
type HandlerOptions struct {
	MaxBytes        int64
	DefaultTemplate string
	Idempotency     IdempotencyPort
}

func NewHandler(logger *slog.Logger, service *Service, opts HandlerOptions) *Handler {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.DefaultTemplate == "" {
		opts.DefaultTemplate = "standard"
	}
	return &Handler{
		service:         service,
		logger:          logger,
		validator:       httpx.NewValidator(),
		idempotency:     opts.Idempotency,
		maxBytes:        opts.MaxBytes,
		defaultTemplate: opts.DefaultTemplate,
	}
}

type seedRequest struct {
	Template string `json:"template" validate:"omitempty,max=64"`
}

// Import accepts a multipart upload (field "file") or a raw CSV/XLSX body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		shared.Fail(w, h.logger, "import coa", err)
		return
	}
	opts := ImportOptions{ActorID: internalShared.ActorFromContext(r.Context())}
	if opts.DryRun, err = boolQuery(r, "dryRun"); err != nil {
		shared.Fail(w, h.logger, "import coa", err)
		return
	}
	if opts.SkipRetire, err = boolQuery(r, "skipRetire"); err != nil {
		shared.Fail(w, h.logger, "import coa", err)
		return
	}

	set, err := h.readUpload(w, r)
	if err != nil {
		shared.Fail(w, h.logger, "import coa", err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKey))
	if h.idempotency == nil || opts.DryRun {
		key = ""
	}
	if key != "" {
		err := h.idempotency.CheckAndInsert(r.Context(), clientID, key, "coa.import")
		if errors.Is(err, internalShared.ErrIdempotencyConflict) {
			h.replay(w, r, clientID, key)
			return
		}
		if err != nil {
			shared.Fail(w, h.logger, "import coa", err)
			return
		}
	}

	summary, err := h.service.Import(r.Context(), clientID, set, opts)
	if err != nil {
		if key != "" {
			if derr := h.idempotency.Delete(context.WithoutCancel(r.Context()), clientID, key); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		shared.Fail(w, h.logger, "import coa", err)
		return
	}
	if key != "" {
		body, err := json.Marshal(summary)
		if err == nil {
			err = h.idempotency.Complete(context.WithoutCancel(r.Context()), clientID, key, body)
		}
		if err != nil {
			h.logger.Warn("store idempotent response", slog.Int64("client_id", clientID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// replay answers a repeated Idempotency-Key with the summary of the first
// import. A key whose import has not finished yet is a conflict.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, clientID int64, key string) {
	body, err := h.idempotency.Lookup(r.Context(), clientID, key)
	switch {
	case errors.Is(err, internalShared.ErrIdempotencyNotFound):
		httpx.Problem(w, http.StatusConflict, "Conflict", "import with this idempotency key was released, retry")
		return
	case err != nil:
		shared.Fail(w, h.logger, "import coa", err)
		return
	case body == nil:
		httpx.Problem(w, http.StatusConflict, "Conflict", "import with this idempotency key is still in progress")
		return
	}
	w.Header().Set(idempotentReplay, "true")
	httpx.JSON(w, http.StatusOK, json.RawMessage(body))
}

// Export writes CSV by default, XLSX with ?format=xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		shared.Fail(w, h.logger, "export coa", err)
		return
	}
	set, err := h.service.Export(r.Context(), clientID)
	if err != nil {
		shared.Fail(w, h.logger, "export coa", err)
		return
	}
	var buf bytes.Buffer
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", "csv":
		format, err = "csv", WriteCSV(&buf, set)
		w.Header().Set("Content-Type", contentTypeCSV)
	case "xlsx":
		err = WriteXLSX(&buf, set)
		w.Header().Set("Content-Type", contentTypeXLSX)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "format must be csv or xlsx")
		return
	}
	if err != nil {
		w.Header().Del("Content-Type")
		shared.Fail(w, h.logger, "export coa", err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="chart-of-accounts-%d.%s"`, clientID, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Seed loads a template into an empty chart.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		shared.Fail(w, h.logger, "seed coa", err)
		return
	}
	var req seedRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			shared.Fail(w, h.logger, "seed coa", err)
			return
		}
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		shared.Fail(w, h.logger, "seed coa", err)
		return
	}
	if req.Template == "" {
		req.Template = h.defaultTemplate
	}
	summary, err := h.service.SeedStandardChart(r.Context(), clientID, req.Template, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		shared.Fail(w, h.logger, "seed coa", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, summary)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (RowSet, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		body     io.Reader = r.Body
		filename string
	)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return RowSet{}, uploadError(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return RowSet{}, fmt.Errorf("%w: multipart field \"file\" required", httpx.ErrValidation)
		}
		defer file.Close()
		body, filename = file, header.Filename
		mediaType, _, _ = mime.ParseMediaType(header.Header.Get("Content-Type"))
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return RowSet{}, uploadError(err)
	}
	if isXLSX(mediaType, filename) {
		return ReadXLSX(bytes.NewReader(raw))
	}
	return ReadCSV(bytes.NewReader(raw))
}

func isXLSX(mediaType, filename string) bool {
	return mediaType == contentTypeXLSX || strings.EqualFold(filepath.Ext(filename), ".xlsx")
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit %d bytes", httpx.ErrTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", httpx.ErrValidation, name)
	}
	return v, nil
}
