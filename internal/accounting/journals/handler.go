package journals

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

type listResponse struct {
	Entries    []Entry                   `json:"entries"`
	Pagination internalShared.Pagination `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, err := scope(r)
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	h.list(w, r, clientID, entityID)
}

// ListClient lists entries across entities; ?entityId narrows it.
func (h *Handler) ListClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	var entityID int64
	if raw := r.URL.Query().Get("entityId"); raw != "" {
		if entityID, err = strconv.ParseInt(raw, 10, 64); err != nil || entityID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entityId must be a positive integer")
			return
		}
	}
	h.list(w, r, clientID, entityID)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, clientID, entityID int64) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	filter.EntityID = entityID
	entries, page, err := h.service.ListEntries(r.Context(), clientID, filter)
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Entries: entries, Pagination: page})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, id, err := entryScope(r)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), clientID, entityID, id)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, err := scope(r)
	if err != nil {
		h.fail(w, "create journal", err)
		return
	}
	var req createEntryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "create journal", err)
		return
	}
	in, err := req.toInput(clientID, entityID, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create journal", err)
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), in)
	if err != nil {
		h.fail(w, "create journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, id, err := entryScope(r)
	if err != nil {
		h.fail(w, "update journal", err)
		return
	}
	var req updateEntryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "update journal", err)
		return
	}
	in, err := req.toInput(internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update journal", err)
		return
	}
	entry, err := h.service.UpdateEntry(r.Context(), clientID, entityID, id, in)
	if err != nil {
		h.fail(w, "update journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, id, err := entryScope(r)
	if err != nil {
		h.fail(w, "post journal", err)
		return
	}
	entry, err := h.service.PostEntry(r.Context(), clientID, entityID, id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, id, err := entryScope(r)
	if err != nil {
		h.fail(w, "void journal", err)
		return
	}
	var req voidEntryRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, "void journal", err)
			return
		}
	}
	entry, err := h.service.VoidEntry(r.Context(), clientID, entityID, id, VoidInput{
		ActorID: internalShared.ActorFromContext(r.Context()),
		Reason:  req.Reason,
	})
	if err != nil {
		h.fail(w, "void journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, id, err := entryScope(r)
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	var req reverseEntryRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, "reverse journal", err)
			return
		}
	}
	date, err := optionalDate(req.Date)
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	entry, err := h.service.ReverseEntry(r.Context(), clientID, entityID, id, ReverseInput{
		ActorID:     internalShared.ActorFromContext(r.Context()),
		Description: req.Description,
		Date:        date,
	})
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	clientID, entityID, id, err := entryScope(r)
	if err != nil {
		h.fail(w, "delete journal", err)
		return
	}
	if err := h.service.DeleteEntry(r.Context(), clientID, entityID, id, internalShared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "delete journal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Integrity re-validates the tenant's posted entries on demand.
func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		h.fail(w, "journal integrity", err)
		return
	}
	report, err := h.service.AuditBalances(r.Context(), clientID)
	if err != nil {
		h.fail(w, "journal integrity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	return httpx.Validate(h.validator, dst)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	shared.Fail(w, h.logger, op, err)
}

func scope(r *http.Request) (int64, int64, error) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		return 0, 0, err
	}
	entityID, err := httpx.Int64Param(r, "entityID")
	if err != nil {
		return 0, 0, err
	}
	return clientID, entityID, nil
}

func entryScope(r *http.Request) (int64, int64, uuid.UUID, error) {
	clientID, entityID, err := scope(r)
	if err != nil {
		return 0, 0, uuid.Nil, err
	}
	id, err := httpx.UUIDParam(r, "entryID")
	if err != nil {
		return 0, 0, uuid.Nil, err
	}
	return clientID, entityID, id, nil
}
