package accounts

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

// Handler serves the account JSON API under /clients/{clientID}/accounts.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

type createAccountRequest struct {
	Code                    string     `json:"code" validate:"required,max=64"`
	Name                    string     `json:"name" validate:"required,max=255"`
	Type                    string     `json:"type" validate:"required"`
	Subtype                 string     `json:"subtype" validate:"max=128"`
	Description             string     `json:"description"`
	FSLIBucket              string     `json:"fsliBucket" validate:"max=128"`
	InternalReportingBucket string     `json:"internalReportingBucket" validate:"max=128"`
	Item                    string     `json:"item" validate:"max=128"`
	ParentID                *uuid.UUID `json:"parentId"`
}

type updateAccountRequest struct {
	Code                    *string    `json:"code" validate:"omitempty,max=64"`
	Name                    *string    `json:"name" validate:"omitempty,max=255"`
	Type                    *string    `json:"type"`
	Subtype                 *string    `json:"subtype" validate:"omitempty,max=128"`
	Description             *string    `json:"description"`
	FSLIBucket              *string    `json:"fsliBucket" validate:"omitempty,max=128"`
	InternalReportingBucket *string    `json:"internalReportingBucket" validate:"omitempty,max=128"`
	Item                    *string    `json:"item" validate:"omitempty,max=128"`
	ParentID                *uuid.UUID `json:"parentId"`
	ClearParent             bool       `json:"clearParent"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	var filter ListFilter
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "active must be a boolean")
			return
		}
		filter.Active = &active
	}
	accounts, err := h.service.ListAccounts(r.Context(), clientID, filter)
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		h.fail(w, "account tree", err)
		return
	}
	forest, err := h.service.GetTree(r.Context(), clientID)
	if err != nil {
		h.fail(w, "account tree", err)
		return
	}
	httpx.JSON(w, http.StatusOK, forest)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	clientID, id, err := h.ids(r)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	acct, err := h.service.GetAccount(r.Context(), clientID, id)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acct)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, "create account", err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, "create account", err)
		return
	}
	accountType, err := ParseAccountType(req.Type)
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	acct, err := h.service.CreateAccount(r.Context(), clientID, CreateInput{
		Code:                    req.Code,
		Name:                    req.Name,
		Type:                    accountType,
		Subtype:                 req.Subtype,
		Description:             req.Description,
		FSLIBucket:              req.FSLIBucket,
		InternalReportingBucket: req.InternalReportingBucket,
		Item:                    req.Item,
		ParentID:                req.ParentID,
		ActorID:                 internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acct)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	clientID, id, err := h.ids(r)
	if err != nil {
		h.fail(w, "update account", err)
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, "update account", err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, "update account", err)
		return
	}
	in := UpdateInput{
		Code:                    req.Code,
		Name:                    req.Name,
		Subtype:                 req.Subtype,
		Description:             req.Description,
		FSLIBucket:              req.FSLIBucket,
		InternalReportingBucket: req.InternalReportingBucket,
		Item:                    req.Item,
		ParentID:                req.ParentID,
		ClearParent:             req.ClearParent,
		ActorID:                 internalShared.ActorFromContext(r.Context()),
	}
	if req.Type != nil {
		t, err := ParseAccountType(*req.Type)
		if err != nil {
			h.fail(w, "update account", err)
			return
		}
		in.Type = &t
	}
	acct, err := h.service.UpdateAccount(r.Context(), clientID, id, in)
	if err != nil {
		h.fail(w, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acct)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	clientID, id, err := h.ids(r)
	if err != nil {
		h.fail(w, "deactivate account", err)
		return
	}
	acct, err := h.service.DeactivateAccount(r.Context(), clientID, id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "deactivate account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acct)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	clientID, id, err := h.ids(r)
	if err != nil {
		h.fail(w, "delete account", err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), clientID, id, internalShared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ids(r *http.Request) (int64, uuid.UUID, error) {
	clientID, err := httpx.Int64Param(r, "clientID")
	if err != nil {
		return 0, uuid.Nil, err
	}
	id, err := httpx.UUIDParam(r, "accountID")
	if err != nil {
		return 0, uuid.Nil, err
	}
	return clientID, id, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	shared.Fail(w, h.logger, op, err)
}
