package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/ledger"
	"github.com/quillbooks/quillbooks/internal/platform/httpx"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// Handler exposes the chart of accounts JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the accounts HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}/name", h.Rename)
	r.Post("/{id}/deactivate", h.Deactivate)
}

type createAccountRequest struct {
	Code           string `json:"code" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Type           string `json:"type" validate:"required,oneof=asset liability equity revenue expense"`
	ParentID       *int64 `json:"parent_id"`
	OpeningBalance string `json:"opening_balance"`
}

type renameAccountRequest struct {
	Name string `json:"name" validate:"required"`
}

type accountResponse struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	NormalBalance  string `json:"normal_balance"`
	ParentID       *int64 `json:"parent_id,omitempty"`
	OpeningBalance string `json:"opening_balance"`
	IsActive       bool   `json:"is_active"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Code:           a.Code,
		Name:           a.Name,
		Type:           string(a.Type),
		NormalBalance:  string(a.NormalBalance),
		ParentID:       a.ParentID,
		OpeningBalance: a.OpeningBalance.String(),
		IsActive:       a.IsActive,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	opening := decimal.Zero
	if req.OpeningBalance != "" {
		var err error
		if opening, err = decimal.NewFromString(req.OpeningBalance); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid opening_balance")
			return
		}
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		CompanyID:      companyID,
		Code:           req.Code,
		Name:           req.Name,
		Type:           ledger.AccountType(req.Type),
		ParentID:       req.ParentID,
		OpeningBalance: opening,
	})
	if err != nil {
		h.respondError(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req renameAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Rename(r.Context(), companyID, id, req.Name)
	if err != nil {
		h.respondError(w, "rename account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	if err := h.service.Deactivate(r.Context(), companyID, id); err != nil {
		h.respondError(w, "deactivate account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	accounts, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.respondError(w, "list accounts", err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrCodeTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrCompanyRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
