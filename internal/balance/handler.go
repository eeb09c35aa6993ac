package balance

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillbooks/quillbooks/internal/ledger"
	"github.com/quillbooks/quillbooks/internal/platform/httpx"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// Handler exposes read-only balance endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the balance HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches balance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{accountID}", h.AccountBalance)
	r.Get("/trial-balance", h.TrialBalance)
}

func (h *Handler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	bal, err := h.service.AccountBalance(r.Context(), companyID, accountID, asOf)
	if err != nil {
		h.respondError(w, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rows, err := h.service.TrialBalance(r.Context(), companyID, asOf)
	if err != nil {
		h.respondError(w, "trial balance", err)
		return
	}
	check := ValidateTrialBalance(rows)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows":  rows,
		"check": check,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ledger.ErrCompanyRequired) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func asOfParam(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return nil, nil
	}
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errors.New("invalid as_of date, expected YYYY-MM-DD")
	}
	return &asOf, nil
}
