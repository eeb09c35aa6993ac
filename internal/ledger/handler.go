package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quillbooks/quillbooks/internal/observability"
	"github.com/quillbooks/quillbooks/internal/platform/httpx"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// Handler exposes the ledger JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), metrics: metrics}
}

// MountRoutes attaches transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/validate", h.Validate)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/void", h.Void)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	var req createTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput(companyID, actorFromRequest(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	created, err := h.service.CreateTransaction(r.Context(), input)
	if err != nil {
		h.respondLedgerError(w, r, "create transaction", err)
		return
	}
	if h.metrics != nil {
		h.metrics.TransactionPosted(string(created.Type))
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	lines, err := toLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Validate(r.Context(), companyID, lines)
	if err != nil {
		h.respondLedgerError(w, r, "validate entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	transactions, err := h.service.ListTransactions(r.Context(), companyID)
	if err != nil {
		h.respondLedgerError(w, r, "list transactions", err)
		return
	}
	out := make([]transactionResponse, 0, len(transactions))
	for _, tr := range transactions {
		out = append(out, toTransactionResponse(tr))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	tr, err := h.service.GetTransaction(r.Context(), companyID, id)
	if err != nil {
		h.respondLedgerError(w, r, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(tr))
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	voided, err := h.service.VoidTransaction(r.Context(), VoidInput{
		CompanyID:     companyID,
		TransactionID: id,
		ActorID:       actorFromRequest(r),
		Reason:        req.Reason,
	})
	if err != nil {
		h.respondLedgerError(w, r, "void transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(voided))
}

// respondLedgerError maps domain errors onto the error taxonomy: validation
// and reference errors are caller-fixable 400s carrying every problem found;
// everything else is logged and surfaced opaquely.
func (h *Handler) respondLedgerError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.JSON(w, http.StatusBadRequest, verr.Result)
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	case errors.Is(err, ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCompanyRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// actorFromRequest reads the user id resolved by the upstream auth layer.
func actorFromRequest(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return actor
}
