package suggest

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/ledger"
	"github.com/quillbooks/quillbooks/internal/platform/httpx"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// Handler exposes the suggestion intake endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the suggestion HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches suggestion routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.Preview)
	r.Post("/apply", h.Apply)
}

type suggestionLineRequest struct {
	AccountID   int64  `json:"account_id" validate:"required,gt=0"`
	Debit       string `json:"debit_amount"`
	Credit      string `json:"credit_amount"`
	Description string `json:"description"`
}

type suggestionRequest struct {
	SuggestionID string                  `json:"suggestion_id"`
	Action       string                  `json:"action" validate:"required"`
	Date         string                  `json:"date" validate:"required"`
	Memo         string                  `json:"memo"`
	Model        string                  `json:"model"`
	Confidence   float64                 `json:"confidence"`
	Lines        []suggestionLineRequest `json:"lines" validate:"required,dive"`
}

func (h *Handler) decode(r *http.Request) (Suggestion, error) {
	var req suggestionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Suggestion{}, errors.New("malformed JSON body")
	}
	if err := h.validate.Struct(req); err != nil {
		return Suggestion{}, err
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return Suggestion{}, errors.New("invalid date, expected YYYY-MM-DD")
	}
	id := uuid.New()
	if req.SuggestionID != "" {
		if id, err = uuid.Parse(req.SuggestionID); err != nil {
			return Suggestion{}, errors.New("invalid suggestion_id")
		}
	}
	lines := make([]ledger.LineInput, 0, len(req.Lines))
	for idx, lr := range req.Lines {
		debit, err := parseAmount(lr.Debit)
		if err != nil {
			return Suggestion{}, errors.New("line " + strconv.Itoa(idx+1) + ": invalid debit_amount")
		}
		credit, err := parseAmount(lr.Credit)
		if err != nil {
			return Suggestion{}, errors.New("line " + strconv.Itoa(idx+1) + ": invalid credit_amount")
		}
		lines = append(lines, ledger.LineInput{
			AccountID:   lr.AccountID,
			Debit:       debit,
			Credit:      credit,
			Description: lr.Description,
		})
	}
	return Suggestion{
		ID:         id,
		Action:     Action(req.Action),
		Date:       date,
		Memo:       req.Memo,
		Model:      req.Model,
		Confidence: req.Confidence,
		Lines:      lines,
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	sug, err := h.decode(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	sug.CompanyID = companyID
	result, err := h.service.Preview(r.Context(), sug)
	if err != nil {
		h.respondError(w, "preview suggestion", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrCompanyRequired.Error())
		return
	}
	sug, err := h.decode(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	sug.CompanyID = companyID
	actorID, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	created, err := h.service.Apply(r.Context(), sug, actorID)
	if err != nil {
		h.respondError(w, "apply suggestion", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"transaction_id":     created.ID,
		"transaction_number": created.Number,
		"status":             string(created.Status),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.JSON(w, http.StatusBadRequest, verr.Result)
	case errors.Is(err, ErrUnknownAction):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
