// Package suggest accepts machine-generated bookkeeping suggestions and
// funnels them through the exact same validation and posting path as
// human-entered transactions. The producer holds no special privilege.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/quillbooks/internal/ledger"
)

// Action is the closed set of operations a suggestion may request. Dispatch
// is an explicit switch so the set of effects stays statically known.
type Action string

const (
	// ActionDraftTransaction proposes a complete candidate transaction.
	ActionDraftTransaction Action = "draft_transaction"
	// ActionCategorize proposes entries re-categorising an existing event.
	ActionCategorize Action = "categorize"
)

// ErrUnknownAction indicates a suggestion outside the supported action set.
var ErrUnknownAction = errors.New("suggest: unknown action")

// Suggestion is the producer-facing candidate shape. Lines match the entry
// validator's input exactly.
type Suggestion struct {
	ID         uuid.UUID
	CompanyID  int64
	Action     Action
	Date       time.Time
	Memo       string
	Model      string
	Confidence float64
	Lines      []ledger.LineInput
}

// Ledger is the slice of the ledger service the intake needs.
type Ledger interface {
	Validate(ctx context.Context, companyID int64, lines []ledger.LineInput) (ledger.ValidationResult, error)
	CreateTransaction(ctx context.Context, input ledger.CreateInput) (ledger.Transaction, error)
}

// Service gates and applies suggestions.
type Service struct {
	ledger Ledger
	logger *slog.Logger
}

// NewService constructs the suggestion intake.
func NewService(ledger Ledger, logger *slog.Logger) *Service {
	return &Service{ledger: ledger, logger: logger}
}

// Preview runs the validator only, for showing a suggestion to a reviewer
// before anything is persisted.
func (s *Service) Preview(ctx context.Context, sug Suggestion) (ledger.ValidationResult, error) {
	if err := checkAction(sug.Action); err != nil {
		return ledger.ValidationResult{}, err
	}
	return s.ledger.Validate(ctx, sug.CompanyID, sug.Lines)
}

// Apply posts the suggestion through the standard create path, stamping
// provenance metadata the ledger persists verbatim and never interprets.
func (s *Service) Apply(ctx context.Context, sug Suggestion, actorID int64) (ledger.Transaction, error) {
	if err := checkAction(sug.Action); err != nil {
		return ledger.Transaction{}, err
	}

	var txType ledger.TransactionType
	switch sug.Action {
	case ActionDraftTransaction:
		txType = ledger.TransactionTypeJournalEntry
	case ActionCategorize:
		txType = ledger.TransactionTypeAdjustment
	}

	meta, err := json.Marshal(map[string]any{
		"suggestion_id": sug.ID.String(),
		"model":         sug.Model,
		"confidence":    sug.Confidence,
		"action":        string(sug.Action),
	})
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("suggest: encode provenance: %w", err)
	}

	created, err := s.ledger.CreateTransaction(ctx, ledger.CreateInput{
		CompanyID:   sug.CompanyID,
		Date:        sug.Date,
		Type:        txType,
		Memo:        sug.Memo,
		CreatedBy:   actorID,
		AIGenerated: true,
		AIMetadata:  meta,
		Lines:       sug.Lines,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	if s.logger != nil {
		s.logger.Info("suggestion applied",
			slog.String("suggestion_id", sug.ID.String()),
			slog.String("number", created.Number),
			slog.String("model", sug.Model))
	}
	return created, nil
}

func checkAction(action Action) error {
	switch action {
	case ActionDraftTransaction, ActionCategorize:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
