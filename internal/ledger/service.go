package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates derived balance data after a successful write.
// Invalidation is synchronous with the commit so readers in the same
// company observe their own writes.
type CachePort interface {
	Bump(ctx context.Context, companyID int64) error
}

// maxCommitRetries bounds retries of the atomic step on serialization
// conflicts. Repeated conflicts indicate a systemic problem, not
// transient contention.
const maxCommitRetries = 3

// CreateInput groups fields required to post a transaction.
type CreateInput struct {
	CompanyID   int64
	Date        time.Time
	PostingDate *time.Time
	Type        TransactionType
	Memo        string
	CreatedBy   int64
	AIGenerated bool
	AIMetadata  json.RawMessage
	Lines       []LineInput
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	CompanyID     int64
	TransactionID int64
	ActorID       int64
	Reason        string
}

// Service is the only component authorised to create transactions and
// entries. It guarantees atomicity and per-company sequential numbering.
type Service struct {
	repo  Repository
	audit AuditPort
	cache CachePort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Validate runs the entry validator and, when the referenced accounts can be
// loaded, attaches normal-balance-side warnings. It never persists anything.
func (s *Service) Validate(ctx context.Context, companyID int64, lines []LineInput) (ValidationResult, error) {
	if companyID == 0 {
		return ValidationResult{}, ErrCompanyRequired
	}
	result := ValidateEntries(lines)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := tx.GetActiveAccounts(ctx, companyID, accountIDs(lines))
		if err != nil {
			return err
		}
		result.Warnings = append(result.Warnings, sideWarnings(accounts, lines)...)
		return nil
	})
	if err != nil {
		return ValidationResult{}, err
	}
	return result, nil
}

// CreateTransaction validates the candidate, then inside one atomic unit
// verifies the accounts, assigns the next per-company number, and inserts
// the header plus one entry row per line. On any failure inside the unit
// the whole operation rolls back.
func (s *Service) CreateTransaction(ctx context.Context, input CreateInput) (Transaction, error) {
	if input.CompanyID == 0 {
		return Transaction{}, ErrCompanyRequired
	}
	if result := ValidateEntries(input.Lines); !result.Valid {
		return Transaction{}, &ValidationError{Result: result}
	}

	txType := input.Type
	if txType == "" {
		txType = TransactionTypeJournalEntry
	}
	postingDate := input.Date
	if input.PostingDate != nil {
		postingDate = *input.PostingDate
	}

	var created Transaction
	var attemptErr error
	for attempt := 0; attempt <= maxCommitRetries; attempt++ {
		created, attemptErr = s.commit(ctx, input, txType, postingDate)
		if !isSerializationFailure(attemptErr) {
			break
		}
	}
	if isSerializationFailure(attemptErr) {
		return Transaction{}, fmt.Errorf("%w: %v", ErrRetriesExhausted, attemptErr)
	}
	if attemptErr != nil {
		return Transaction{}, attemptErr
	}

	s.recordAudit(ctx, input.CompanyID, input.CreatedBy, "transaction.post", created.ID, map[string]any{
		"number":       created.Number,
		"type":         string(created.Type),
		"total_amount": created.TotalAmount.String(),
		"ai_generated": created.AIGenerated,
	})
	s.bumpCache(ctx, input.CompanyID)
	return created, nil
}

func (s *Service) commit(ctx context.Context, input CreateInput, txType TransactionType, postingDate time.Time) (Transaction, error) {
	var created Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids := accountIDs(input.Lines)
		accounts, err := tx.GetActiveAccounts(ctx, input.CompanyID, ids)
		if err != nil {
			return err
		}
		if len(accounts) != len(ids) {
			return ErrAccountNotFound
		}

		seq, err := tx.NextTransactionNumber(ctx, input.CompanyID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range input.Lines {
			total = total.Add(line.Debit)
		}

		header := Transaction{
			CompanyID:   input.CompanyID,
			Number:      FormatTransactionNumber(seq),
			Date:        input.Date,
			PostingDate: postingDate,
			Type:        txType,
			Status:      TransactionStatusPosted,
			TotalAmount: total,
			Memo:        input.Memo,
			AIGenerated: input.AIGenerated,
			AIMetadata:  input.AIMetadata,
			CreatedBy:   input.CreatedBy,
		}
		inserted, err := tx.InsertTransaction(ctx, header)
		if err != nil {
			return err
		}

		entries := toEntries(inserted.ID, input.Lines, s.now())
		if err := tx.InsertEntries(ctx, inserted.ID, entries); err != nil {
			return err
		}
		inserted.Entries = entries
		created = inserted
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return created, nil
}

// VoidTransaction flips a posted transaction to void. Entries are not
// touched; voided transactions simply stop contributing to balances.
func (s *Service) VoidTransaction(ctx context.Context, input VoidInput) (Transaction, error) {
	if input.CompanyID == 0 {
		return Transaction{}, ErrCompanyRequired
	}
	if input.TransactionID == 0 {
		return Transaction{}, errors.New("ledger: transaction id required")
	}
	var voided Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransactionWithEntries(ctx, input.CompanyID, input.TransactionID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, TransactionStatusVoid) {
			return ErrInvalidStatus
		}
		if err := tx.UpdateTransactionStatus(ctx, input.CompanyID, current.ID, TransactionStatusVoid); err != nil {
			return err
		}
		current.Status = TransactionStatusVoid
		voided = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	s.recordAudit(ctx, input.CompanyID, input.ActorID, "transaction.void", voided.ID, map[string]any{
		"number": voided.Number,
		"reason": input.Reason,
	})
	s.bumpCache(ctx, input.CompanyID)
	return voided, nil
}

// ListTransactions returns the company's transactions, newest number first.
func (s *Service) ListTransactions(ctx context.Context, companyID int64) ([]Transaction, error) {
	if companyID == 0 {
		return nil, ErrCompanyRequired
	}
	return s.repo.ListTransactions(ctx, companyID)
}

// GetTransaction returns one transaction with its entries.
func (s *Service) GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error) {
	if companyID == 0 {
		return Transaction{}, ErrCompanyRequired
	}
	return s.repo.GetTransaction(ctx, companyID, id)
}

func (s *Service) recordAudit(ctx context.Context, companyID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "transaction",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	})
}

func (s *Service) bumpCache(ctx context.Context, companyID int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Bump(ctx, companyID)
}

func accountIDs(lines []LineInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.AccountID == 0 {
			continue
		}
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}

func sideWarnings(accounts []Account, lines []LineInput) []ValidationIssue {
	byID := make(map[int64]Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	var warnings []ValidationIssue
	for idx, line := range lines {
		account, ok := byID[line.AccountID]
		if !ok {
			continue
		}
		if issue := ValidateAccountSide(account, idx+1, line); issue != nil {
			warnings = append(warnings, *issue)
		}
	}
	return warnings
}

func toEntries(transactionID int64, lines []LineInput, ts time.Time) []Entry {
	out := make([]Entry, 0, len(lines))
	for idx, line := range lines {
		out = append(out, Entry{
			TransactionID: transactionID,
			AccountID:     line.AccountID,
			Debit:         line.Debit,
			Credit:        line.Credit,
			Description:   line.Description,
			LineNumber:    idx + 1,
			EntityType:    line.EntityType,
			EntityID:      line.EntityID,
			CreatedAt:     ts,
		})
	}
	return out
}

// isSerializationFailure reports whether err is a postgres serialization or
// deadlock failure, the one class of commit error that is safe to retry
// from number assignment onward.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
