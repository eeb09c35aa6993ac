package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// NormalBalance is the side on which an account conventionally increases.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "debit"
	NormalBalanceCredit NormalBalance = "credit"
)

// NormalBalanceFor derives the normal balance side from the account type.
// The side is fixed at account creation and never changes independently.
func NormalBalanceFor(t AccountType) (NormalBalance, error) {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit, nil
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return NormalBalanceCredit, nil
	default:
		return "", fmt.Errorf("ledger: unknown account type %q", t)
	}
}

// TransactionType enumerates economic event kinds.
type TransactionType string

const (
	TransactionTypeJournalEntry TransactionType = "journal_entry"
	TransactionTypeInvoice      TransactionType = "invoice"
	TransactionTypePayment      TransactionType = "payment"
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeTransfer     TransactionType = "transfer"
	TransactionTypeAdjustment   TransactionType = "adjustment"
)

// TransactionStatus enumerates transaction lifecycle values.
type TransactionStatus string

const (
	TransactionStatusDraft   TransactionStatus = "draft"
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusPosted  TransactionStatus = "posted"
	TransactionStatusVoid    TransactionStatus = "void"
)

// CanTransition reports whether a status change is legal.
// The create path auto-posts, leaving draft and pending modeled but idle;
// an approval gate can be inserted ahead of posting without schema changes.
func CanTransition(from, to TransactionStatus) bool {
	switch from {
	case TransactionStatusDraft:
		return to == TransactionStatusPending
	case TransactionStatusPending:
		return to == TransactionStatusPosted
	case TransactionStatusPosted:
		return to == TransactionStatusVoid
	default:
		return false
	}
}

// TransactionNumberWidth is the zero-padded width of transaction numbers.
const TransactionNumberWidth = 6

// FormatTransactionNumber renders a sequence value as the stored number string.
func FormatTransactionNumber(n int64) string {
	return fmt.Sprintf("%0*d", TransactionNumberWidth, n)
}

// Account models a chart of accounts node.
type Account struct {
	ID             int64
	CompanyID      int64
	Code           string
	Name           string
	Type           AccountType
	NormalBalance  NormalBalance
	ParentID       *int64
	OpeningBalance decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an immutable (once posted) economic event.
type Transaction struct {
	ID          int64
	CompanyID   int64
	Number      string
	Date        time.Time
	PostingDate time.Time
	Type        TransactionType
	Status      TransactionStatus
	TotalAmount decimal.Decimal
	Memo        string
	AIGenerated bool
	AIMetadata  json.RawMessage
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Entries     []Entry
}

// Entry is one posting line within a transaction. Exactly one of
// Debit/Credit is strictly positive; the other is exactly zero.
type Entry struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Description   string
	LineNumber    int
	EntityType    string
	EntityID      *int64
	CreatedAt     time.Time
}

var (
	// ErrCompanyRequired indicates the call carried no tenant scope.
	ErrCompanyRequired = errors.New("ledger: company id required")
	// ErrAccountNotFound indicates one or more accounts are unknown, inactive,
	// or belong to another company.
	ErrAccountNotFound = errors.New("ledger: one or more accounts not found or inactive")
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrInvalidStatus indicates an illegal status transition.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrRetriesExhausted indicates repeated commit conflicts.
	ErrRetriesExhausted = errors.New("ledger: transaction numbering conflict, retries exhausted")
)
