package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quillbooks/quillbooks/internal/ledger"
)

// roundingTolerance is the self-check threshold, one minor unit of the
// reporting currency.
var roundingTolerance = decimal.NewFromFloat(0.01)

// aggregationFanout caps concurrent per-account aggregation queries.
const aggregationFanout = 8

// Balance is the signed aggregate for one account. The sign convention is
// debit-positive regardless of the account's normal side.
type Balance struct {
	AccountID   int64           `json:"account_id"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
	Balance     decimal.Decimal `json:"balance"`
}

// TrialBalanceRow is one account's line in the trial balance report.
type TrialBalanceRow struct {
	AccountID      int64                `json:"account_id"`
	Code           string               `json:"code"`
	Name           string               `json:"name"`
	Type           ledger.AccountType   `json:"type"`
	NormalBalance  ledger.NormalBalance `json:"normal_balance"`
	Balance        decimal.Decimal      `json:"balance"`
	DisplayBalance decimal.Decimal      `json:"display_balance"`
}

// TrialBalanceCheck is the result of the consistency self-check.
type TrialBalanceCheck struct {
	IsBalanced  bool            `json:"is_balanced"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
}

// Service derives balances by aggregating posted entries on demand.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService constructs the balance engine.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// AccountBalance aggregates the account's posted entries, optionally up to
// an as-of posting date. Reads are idempotent: no writes, no caching of
// partial state.
func (s *Service) AccountBalance(ctx context.Context, companyID, accountID int64, asOf *time.Time) (Balance, error) {
	if companyID == 0 {
		return Balance{}, ledger.ErrCompanyRequired
	}
	debit, credit, err := s.repo.AccountTotals(ctx, companyID, accountID, asOf)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		AccountID:   accountID,
		DebitTotal:  debit,
		CreditTotal: credit,
		Balance:     debit.Sub(credit),
	}, nil
}

// TrialBalance computes one row per active account, ordered by account code.
// Results are served from the versioned cache when present; the ledger bumps
// the version on every post/void, so reads never trail writes.
func (s *Service) TrialBalance(ctx context.Context, companyID int64, asOf *time.Time) ([]TrialBalanceRow, error) {
	if companyID == 0 {
		return nil, ledger.ErrCompanyRequired
	}
	keyParts := []string{"trial-balance"}
	if asOf != nil {
		keyParts = append(keyParts, asOf.Format("2006-01-02"))
	}
	var rows []TrialBalanceRow
	err := s.cache.FetchJSON(ctx, companyID, keyParts, &rows, func(ctx context.Context) (any, error) {
		return s.buildTrialBalance(ctx, companyID, asOf)
	})
	return rows, err
}

func (s *Service) buildTrialBalance(ctx context.Context, companyID int64, asOf *time.Time) ([]TrialBalanceRow, error) {
	accounts, err := s.repo.ListActiveAccounts(ctx, companyID)
	if err != nil {
		return nil, err
	}

	rows := make([]TrialBalanceRow, len(accounts))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(aggregationFanout)
	for i, account := range accounts {
		i, account := i, account
		group.Go(func() error {
			bal, err := s.AccountBalance(ctx, companyID, account.ID, asOf)
			if err != nil {
				return fmt.Errorf("account %s: %w", account.Code, err)
			}
			rows[i] = TrialBalanceRow{
				AccountID:      account.ID,
				Code:           account.Code,
				Name:           account.Name,
				Type:           account.Type,
				NormalBalance:  account.NormalBalance,
				Balance:        bal.Balance,
				DisplayBalance: displayBalance(account.NormalBalance, bal.Balance),
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// displayBalance floors the signed balance to the account's normal side,
// producing the conventional two-column presentation.
func displayBalance(side ledger.NormalBalance, balance decimal.Decimal) decimal.Decimal {
	if side == ledger.NormalBalanceCredit {
		balance = balance.Neg()
	}
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// ValidateTrialBalance sums display balances per normal side. This is a
// consistency self-check for detecting data corruption or a ledger bug,
// not a gate end users hit.
func ValidateTrialBalance(rows []TrialBalanceRow) TrialBalanceCheck {
	debitTotal := decimal.Zero
	creditTotal := decimal.Zero
	for _, row := range rows {
		if row.NormalBalance == ledger.NormalBalanceDebit {
			debitTotal = debitTotal.Add(row.DisplayBalance)
		} else {
			creditTotal = creditTotal.Add(row.DisplayBalance)
		}
	}
	diff := debitTotal.Sub(creditTotal).Abs()
	return TrialBalanceCheck{
		IsBalanced:  diff.LessThan(roundingTolerance),
		DebitTotal:  debitTotal,
		CreditTotal: creditTotal,
	}
}
