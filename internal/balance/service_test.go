package balance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// memEntry is one posted-or-voided entry line held by the fake repository.
type memEntry struct {
	companyID   int64
	accountID   int64
	debit       decimal.Decimal
	credit      decimal.Decimal
	postingDate time.Time
	voided      bool
}

type memRepo struct {
	accounts []ledger.Account
	entries  []memEntry
}

// AccountTotals mirrors the SQL aggregation: only posted entries count,
// optionally bounded by posting date.
func (r *memRepo) AccountTotals(ctx context.Context, companyID, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, e := range r.entries {
		if e.companyID != companyID || e.accountID != accountID || e.voided {
			continue
		}
		if asOf != nil && e.postingDate.After(*asOf) {
			continue
		}
		debit = debit.Add(e.debit)
		credit = credit.Add(e.credit)
	}
	return debit, credit, nil
}

func (r *memRepo) ListActiveAccounts(ctx context.Context, companyID int64) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, a := range r.accounts {
		if a.CompanyID == companyID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range r.accounts {
		if !seen[a.CompanyID] {
			seen[a.CompanyID] = true
			ids = append(ids, a.CompanyID)
		}
	}
	return ids, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixtureRepo() *memRepo {
	return &memRepo{
		accounts: []ledger.Account{
			{ID: 1, CompanyID: 7, Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, NormalBalance: ledger.NormalBalanceDebit, IsActive: true},
			{ID: 2, CompanyID: 7, Code: "2000", Name: "Payable", Type: ledger.AccountTypeLiability, NormalBalance: ledger.NormalBalanceCredit, IsActive: true},
			{ID: 3, CompanyID: 7, Code: "4000", Name: "Revenue", Type: ledger.AccountTypeRevenue, NormalBalance: ledger.NormalBalanceCredit, IsActive: true},
		},
		entries: []memEntry{
			{companyID: 7, accountID: 1, debit: dec("500.00"), postingDate: date(2026, 1, 10)},
			{companyID: 7, accountID: 3, credit: dec("500.00"), postingDate: date(2026, 1, 10)},
			{companyID: 7, accountID: 1, debit: dec("120.00"), postingDate: date(2026, 2, 5)},
			{companyID: 7, accountID: 2, credit: dec("120.00"), postingDate: date(2026, 2, 5)},
		},
	}
}

func newTestService(repo Repository) *Service {
	return NewService(repo, NewCache(nil, 0))
}

func TestAccountBalanceSigned(t *testing.T) {
	svc := newTestService(fixtureRepo())

	cash, err := svc.AccountBalance(context.Background(), 7, 1, nil)
	require.NoError(t, err)
	assert.True(t, cash.Balance.Equal(dec("620.00")), "got %s", cash.Balance)

	revenue, err := svc.AccountBalance(context.Background(), 7, 3, nil)
	require.NoError(t, err)
	assert.True(t, revenue.Balance.Equal(dec("-500.00")), "credit-normal accounts carry negative signed balances, got %s", revenue.Balance)
}

func TestAccountBalanceAsOf(t *testing.T) {
	svc := newTestService(fixtureRepo())

	asOf := date(2026, 1, 31)
	cash, err := svc.AccountBalance(context.Background(), 7, 1, &asOf)
	require.NoError(t, err)
	assert.True(t, cash.Balance.Equal(dec("500.00")), "got %s", cash.Balance)
}

func TestAccountBalanceIdempotentReads(t *testing.T) {
	svc := newTestService(fixtureRepo())

	first, err := svc.AccountBalance(context.Background(), 7, 1, nil)
	require.NoError(t, err)
	second, err := svc.AccountBalance(context.Background(), 7, 1, nil)
	require.NoError(t, err)
	assert.True(t, first.Balance.Equal(second.Balance))
}

func TestAccountBalanceRequiresCompany(t *testing.T) {
	svc := newTestService(fixtureRepo())
	_, err := svc.AccountBalance(context.Background(), 0, 1, nil)
	require.ErrorIs(t, err, ledger.ErrCompanyRequired)
}

func TestTrialBalanceRowsAndDisplay(t *testing.T) {
	svc := newTestService(fixtureRepo())

	rows, err := svc.TrialBalance(context.Background(), 7, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byCode := make(map[string]TrialBalanceRow)
	for _, row := range rows {
		byCode[row.Code] = row
	}

	assert.True(t, byCode["1000"].DisplayBalance.Equal(dec("620.00")))
	assert.True(t, byCode["2000"].DisplayBalance.Equal(dec("120.00")), "credit balances display positive on the credit side")
	assert.True(t, byCode["4000"].DisplayBalance.Equal(dec("500.00")))
	assert.True(t, byCode["4000"].Balance.Equal(dec("-500.00")), "signed balance stays debit-positive")
}

func TestTrialBalanceFloorsAbnormalBalances(t *testing.T) {
	repo := fixtureRepo()
	// Push cash negative: more credits than debits on a debit-normal account.
	repo.entries = append(repo.entries,
		memEntry{companyID: 7, accountID: 1, credit: dec("1000.00"), postingDate: date(2026, 3, 1)},
		memEntry{companyID: 7, accountID: 2, debit: dec("1000.00"), postingDate: date(2026, 3, 1)},
	)
	svc := newTestService(repo)

	rows, err := svc.TrialBalance(context.Background(), 7, nil)
	require.NoError(t, err)

	byCode := make(map[string]TrialBalanceRow)
	for _, row := range rows {
		byCode[row.Code] = row
	}
	assert.True(t, byCode["1000"].DisplayBalance.IsZero(), "abnormal side floors to zero for display")
	assert.True(t, byCode["1000"].Balance.Equal(dec("-380.00")), "signed balance keeps the true value")
}

func TestTrialBalanceExcludesVoided(t *testing.T) {
	repo := fixtureRepo()
	for i := range repo.entries {
		if repo.entries[i].postingDate.Equal(date(2026, 2, 5)) {
			repo.entries[i].voided = true
		}
	}
	svc := newTestService(repo)

	rows, err := svc.TrialBalance(context.Background(), 7, nil)
	require.NoError(t, err)

	byCode := make(map[string]TrialBalanceRow)
	for _, row := range rows {
		byCode[row.Code] = row
	}
	assert.True(t, byCode["1000"].Balance.Equal(dec("500.00")), "voided transactions contribute nothing")
	assert.True(t, byCode["2000"].Balance.IsZero())
}

func TestTrialBalanceRequiresCompany(t *testing.T) {
	svc := newTestService(fixtureRepo())
	_, err := svc.TrialBalance(context.Background(), 0, nil)
	require.ErrorIs(t, err, ledger.ErrCompanyRequired)
}

func TestValidateTrialBalance(t *testing.T) {
	svc := newTestService(fixtureRepo())

	rows, err := svc.TrialBalance(context.Background(), 7, nil)
	require.NoError(t, err)

	check := ValidateTrialBalance(rows)
	assert.True(t, check.IsBalanced)
	assert.True(t, check.DebitTotal.Equal(dec("620.00")))
	assert.True(t, check.CreditTotal.Equal(dec("620.00")))
}

func TestValidateTrialBalanceDetectsImbalance(t *testing.T) {
	rows := []TrialBalanceRow{
		{NormalBalance: ledger.NormalBalanceDebit, DisplayBalance: dec("100.00")},
		{NormalBalance: ledger.NormalBalanceCredit, DisplayBalance: dec("99.97")},
	}
	check := ValidateTrialBalance(rows)
	assert.False(t, check.IsBalanced)
}

func TestValidateTrialBalanceToleratesRounding(t *testing.T) {
	rows := []TrialBalanceRow{
		{NormalBalance: ledger.NormalBalanceDebit, DisplayBalance: dec("100.000")},
		{NormalBalance: ledger.NormalBalanceCredit, DisplayBalance: dec("99.995")},
	}
	check := ValidateTrialBalance(rows)
	assert.True(t, check.IsBalanced, "sub-cent drift is within tolerance")
}
