package balance

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/ledger"
)

// Repository reads aggregated entry data. It never mutates anything.
type Repository interface {
	AccountTotals(ctx context.Context, companyID, accountID int64, asOf *time.Time) (debit, credit decimal.Decimal, err error)
	ListActiveAccounts(ctx context.Context, companyID int64) ([]ledger.Account, error)
	ListCompanyIDs(ctx context.Context) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed balance repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// AccountTotals sums debit and credit amounts across entries of posted
// transactions only; voided transactions never contribute.
func (r *repository) AccountTotals(ctx context.Context, companyID, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(e.debit_amount),0)::text, COALESCE(SUM(e.credit_amount),0)::text
FROM transaction_entries e
JOIN transactions t ON t.id = e.transaction_id
WHERE t.company_id=$1 AND e.account_id=$2 AND t.status='posted'`
	args := []any{companyID, accountID}
	if asOf != nil {
		query += ` AND t.posting_date <= $3`
		args = append(args, *asOf)
	}
	var debitRaw, creditRaw string
	if err := r.db.QueryRow(ctx, query, args...).Scan(&debitRaw, &creditRaw); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	debit, err := decimal.NewFromString(debitRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	credit, err := decimal.NewFromString(creditRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

func (r *repository) ListActiveAccounts(ctx context.Context, companyID int64) ([]ledger.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, company_id, code, name, type, normal_balance, parent_id, opening_balance::text, is_active, created_at, updated_at
FROM accounts WHERE company_id=$1 AND is_active ORDER BY code ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []ledger.Account
	for rows.Next() {
		a, err := ledger.ScanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListCompanyIDs returns every company with at least one account; the
// integrity worker iterates these.
func (r *repository) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT company_id FROM accounts ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
