package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillbooks/quillbooks/internal/ledger"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Insert(ctx context.Context, account ledger.Account) (ledger.Account, error)
	UpdateName(ctx context.Context, companyID, id int64, name string) (ledger.Account, error)
	SetActive(ctx context.Context, companyID, id int64, active bool) error
	List(ctx context.Context, companyID int64) ([]ledger.Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed accounts repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, company_id, code, name, type, normal_balance, parent_id, opening_balance::text, is_active, created_at, updated_at`

func (r *repository) Insert(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, type, normal_balance, parent_id, opening_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+accountColumns,
		account.CompanyID, account.Code, account.Name, account.Type, account.NormalBalance, account.ParentID, account.OpeningBalance.String(), account.IsActive)
	inserted, err := ledger.ScanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ledger.Account{}, ErrCodeTaken
		}
		return ledger.Account{}, err
	}
	return inserted, nil
}

func (r *repository) UpdateName(ctx context.Context, companyID, id int64, name string) (ledger.Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts SET name=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2 RETURNING `+accountColumns, companyID, id, name)
	updated, err := ledger.ScanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Account{}, ErrAccountNotFound
		}
		return ledger.Account{}, err
	}
	return updated, nil
}

func (r *repository) SetActive(ctx context.Context, companyID, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, companyID int64) ([]ledger.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code ASC`, companyID)
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
