package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/platform/db"
)

// Repository encapsulates DB operations for the ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListTransactions(ctx context.Context, companyID int64) ([]Transaction, error)
	GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error)
}

// TxRepository exposes operations available within one atomic unit.
type TxRepository interface {
	GetActiveAccounts(ctx context.Context, companyID int64, ids []int64) ([]Account, error)
	NextTransactionNumber(ctx context.Context, companyID int64) (int64, error)
	InsertTransaction(ctx context.Context, tr Transaction) (Transaction, error)
	InsertEntries(ctx context.Context, transactionID int64, entries []Entry) error
	GetTransactionWithEntries(ctx context.Context, companyID, id int64) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, companyID, id int64, status TransactionStatus) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// WithTx executes fn within a serializable transaction. The write path
// relies on this plus the sequence row lock to serialise numbering.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const transactionColumns = `id, company_id, transaction_number, date, posting_date, type, status, total_amount::text, memo, ai_generated, ai_metadata, created_by, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tr Transaction
	var total string
	err := row.Scan(&tr.ID, &tr.CompanyID, &tr.Number, &tr.Date, &tr.PostingDate, &tr.Type, &tr.Status, &total, &tr.Memo, &tr.AIGenerated, &tr.AIMetadata, &tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	tr.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return Transaction{}, err
	}
	return tr, nil
}

func (r *repository) ListTransactions(ctx context.Context, companyID int64) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE company_id=$1 ORDER BY transaction_number DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r *repository) GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error) {
	var tr Transaction
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		tr, err = tx.GetTransactionWithEntries(ctx, companyID, id)
		return err
	})
	return tr, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetActiveAccounts(ctx context.Context, companyID int64, ids []int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, code, name, type, normal_balance, parent_id, opening_balance::text, is_active, created_at, updated_at
FROM accounts WHERE company_id=$1 AND id = ANY($2) AND is_active`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := ScanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// NextTransactionNumber advances the per-company counter row. The upsert
// takes a row lock, so two concurrent posters for the same company are
// serialised here rather than racing a max(number) scan.
func (r *txRepository) NextTransactionNumber(ctx context.Context, companyID int64) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_sequences (company_id, last_number) VALUES ($1, 1)
ON CONFLICT (company_id) DO UPDATE SET last_number = ledger_sequences.last_number + 1
RETURNING last_number`, companyID).Scan(&next)
	return next, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, tr Transaction) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transactions (company_id, transaction_number, date, posting_date, type, status, total_amount, memo, ai_generated, ai_metadata, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		tr.CompanyID, tr.Number, tr.Date, tr.PostingDate, tr.Type, tr.Status, tr.TotalAmount.String(), tr.Memo, tr.AIGenerated, nullJSON(tr.AIMetadata), nullInt(tr.CreatedBy))
	if err := row.Scan(&tr.ID, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	return tr, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, transactionID int64, entries []Entry) error {
	for _, entry := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO transaction_entries (transaction_id, account_id, debit_amount, credit_amount, description, line_number, entity_type, entity_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			transactionID, entry.AccountID, entry.Debit.String(), entry.Credit.String(), entry.Description, entry.LineNumber, nullString(entry.EntityType), nullIntPtr(entry.EntityID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetTransactionWithEntries(ctx context.Context, companyID, id int64) (Transaction, error) {
	tr, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, transaction_id, account_id, debit_amount::text, credit_amount::text, description, line_number, entity_type, entity_id, created_at
FROM transaction_entries WHERE transaction_id=$1 ORDER BY line_number ASC`, id)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		var debit, credit string
		var entityType *string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &debit, &credit, &e.Description, &e.LineNumber, &entityType, &e.EntityID, &e.CreatedAt); err != nil {
			return Transaction{}, err
		}
		if e.Debit, err = decimal.NewFromString(debit); err != nil {
			return Transaction{}, err
		}
		if e.Credit, err = decimal.NewFromString(credit); err != nil {
			return Transaction{}, err
		}
		if entityType != nil {
			e.EntityType = *entityType
		}
		tr.Entries = append(tr.Entries, e)
	}
	return tr, rows.Err()
}

func (r *txRepository) UpdateTransactionStatus(ctx context.Context, companyID, id int64, status TransactionStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET status=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ScanAccount reads an account row in column order
// id, company_id, code, name, type, normal_balance, parent_id, opening_balance::text, is_active, created_at, updated_at.
func ScanAccount(row pgx.Row) (Account, error) {
	var a Account
	var opening string
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &opening, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	a.OpeningBalance, err = decimal.NewFromString(opening)
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullIntPtr(val *int64) any {
	if val == nil {
		return nil
	}
	if *val == 0 {
		return nil
	}
	return *val
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
