package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/shared"
)

// memStore is the shared state behind the in-memory repository. WithTx
// serialises callers with a mutex and stages writes so a failed unit
// leaves no trace, mirroring a rolled-back database transaction.
type memStore struct {
	mu           sync.Mutex
	accounts     map[int64]Account
	sequences    map[int64]int64
	transactions map[int64]Transaction
	nextID       int64

	seqFailures int
	entryErr    error
}

func newMemStore(accounts ...Account) *memStore {
	s := &memStore{
		accounts:     make(map[int64]Account),
		sequences:    make(map[int64]int64),
		transactions: make(map[int64]Transaction),
	}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

type memRepo struct {
	store *memStore
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx := &memTx{store: r.store}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (r *memRepo) ListTransactions(ctx context.Context, companyID int64) ([]Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []Transaction
	for _, tr := range r.store.transactions {
		if tr.CompanyID == companyID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (r *memRepo) GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tr, ok := r.store.transactions[id]
	if !ok || tr.CompanyID != companyID {
		return Transaction{}, ErrTransactionNotFound
	}
	return tr, nil
}

// memTx stages writes until apply.
type memTx struct {
	store     *memStore
	seqBumps  map[int64]int64
	staged    []Transaction
	statusSet map[int64]TransactionStatus
}

func (t *memTx) apply() {
	for companyID, bump := range t.seqBumps {
		t.store.sequences[companyID] += bump
	}
	for _, tr := range t.staged {
		t.store.transactions[tr.ID] = tr
	}
	for id, status := range t.statusSet {
		tr := t.store.transactions[id]
		tr.Status = status
		t.store.transactions[id] = tr
	}
}

func (t *memTx) GetActiveAccounts(ctx context.Context, companyID int64, ids []int64) ([]Account, error) {
	var out []Account
	for _, id := range ids {
		a, ok := t.store.accounts[id]
		if !ok || a.CompanyID != companyID || !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *memTx) NextTransactionNumber(ctx context.Context, companyID int64) (int64, error) {
	if t.store.seqFailures > 0 {
		t.store.seqFailures--
		return 0, &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	}
	if t.seqBumps == nil {
		t.seqBumps = make(map[int64]int64)
	}
	t.seqBumps[companyID]++
	return t.store.sequences[companyID] + t.seqBumps[companyID], nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr Transaction) (Transaction, error) {
	t.store.nextID++
	tr.ID = t.store.nextID
	tr.CreatedAt = time.Now()
	tr.UpdatedAt = tr.CreatedAt
	t.staged = append(t.staged, tr)
	return tr, nil
}

func (t *memTx) InsertEntries(ctx context.Context, transactionID int64, entries []Entry) error {
	if t.store.entryErr != nil {
		return t.store.entryErr
	}
	for i := range t.staged {
		if t.staged[i].ID == transactionID {
			t.staged[i].Entries = entries
		}
	}
	return nil
}

func (t *memTx) GetTransactionWithEntries(ctx context.Context, companyID, id int64) (Transaction, error) {
	tr, ok := t.store.transactions[id]
	if !ok || tr.CompanyID != companyID {
		return Transaction{}, ErrTransactionNotFound
	}
	return tr, nil
}

func (t *memTx) UpdateTransactionStatus(ctx context.Context, companyID, id int64, status TransactionStatus) error {
	tr, ok := t.store.transactions[id]
	if !ok || tr.CompanyID != companyID {
		return ErrTransactionNotFound
	}
	if t.statusSet == nil {
		t.statusSet = make(map[int64]TransactionStatus)
	}
	t.statusSet[id] = status
	return nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type memCache struct {
	mu    sync.Mutex
	bumps int
}

func (c *memCache) Bump(ctx context.Context, companyID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}

func testAccounts() []Account {
	return []Account{
		{ID: 1, CompanyID: 7, Code: "1000", Name: "Cash", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, IsActive: true},
		{ID: 2, CompanyID: 7, Code: "4000", Name: "Revenue", Type: AccountTypeRevenue, NormalBalance: NormalBalanceCredit, IsActive: true},
		{ID: 3, CompanyID: 7, Code: "2000", Name: "Payable", Type: AccountTypeLiability, NormalBalance: NormalBalanceCredit, IsActive: true},
		{ID: 9, CompanyID: 7, Code: "1090", Name: "Dormant", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, IsActive: false},
	}
}

func newTestService(store *memStore) (*Service, *memAudit, *memCache) {
	audit := &memAudit{}
	cache := &memCache{}
	svc := NewService(&memRepo{store: store}, audit, cache)
	return svc, audit, cache
}

func balancedInput() CreateInput {
	return CreateInput{
		CompanyID: 7,
		Date:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Memo:      "office supplies",
		CreatedBy: 11,
		Lines: []LineInput{
			{AccountID: 1, Debit: dec("150.00"), Description: "cash"},
			{AccountID: 2, Credit: dec("150.00"), Description: "revenue"},
		},
	}
}

func TestCreateTransactionPostsAndNumbers(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, audit, cache := newTestService(store)

	created, err := svc.CreateTransaction(context.Background(), balancedInput())
	require.NoError(t, err)

	assert.Equal(t, "000001", created.Number)
	assert.Equal(t, TransactionStatusPosted, created.Status)
	assert.Equal(t, TransactionTypeJournalEntry, created.Type)
	assert.True(t, created.TotalAmount.Equal(dec("150.00")))
	require.Len(t, created.Entries, 2)
	assert.Equal(t, 1, created.Entries[0].LineNumber)
	assert.Equal(t, 2, created.Entries[1].LineNumber)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "transaction.post", audit.logs[0].Action)
	assert.Equal(t, 1, cache.bumps)
}

func TestCreateTransactionSequentialNumbers(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	for i, want := range []string{"000001", "000002", "000003"} {
		created, err := svc.CreateTransaction(context.Background(), balancedInput())
		require.NoError(t, err, "create %d", i)
		assert.Equal(t, want, created.Number)
	}
}

func TestCreateTransactionConcurrentNumbersUnique(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	const posters = 10
	numbers := make(chan string, posters)
	var wg sync.WaitGroup
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := svc.CreateTransaction(context.Background(), balancedInput())
			if err != nil {
				numbers <- "error"
				return
			}
			numbers <- created.Number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for number := range numbers {
		require.NotEqual(t, "error", number)
		assert.False(t, seen[number], "duplicate number %s", number)
		seen[number] = true
	}
	assert.Len(t, seen, posters)
}

func TestCreateTransactionRejectsUnbalanced(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, audit, cache := newTestService(store)

	input := balancedInput()
	input.Lines[1].Credit = dec("149.99")
	_, err := svc.CreateTransaction(context.Background(), input)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, verr.Result.Valid)
	assert.Empty(t, store.transactions, "nothing may be persisted")
	assert.Empty(t, audit.logs)
	assert.Equal(t, 0, cache.bumps)
}

func TestCreateTransactionUnknownAccountRollsBack(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	input := balancedInput()
	input.Lines[0].AccountID = 404
	_, err := svc.CreateTransaction(context.Background(), input)

	require.ErrorIs(t, err, ErrAccountNotFound)
	assert.Empty(t, store.transactions)
	assert.Zero(t, store.sequences[7], "sequence must not advance on rollback")
}

func TestCreateTransactionInactiveAccountRejected(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	input := balancedInput()
	input.Lines[0].AccountID = 9
	_, err := svc.CreateTransaction(context.Background(), input)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateTransactionCrossCompanyAccountRejected(t *testing.T) {
	store := newMemStore(testAccounts()...)
	store.accounts[50] = Account{ID: 50, CompanyID: 8, Code: "1000", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, IsActive: true}
	svc, _, _ := newTestService(store)

	input := balancedInput()
	input.Lines[0].AccountID = 50
	_, err := svc.CreateTransaction(context.Background(), input)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateTransactionEntryFailureRollsBack(t *testing.T) {
	store := newMemStore(testAccounts()...)
	store.entryErr = errors.New("disk full")
	svc, audit, cache := newTestService(store)

	_, err := svc.CreateTransaction(context.Background(), balancedInput())
	require.Error(t, err)
	assert.Empty(t, store.transactions, "header must not survive a failed entry insert")
	assert.Zero(t, store.sequences[7])
	assert.Empty(t, audit.logs)
	assert.Equal(t, 0, cache.bumps)
}

func TestCreateTransactionRetriesSerializationConflict(t *testing.T) {
	store := newMemStore(testAccounts()...)
	store.seqFailures = 2
	svc, _, _ := newTestService(store)

	created, err := svc.CreateTransaction(context.Background(), balancedInput())
	require.NoError(t, err)
	assert.Equal(t, "000001", created.Number)
}

func TestCreateTransactionRetriesExhausted(t *testing.T) {
	store := newMemStore(testAccounts()...)
	store.seqFailures = 100
	svc, _, _ := newTestService(store)

	_, err := svc.CreateTransaction(context.Background(), balancedInput())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Empty(t, store.transactions)
}

func TestCreateTransactionRequiresCompany(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	input := balancedInput()
	input.CompanyID = 0
	_, err := svc.CreateTransaction(context.Background(), input)
	require.ErrorIs(t, err, ErrCompanyRequired)
}

func TestCreateTransactionKeepsMetadataVerbatim(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	meta := json.RawMessage(`{"suggestion_id":"abc-123","confidence":0.93}`)
	input := balancedInput()
	input.AIGenerated = true
	input.AIMetadata = meta
	input.Type = TransactionTypeAdjustment

	created, err := svc.CreateTransaction(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, created.AIGenerated)
	assert.JSONEq(t, string(meta), string(created.AIMetadata))
	assert.Equal(t, TransactionTypeAdjustment, created.Type)
}

func TestVoidTransaction(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, audit, cache := newTestService(store)

	created, err := svc.CreateTransaction(context.Background(), balancedInput())
	require.NoError(t, err)

	voided, err := svc.VoidTransaction(context.Background(), VoidInput{
		CompanyID:     7,
		TransactionID: created.ID,
		ActorID:       11,
		Reason:        "duplicate entry",
	})
	require.NoError(t, err)
	assert.Equal(t, TransactionStatusVoid, voided.Status)
	assert.Equal(t, TransactionStatusVoid, store.transactions[created.ID].Status)

	require.Len(t, audit.logs, 2)
	assert.Equal(t, "transaction.void", audit.logs[1].Action)
	assert.Equal(t, "duplicate entry", audit.logs[1].Meta["reason"])
	assert.Equal(t, 2, cache.bumps)
}

func TestVoidTransactionTwiceRejected(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	created, err := svc.CreateTransaction(context.Background(), balancedInput())
	require.NoError(t, err)

	_, err = svc.VoidTransaction(context.Background(), VoidInput{CompanyID: 7, TransactionID: created.ID})
	require.NoError(t, err)

	_, err = svc.VoidTransaction(context.Background(), VoidInput{CompanyID: 7, TransactionID: created.ID})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestVoidTransactionUnknownID(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	_, err := svc.VoidTransaction(context.Background(), VoidInput{CompanyID: 7, TransactionID: 999})
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestValidateAttachesSideWarnings(t *testing.T) {
	store := newMemStore(testAccounts()...)
	svc, _, _ := newTestService(store)

	result, err := svc.Validate(context.Background(), 7, []LineInput{
		{AccountID: 1, Credit: dec("25.00")},
		{AccountID: 2, Debit: dec("25.00")},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid, "contra entries are legal")
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, IssueAbnormalSide, result.Warnings[0].Code)
	assert.Equal(t, IssueAbnormalSide, result.Warnings[1].Code)
}
