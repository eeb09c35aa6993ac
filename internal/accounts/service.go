// Package accounts manages the chart of accounts. Accounts referenced by
// any ledger entry are soft-deactivated, never hard-deleted.
package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/ledger"
)

var (
	// ErrCodeTaken indicates the per-company account code is already used.
	ErrCodeTaken = errors.New("accounts: code already in use for this company")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounts: account not found")
)

// CreateInput groups fields for a new account. The normal balance side is
// derived from the type here and is immutable afterwards.
type CreateInput struct {
	CompanyID      int64
	Code           string
	Name           string
	Type           ledger.AccountType
	ParentID       *int64
	OpeningBalance decimal.Decimal
}

// Service coordinates chart of accounts operations.
type Service struct {
	repo Repository
}

// NewService constructs the accounts service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create inserts a new account with its derived normal balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Account, error) {
	if input.CompanyID == 0 {
		return ledger.Account{}, ledger.ErrCompanyRequired
	}
	input.Code = strings.TrimSpace(input.Code)
	if input.Code == "" {
		return ledger.Account{}, errors.New("accounts: code required")
	}
	if input.Name == "" {
		return ledger.Account{}, errors.New("accounts: name required")
	}
	side, err := ledger.NormalBalanceFor(input.Type)
	if err != nil {
		return ledger.Account{}, err
	}
	account := ledger.Account{
		CompanyID:      input.CompanyID,
		Code:           input.Code,
		Name:           input.Name,
		Type:           input.Type,
		NormalBalance:  side,
		ParentID:       input.ParentID,
		OpeningBalance: input.OpeningBalance,
		IsActive:       true,
	}
	return s.repo.Insert(ctx, account)
}

// Rename updates the display name only; type, side, and code stay fixed.
func (s *Service) Rename(ctx context.Context, companyID, id int64, name string) (ledger.Account, error) {
	if companyID == 0 {
		return ledger.Account{}, ledger.ErrCompanyRequired
	}
	if name == "" {
		return ledger.Account{}, errors.New("accounts: name required")
	}
	return s.repo.UpdateName(ctx, companyID, id, name)
}

// Deactivate soft-disables the account; history stays intact.
func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if companyID == 0 {
		return ledger.ErrCompanyRequired
	}
	return s.repo.SetActive(ctx, companyID, id, false)
}

// List returns the company's accounts ordered by code.
func (s *Service) List(ctx context.Context, companyID int64) ([]ledger.Account, error) {
	if companyID == 0 {
		return nil, ledger.ErrCompanyRequired
	}
	return s.repo.List(ctx, companyID)
}
