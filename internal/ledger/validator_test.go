package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func issueCodes(issues []ValidationIssue) []string {
	codes := make([]string, 0, len(issues))
	for _, issue := range issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestValidateEntriesBalanced(t *testing.T) {
	result := ValidateEntries([]LineInput{
		{AccountID: 1, Debit: dec("100.00")},
		{AccountID: 2, Credit: dec("60.00")},
		{AccountID: 3, Credit: dec("40.00")},
	})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateEntriesUnbalanced(t *testing.T) {
	result := ValidateEntries([]LineInput{
		{AccountID: 1, Debit: dec("100.00")},
		{AccountID: 2, Credit: dec("99.99")},
	})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, IssueUnbalanced, result.Errors[0].Code)
	assert.Equal(t, 0, result.Errors[0].Line)
	assert.Contains(t, result.Errors[0].Message, "100 != 99.99")
}

func TestValidateEntriesTooFewLines(t *testing.T) {
	result := ValidateEntries([]LineInput{
		{AccountID: 1, Debit: dec("50")},
	})
	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result.Errors), IssueTooFewLines)
	assert.Contains(t, issueCodes(result.Errors), IssueUnbalanced)
}

func TestValidateEntriesEmptyList(t *testing.T) {
	result := ValidateEntries(nil)
	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result.Errors), IssueTooFewLines)
}

func TestValidateEntriesNegativeAmount(t *testing.T) {
	result := ValidateEntries([]LineInput{
		{AccountID: 1, Debit: dec("-50")},
		{AccountID: 2, Credit: dec("-50")},
	})
	assert.False(t, result.Valid)
	codes := issueCodes(result.Errors)
	assert.Equal(t, []string{IssueNegativeAmount, IssueNegativeAmount}, codes)
	assert.Equal(t, 1, result.Errors[0].Line)
	assert.Equal(t, 2, result.Errors[1].Line)
}

func TestValidateEntriesLineShape(t *testing.T) {
	result := ValidateEntries([]LineInput{
		{AccountID: 1},
		{AccountID: 2, Debit: dec("10"), Credit: dec("10")},
	})
	assert.False(t, result.Valid)
	codes := issueCodes(result.Errors)
	assert.Contains(t, codes, IssueEmptyLine)
	assert.Contains(t, codes, IssueBothSides)
}

func TestValidateEntriesMissingAccount(t *testing.T) {
	result := ValidateEntries([]LineInput{
		{AccountID: 0, Debit: dec("25")},
		{AccountID: 2, Credit: dec("25")},
	})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, IssueMissingAccount, result.Errors[0].Code)
	assert.Equal(t, 1, result.Errors[0].Line)
}

// Every violation must be reported at once, not just the first.
func TestValidateEntriesCollectsAllViolations(t *testing.T) {
	result := ValidateEntries([]LineInput{
		{AccountID: 0, Debit: dec("-5")},
		{AccountID: 2},
		{AccountID: 3, Debit: dec("7"), Credit: dec("3")},
	})
	assert.False(t, result.Valid)
	codes := issueCodes(result.Errors)
	assert.Contains(t, codes, IssueMissingAccount)
	assert.Contains(t, codes, IssueNegativeAmount)
	assert.Contains(t, codes, IssueEmptyLine)
	assert.Contains(t, codes, IssueBothSides)
	assert.Contains(t, codes, IssueUnbalanced)
}

func TestValidateEntriesZeroWithZeroBalances(t *testing.T) {
	// Totals balance at zero but every line is still shapeless.
	result := ValidateEntries([]LineInput{
		{AccountID: 1},
		{AccountID: 2},
	})
	assert.False(t, result.Valid)
	assert.NotContains(t, issueCodes(result.Errors), IssueUnbalanced)
}

func TestValidateAccountSide(t *testing.T) {
	cash := Account{ID: 1, Code: "1000", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit}
	revenue := Account{ID: 2, Code: "4000", Type: AccountTypeRevenue, NormalBalance: NormalBalanceCredit}

	assert.Nil(t, ValidateAccountSide(cash, 1, LineInput{AccountID: 1, Debit: dec("10")}))
	assert.Nil(t, ValidateAccountSide(revenue, 2, LineInput{AccountID: 2, Credit: dec("10")}))

	issue := ValidateAccountSide(cash, 1, LineInput{AccountID: 1, Credit: dec("10")})
	require.NotNil(t, issue)
	assert.Equal(t, IssueAbnormalSide, issue.Code)
	assert.Equal(t, 1, issue.Line)
	assert.Contains(t, issue.Message, "1000")

	// Zero lines carry no side at all.
	assert.Nil(t, ValidateAccountSide(cash, 1, LineInput{AccountID: 1}))
}
