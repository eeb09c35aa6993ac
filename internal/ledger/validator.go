package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LineInput describes a candidate posting line before persistence.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	EntityType  string
	EntityID    *int64
}

// Issue codes reported by the validator.
const (
	IssueTooFewLines    = "too_few_lines"
	IssueUnbalanced     = "unbalanced"
	IssueMissingAccount = "missing_account"
	IssueNegativeAmount = "negative_amount"
	IssueEmptyLine      = "empty_line"
	IssueBothSides      = "both_sides"
	IssueAbnormalSide   = "abnormal_side"
)

// ValidationIssue pinpoints a single rule violation or advisory.
// Line is 1-based; zero means the issue applies to the whole candidate.
type ValidationIssue struct {
	Line    int    `json:"line,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult carries every violation found, not just the first,
// so a caller can surface all offending lines at once.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// ValidationError wraps a failed result as a caller-fixable business error.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, issue := range e.Result.Errors {
		msgs = append(msgs, issue.Message)
	}
	return "ledger: validation failed: " + strings.Join(msgs, "; ")
}

// ValidateEntries checks a candidate list of lines against double-entry rules.
// Pure and side-effect free; safe for pre-flight UI checks and for gating
// AI-suggested entries before they reach a reviewer.
func ValidateEntries(lines []LineInput) ValidationResult {
	var result ValidationResult

	if len(lines) < 2 {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    IssueTooFewLines,
			Message: "transaction needs both a debit and credit side (at least 2 lines)",
		})
	}

	debitTotal := decimal.Zero
	creditTotal := decimal.Zero
	for idx, line := range lines {
		lineNo := idx + 1
		if line.AccountID == 0 {
			result.Errors = append(result.Errors, ValidationIssue{
				Line:    lineNo,
				Code:    IssueMissingAccount,
				Message: fmt.Sprintf("line %d is missing an account", lineNo),
			})
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			result.Errors = append(result.Errors, ValidationIssue{
				Line:    lineNo,
				Code:    IssueNegativeAmount,
				Message: fmt.Sprintf("line %d has a negative amount", lineNo),
			})
			continue
		}
		switch {
		case line.Debit.IsZero() && line.Credit.IsZero():
			result.Errors = append(result.Errors, ValidationIssue{
				Line:    lineNo,
				Code:    IssueEmptyLine,
				Message: fmt.Sprintf("line %d must have either a debit or credit amount", lineNo),
			})
		case line.Debit.IsPositive() && line.Credit.IsPositive():
			result.Errors = append(result.Errors, ValidationIssue{
				Line:    lineNo,
				Code:    IssueBothSides,
				Message: fmt.Sprintf("line %d cannot have both debit and credit", lineNo),
			})
		}
		debitTotal = debitTotal.Add(line.Debit)
		creditTotal = creditTotal.Add(line.Credit)
	}

	if !debitTotal.Equal(creditTotal) {
		result.Errors = append(result.Errors, ValidationIssue{
			Code: IssueUnbalanced,
			Message: fmt.Sprintf("debits and credits must balance: %s != %s",
				debitTotal.String(), creditTotal.String()),
		})
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateAccountSide evaluates whether a posting sits on the account's
// normal balance side. A mismatch is advisory only: contra-entries are
// legal and must still be accepted.
func ValidateAccountSide(account Account, lineNo int, line LineInput) *ValidationIssue {
	var side NormalBalance
	switch {
	case line.Debit.IsPositive():
		side = NormalBalanceDebit
	case line.Credit.IsPositive():
		side = NormalBalanceCredit
	default:
		return nil
	}
	if side == account.NormalBalance {
		return nil
	}
	return &ValidationIssue{
		Line: lineNo,
		Code: IssueAbnormalSide,
		Message: fmt.Sprintf("line %d posts a %s to %s-normal account %s",
			lineNo, side, account.NormalBalance, account.Code),
	}
}
