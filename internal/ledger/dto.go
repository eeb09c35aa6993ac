package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type lineRequest struct {
	AccountID   int64  `json:"account_id" validate:"required,gt=0"`
	Debit       string `json:"debit_amount"`
	Credit      string `json:"credit_amount"`
	Description string `json:"description"`
	EntityType  string `json:"entity_type"`
	EntityID    *int64 `json:"entity_id"`
}

type createTransactionRequest struct {
	Date        string          `json:"date" validate:"required"`
	PostingDate string          `json:"posting_date"`
	Type        string          `json:"type"`
	Memo        string          `json:"memo"`
	AIGenerated bool            `json:"ai_generated"`
	AIMetadata  json.RawMessage `json:"ai_metadata"`
	Lines       []lineRequest   `json:"lines" validate:"required,dive"`
}

type validateRequest struct {
	Lines []lineRequest `json:"lines" validate:"required,dive"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

type entryResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	Debit       string `json:"debit_amount"`
	Credit      string `json:"credit_amount"`
	Description string `json:"description,omitempty"`
	LineNumber  int    `json:"line_number"`
	EntityType  string `json:"entity_type,omitempty"`
	EntityID    *int64 `json:"entity_id,omitempty"`
}

type transactionResponse struct {
	ID          int64           `json:"id"`
	Number      string          `json:"transaction_number"`
	Date        string          `json:"date"`
	PostingDate string          `json:"posting_date"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	TotalAmount string          `json:"total_amount"`
	Memo        string          `json:"memo,omitempty"`
	AIGenerated bool            `json:"ai_generated"`
	AIMetadata  json.RawMessage `json:"ai_metadata,omitempty"`
	Entries     []entryResponse `json:"entries,omitempty"`
}

const dateLayout = "2006-01-02"

func (req createTransactionRequest) toInput(companyID, createdBy int64) (CreateInput, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return CreateInput{}, fmt.Errorf("invalid date %q", req.Date)
	}
	input := CreateInput{
		CompanyID:   companyID,
		Date:        date,
		Type:        TransactionType(req.Type),
		Memo:        req.Memo,
		CreatedBy:   createdBy,
		AIGenerated: req.AIGenerated,
		AIMetadata:  req.AIMetadata,
	}
	if req.PostingDate != "" {
		posting, err := time.Parse(dateLayout, req.PostingDate)
		if err != nil {
			return CreateInput{}, fmt.Errorf("invalid posting_date %q", req.PostingDate)
		}
		input.PostingDate = &posting
	}
	input.Lines, err = toLines(req.Lines)
	if err != nil {
		return CreateInput{}, err
	}
	return input, nil
}

func toLines(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for idx, lr := range reqs {
		debit, err := parseAmount(lr.Debit)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid debit_amount %q", idx+1, lr.Debit)
		}
		credit, err := parseAmount(lr.Credit)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid credit_amount %q", idx+1, lr.Credit)
		}
		lines = append(lines, LineInput{
			AccountID:   lr.AccountID,
			Debit:       debit,
			Credit:      credit,
			Description: lr.Description,
			EntityType:  lr.EntityType,
			EntityID:    lr.EntityID,
		})
	}
	return lines, nil
}

// parseAmount treats an absent amount as zero; the validator decides
// whether zero on both sides is legal.
func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func toTransactionResponse(tr Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          tr.ID,
		Number:      tr.Number,
		Date:        tr.Date.Format(dateLayout),
		PostingDate: tr.PostingDate.Format(dateLayout),
		Type:        string(tr.Type),
		Status:      string(tr.Status),
		TotalAmount: tr.TotalAmount.String(),
		Memo:        tr.Memo,
		AIGenerated: tr.AIGenerated,
		AIMetadata:  tr.AIMetadata,
	}
	for _, e := range tr.Entries {
		resp.Entries = append(resp.Entries, entryResponse{
			ID:          e.ID,
			AccountID:   e.AccountID,
			Debit:       e.Debit.String(),
			Credit:      e.Credit.String(),
			Description: e.Description,
			LineNumber:  e.LineNumber,
			EntityType:  e.EntityType,
			EntityID:    e.EntityID,
		})
	}
	return resp
}
