package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity is the task type for the trial balance integrity sweep.
	TaskLedgerIntegrity = "ledger:integrity"
)

// LedgerIntegrityPayload scopes an integrity run. A zero CompanyID means
// sweep every company.
type LedgerIntegrityPayload struct {
	CompanyID int64 `json:"company_id,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity sweep.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}
