package shared

import "fmt"

// LedgerIntegrityLockKey builds the redis key guarding the integrity scan for a company.
func LedgerIntegrityLockKey(companyID int64) string {
	return fmt.Sprintf("ledger:company:%d:integrity:lock", companyID)
}
