package shared

import "fmt"

// CoAImportLockKey guards one bulk import per tenant at a time.
func CoAImportLockKey(clientID int64) string {
	return fmt.Sprintf("ledger:client:%d:coa:import", clientID)
}

// CoAWriteLockKey names the advisory lock every chart of accounts write takes.
func CoAWriteLockKey(clientID int64) string {
	return fmt.Sprintf("ledger:client:%d:coa", clientID)
}

// EntryNumberLockKey serialises reference-number checks per entity.
func EntryNumberLockKey(clientID, entityID int64) string {
	return fmt.Sprintf("ledger:client:%d:entity:%d:journal", clientID, entityID)
}
