package shared

import "fmt"

// PartyLockKey names the distributed lock guarding ledger writes for one
// customer or supplier.
func PartyLockKey(partyType string, partyID int64) string {
	return fmt.Sprintf("ledger:lock:%s:%d", partyType, partyID)
}
