package shared

import "fmt"

// InvoiceLockKey builds the redis key guarding one invoice computation.
func InvoiceLockKey(userID, period string) string {
	return fmt.Sprintf("billing:invoice:%s:%s:lock", userID, period)
}

// SyncLockKey builds the redis key guarding a marketplace sync run per user.
func SyncLockKey(userID string) string {
	return fmt.Sprintf("marketplace:sync:%s:lock", userID)
}
