package types

import "time"

// Account holds one pixeldrain account and its remaining transfer
// quota. The list is persisted in accounts.json next to the ini file.
type Account struct {
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	APIKey         string    `json:"api_key"`
	TotalQuota     int64     `json:"total_quota"`
	RemainingQuota int64     `json:"remaining_quota"`
	LastChecked    time.Time `json:"last_checked,omitempty"`
}

// DefaultAccountQuota is the free-tier monthly transfer allowance.
const DefaultAccountQuota = int64(6 * 1024 * 1024 * 1024) // 6 GiB

// HasQuota reports whether the account can serve a file of the given size.
func (a *Account) HasQuota(requiredBytes int64) bool {
	return a.RemainingQuota >= requiredBytes
}

// UseQuota records a completed transfer against the account.
func (a *Account) UseQuota(bytesUsed int64) {
	a.RemainingQuota -= bytesUsed
	if a.RemainingQuota < 0 {
		a.RemainingQuota = 0
	}
}

// ResetQuota restores the full allowance (daily reset).
func (a *Account) ResetQuota() {
	a.RemainingQuota = a.TotalQuota
	a.LastChecked = time.Now()
}
