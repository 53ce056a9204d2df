package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/internal/shared/types"
)

// quotaResetInterval is how stale a quota reading may get before the
// daily reset applies.
const quotaResetInterval = 24 * time.Hour

// AccountManager tracks transfer quota across the configured
// pixeldrain accounts and picks one that can serve a given file.
type AccountManager struct {
	mu       sync.Mutex
	accounts []*types.Account
}

// NewAccountManager wraps the accounts loaded from accounts.json.
func NewAccountManager(accounts []*types.Account) *AccountManager {
	return &AccountManager{accounts: accounts}
}

// SelectBest returns the first account, in configured order, with
// enough remaining quota for the file, resetting stale quota readings
// first. nil means no account can serve the file (anonymous download
// is still possible for the caller).
func (m *AccountManager) SelectBest(requiredBytes int64) *types.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, a := range m.accounts {
		if !a.LastChecked.IsZero() && now.Sub(a.LastChecked) > quotaResetInterval {
			a.ResetQuota()
		}
		if a.HasQuota(requiredBytes) {
			l := logger.WithComponent("Source/Accounts")
			l.Info().
				Str("account", a.Username).
				Int64("remaining", a.RemainingQuota).
				Int64("required", requiredBytes).
				Msg("Account selected.")
			return a
		}
	}
	return nil
}

// MarkQuotaUsed records a completed transfer against an account.
func (m *AccountManager) MarkQuotaUsed(account *types.Account, bytesUsed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account.UseQuota(bytesUsed)
	account.LastChecked = time.Now()
}

// RefreshQuotas asks the API for every account's real remaining
// allowance. Best-effort: accounts whose lookup fails keep their local
// bookkeeping.
func (m *AccountManager) RefreshQuotas(ctx context.Context, client *Client) {
	l := logger.WithComponent("Source/Accounts")

	m.mu.Lock()
	accounts := make([]*types.Account, len(m.accounts))
	copy(accounts, m.accounts)
	m.mu.Unlock()

	for _, a := range accounts {
		remaining, err := client.RemainingQuota(ctx, a.APIKey)
		if err != nil {
			l.Warn().Err(err).Str("account", a.Username).Msg("Quota lookup failed, keeping local value.")
			continue
		}
		m.mu.Lock()
		a.RemainingQuota = remaining
		a.LastChecked = time.Now()
		m.mu.Unlock()
	}
}

// Accounts returns the underlying list for persistence.
func (m *AccountManager) Accounts() []*types.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts
}

// StatusSummary renders one line per account for operator-facing
// messages.
func (m *AccountManager) StatusSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.accounts) == 0 {
		return "no accounts configured"
	}

	var sb strings.Builder
	for _, a := range m.accounts {
		fmt.Fprintf(&sb, "%s: %d/%d bytes remaining\n", a.Username, a.RemainingQuota, a.TotalQuota)
	}
	return strings.TrimRight(sb.String(), "\n")
}
