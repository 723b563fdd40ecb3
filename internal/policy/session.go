package policy

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a session key.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionExpired   SessionStatus = "expired"
	SessionRevoked   SessionStatus = "revoked"
	SessionExhausted SessionStatus = "exhausted"
)

// SessionKeyData is a delegated-access grant: a budget- and permission-
// limited key allowing autonomous execution without per-transaction signing.
// TotalValueUsedUSD is written exclusively by the outcome recorder's ledger
// and never decreases.
type SessionKeyData struct {
	ID                string          `json:"id"`
	Wallet            string          `json:"wallet"`
	Permissions       []IntentType    `json:"permissions"`
	MaxValuePerTxUSD  decimal.Decimal `json:"max_value_per_tx_usd"`
	MaxTotalValueUSD  decimal.Decimal `json:"max_total_value_usd"`
	TotalValueUsedUSD decimal.Decimal `json:"total_value_used_usd"`
	ChainAllowlist    []int64         `json:"chain_allowlist,omitempty"`
	TokenAllowlist    []string        `json:"token_allowlist,omitempty"`
	ContractAllowlist []string        `json:"contract_allowlist,omitempty"`
	ExpiresAt         time.Time       `json:"expires_at"`
	Status            SessionStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Permits reports whether the session grants the given intent type.
func (s *SessionKeyData) Permits(t IntentType) bool {
	for _, p := range s.Permissions {
		if p == t {
			return true
		}
	}
	return false
}

// RemainingBudgetUSD is the advisory remaining total-value budget. The
// authoritative check lives in the backend ledger.
func (s *SessionKeyData) RemainingBudgetUSD() decimal.Decimal {
	remaining := s.MaxTotalValueUSD.Sub(s.TotalValueUsedUSD)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// AllowsChain reports whether chainID passes the session chain allowlist.
// An empty allowlist allows every chain.
func (s *SessionKeyData) AllowsChain(chainID int64) bool {
	if len(s.ChainAllowlist) == 0 {
		return true
	}
	for _, id := range s.ChainAllowlist {
		if id == chainID {
			return true
		}
	}
	return false
}

// AllowsToken reports whether the "chainID:address" key passes the session
// token allowlist. Empty allowlist allows every token; matching is
// case-insensitive on the address.
func (s *SessionKeyData) AllowsToken(ref TokenRef) bool {
	if len(s.TokenAllowlist) == 0 {
		return true
	}
	key := ref.Key()
	for _, allowed := range s.TokenAllowlist {
		if normalizeTokenKey(allowed) == key {
			return true
		}
	}
	return false
}

func normalizeTokenKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// ActiveSession selects the session used for evaluation: the first with
// status active and an expiry in the future, in slice order. Selection among
// multiple active sessions is discovery-ordered on purpose; stores return
// sessions ordered by creation time.
func ActiveSession(sessions []SessionKeyData, now time.Time) *SessionKeyData {
	for i := range sessions {
		s := &sessions[i]
		if s.Status == SessionActive && s.ExpiresAt.After(now) {
			return s
		}
	}
	return nil
}
