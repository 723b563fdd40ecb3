package policy

import "strings"

// SystemStatus is the platform-wide trading switch state, resolved upstream.
type SystemStatus struct {
	TradingEnabled bool `json:"trading_enabled" yaml:"trading_enabled"`
	EmergencyStop  bool `json:"emergency_stop" yaml:"emergency_stop"`
	Maintenance    bool `json:"maintenance" yaml:"maintenance"`
}

// Blocklists are the platform-wide chain/token/contract restrictions applied
// before any per-wallet policy. Values arrive pre-resolved.
type Blocklists struct {
	// ChainAllowlist lists the permitted chain IDs. Empty permits all.
	ChainAllowlist []int64 `json:"chain_allowlist" yaml:"chain_allowlist"`
	// TokenBlocklist holds "chainID:address" keys, case-insensitive.
	TokenBlocklist []string `json:"token_blocklist" yaml:"token_blocklist"`
	// ContractBlocklist holds contract addresses, case-insensitive.
	ContractBlocklist []string `json:"contract_blocklist" yaml:"contract_blocklist"`
}

func (b Blocklists) ChainAllowed(chainID int64) bool {
	if len(b.ChainAllowlist) == 0 {
		return true
	}
	for _, id := range b.ChainAllowlist {
		if id == chainID {
			return true
		}
	}
	return false
}

func (b Blocklists) TokenBlocked(ref TokenRef) bool {
	key := ref.Key()
	for _, blocked := range b.TokenBlocklist {
		if normalizeTokenKey(blocked) == key {
			return true
		}
	}
	return false
}

func (b Blocklists) ContractBlocked(address string) bool {
	addr := strings.ToLower(strings.TrimSpace(address))
	if addr == "" {
		return false
	}
	for _, blocked := range b.ContractBlocklist {
		if strings.ToLower(strings.TrimSpace(blocked)) == addr {
			return true
		}
	}
	return false
}
