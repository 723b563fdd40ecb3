package policy

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// IntentType is the kind of on-chain action a transaction intent proposes.
type IntentType string

const (
	IntentSwap   IntentType = "swap"
	IntentBridge IntentType = "bridge"
)

// TokenRef identifies a token on a specific chain.
type TokenRef struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	ChainID int64  `json:"chain_id"`
}

// Key returns the canonical "chainID:address" identifier used by session
// token allowlists and the global token blocklist. Case-insensitive on the
// address part.
func (t TokenRef) Key() string {
	return TokenKey(t.ChainID, t.Address)
}

func TokenKey(chainID int64, address string) string {
	return FormatChainID(chainID) + ":" + strings.ToLower(strings.TrimSpace(address))
}

func FormatChainID(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

// TransactionIntent is a proposed on-chain action awaiting authorization.
// It is built fresh per request by the quote layer and never persisted.
type TransactionIntent struct {
	Type            IntentType      `json:"type"`
	FromToken       TokenRef        `json:"from_token"`
	ToToken         TokenRef        `json:"to_token"`
	AmountUSD       decimal.Decimal `json:"amount_usd"`
	SlippagePercent decimal.Decimal `json:"slippage_percent"`
	GasEstimateUSD  decimal.Decimal `json:"gas_estimate_usd"`
	ContractAddress string          `json:"contract_address,omitempty"`
}

// IsBridge reports whether the intent crosses chains.
func (i *TransactionIntent) IsBridge() bool {
	return i.Type == IntentBridge
}
