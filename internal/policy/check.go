package policy

import "github.com/shopspring/decimal"

// CheckStatus is the three-way outcome of a single policy check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Stable check identifiers in emission order.
const (
	CheckSystemStatus      = "system_status"
	CheckChainAllowlist    = "chain_allowlist"
	CheckTokenBlocklist    = "token_blocklist"
	CheckContractBlocklist = "contract_blocklist"
	CheckTransactionSize   = "transaction_size"
	CheckSlippage          = "slippage"
	CheckGasRatio          = "gas_ratio"
	CheckDailyVolume       = "daily_volume"
	CheckSessionPermission = "session_permission"
	CheckSessionTxLimit    = "session_tx_limit"
	CheckSessionBudget     = "session_budget"
	CheckSessionChain      = "session_chain"
	CheckSessionToken      = "session_token"
)

// Details carries the measured value and the limit it was compared against,
// in matching units.
type Details struct {
	Current decimal.Decimal `json:"current"`
	Limit   decimal.Decimal `json:"limit"`
}

// Check is one named pass/warn/fail evaluation contributing to an
// authorization decision. Fresh per evaluation, never persisted.
type Check struct {
	ID      string      `json:"id"`
	Label   string      `json:"label"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
	Details *Details    `json:"details,omitempty"`
}

// EvaluationResult aggregates the checks of one evaluation. Derived,
// never persisted.
type EvaluationResult struct {
	CanProceed    bool    `json:"can_proceed"`
	Checks        []Check `json:"checks"`
	BlockingCount int     `json:"blocking_count"`
	WarningCount  int     `json:"warning_count"`
}
