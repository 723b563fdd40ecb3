package planner

// StepType classifies one executable plan step.
type StepType string

const (
	StepApproval StepType = "approval"
	StepSwap     StepType = "swap"
	StepBridge   StepType = "bridge"
	StepTransfer StepType = "transfer"
	StepCustom   StepType = "custom"
)

// StepTx is the prepared transaction of a step. A step may carry no
// transaction data (approval steps resolved at execution time via an
// allowance read).
type StepTx struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID int64  `json:"chain_id"`
}

func (t StepTx) Empty() bool {
	return t.Data == "" || t.Data == "0x"
}

// Step is one on-chain action of a plan. Immutable once planned:
// re-planning produces a new step, never patches an old one.
type Step struct {
	Type        StepType `json:"type"`
	Description string   `json:"description"`
	Tx          StepTx   `json:"tx"`
	// TokenAddress and SpenderAddress are set on approval steps so the
	// executor can fall back to an allowance read when Tx is empty.
	TokenAddress   string `json:"token_address,omitempty"`
	SpenderAddress string `json:"spender_address,omitempty"`
	// RequiredAllowance is the spend amount in token base units, when the
	// quote resolved it.
	RequiredAllowance string `json:"required_allowance,omitempty"`
}

// Plan is the ordered step sequence for one execution attempt. Stale or
// failed plans are discarded, never reused.
type Plan struct {
	StrategyID   string   `json:"strategy_id"`
	ExecutionID  string   `json:"execution_id"`
	StrategyType string   `json:"strategy_type"`
	Steps        []Step   `json:"steps"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Strategy types the planner understands.
const (
	StrategyPeriodicBuy = "periodic_buy"
	StrategyLimitOrder  = "limit_order"
	StrategyStopLoss    = "stop_loss"
	StrategyTakeProfit  = "take_profit"
	StrategyRebalance   = "rebalance"
)
