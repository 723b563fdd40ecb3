package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// budgetWarnFraction is the share of a session's total budget above which
// projected usage turns the budget check into a warning.
var budgetWarnFraction = decimal.NewFromFloat(0.8)

var oneHundred = decimal.NewFromInt(100)

// Inputs carries the pre-resolved policy data an evaluation needs. The
// evaluator itself performs no I/O; providers populate this ahead of time.
type Inputs struct {
	System   SystemStatus
	Policy   RiskPolicyConfig
	Sessions []SessionKeyData
	Lists    Blocklists
	// DailyVolumeUSD is the wallet's resolved trailing-24h executed volume.
	// Zero disables the daily-volume tier unless the policy sets a limit.
	DailyVolumeUSD decimal.Decimal
	// Now anchors session-expiry decisions; zero value means time.Now().
	Now time.Time
}

// Evaluate runs the layered policy checks for one intent. It is pure and
// synchronous: same inputs, same result, no side effects. It never fails;
// malformed input yields best-effort checks reflecting the missing data.
//
// Emission order is fixed: system, chain/token/contract restrictions, risk
// tiers (size, slippage, gas, daily volume), then the session tier when an
// active unexpired session exists.
func Evaluate(intent *TransactionIntent, wallet string, in Inputs) EvaluationResult {
	// Nothing to gate without an intent or a wallet.
	if intent == nil || wallet == "" {
		return EvaluationResult{CanProceed: true, Checks: []Check{}}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	checks := make([]Check, 0, 12)
	checks = append(checks, systemCheck(in.System))
	checks = append(checks, restrictionChecks(intent, in.Lists)...)
	if in.Policy.Enabled {
		checks = append(checks, riskChecks(intent, in.Policy, in.DailyVolumeUSD)...)
	}
	if session := ActiveSession(in.Sessions, now); session != nil {
		checks = append(checks, sessionChecks(intent, session)...)
	}

	result := EvaluationResult{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case StatusFail:
			result.BlockingCount++
		case StatusWarn:
			result.WarningCount++
		}
	}
	result.CanProceed = result.BlockingCount == 0 &&
		in.System.TradingEnabled && !in.System.EmergencyStop
	return result
}

func systemCheck(status SystemStatus) Check {
	switch {
	case status.EmergencyStop:
		return Check{
			ID:      CheckSystemStatus,
			Label:   "System status",
			Status:  StatusFail,
			Message: "trading halted by emergency stop",
		}
	case status.Maintenance:
		return Check{
			ID:      CheckSystemStatus,
			Label:   "System status",
			Status:  StatusWarn,
			Message: "system in maintenance mode, execution may be delayed",
		}
	default:
		return Check{
			ID:      CheckSystemStatus,
			Label:   "System status",
			Status:  StatusPass,
			Message: "system operational",
		}
	}
}

// restrictionChecks applies the platform chain/token/contract restrictions.
// Source side is always checked before destination; the first failing side
// wins and is the only one reported.
func restrictionChecks(intent *TransactionIntent, lists Blocklists) []Check {
	checks := make([]Check, 0, 3)

	chain := Check{
		ID:      CheckChainAllowlist,
		Label:   "Chain allowlist",
		Status:  StatusPass,
		Message: "chains permitted",
	}
	if !lists.ChainAllowed(intent.FromToken.ChainID) {
		chain.Status = StatusFail
		chain.Message = fmt.Sprintf("source chain %d is not allowed", intent.FromToken.ChainID)
	} else if intent.IsBridge() && !lists.ChainAllowed(intent.ToToken.ChainID) {
		chain.Status = StatusFail
		chain.Message = fmt.Sprintf("destination chain %d is not allowed", intent.ToToken.ChainID)
	}
	checks = append(checks, chain)

	token := Check{
		ID:      CheckTokenBlocklist,
		Label:   "Token blocklist",
		Status:  StatusPass,
		Message: "tokens permitted",
	}
	if lists.TokenBlocked(intent.FromToken) {
		token.Status = StatusFail
		token.Message = fmt.Sprintf("source token %s is blocked", tokenName(intent.FromToken))
	} else if lists.TokenBlocked(intent.ToToken) {
		token.Status = StatusFail
		token.Message = fmt.Sprintf("destination token %s is blocked", tokenName(intent.ToToken))
	}
	checks = append(checks, token)

	// Contract restriction is evaluated only when the intent routes through
	// an explicit contract. Fail only, no warn tier.
	if intent.ContractAddress != "" {
		contract := Check{
			ID:      CheckContractBlocklist,
			Label:   "Contract blocklist",
			Status:  StatusPass,
			Message: "contract permitted",
		}
		if lists.ContractBlocked(intent.ContractAddress) {
			contract.Status = StatusFail
			contract.Message = fmt.Sprintf("contract %s is blocked", intent.ContractAddress)
		}
		checks = append(checks, contract)
	}

	return checks
}

func riskChecks(intent *TransactionIntent, cfg RiskPolicyConfig, dailyVolumeUSD decimal.Decimal) []Check {
	checks := []Check{
		thresholdCheck(
			CheckTransactionSize, "Transaction size",
			intent.AmountUSD, cfg.MaxSingleTxUSD, cfg.RequireApprovalAboveUSD,
			fmt.Sprintf("amount $%s exceeds single-transaction limit $%s", intent.AmountUSD, cfg.MaxSingleTxUSD),
			fmt.Sprintf("amount $%s is above the approval threshold $%s", intent.AmountUSD, cfg.RequireApprovalAboveUSD),
			"amount within limits",
		),
		thresholdCheck(
			CheckSlippage, "Slippage",
			intent.SlippagePercent, cfg.MaxSlippagePercent, cfg.WarnSlippagePercent,
			fmt.Sprintf("slippage %s%% exceeds maximum %s%%", intent.SlippagePercent, cfg.MaxSlippagePercent),
			fmt.Sprintf("slippage %s%% is elevated (warn above %s%%)", intent.SlippagePercent, cfg.WarnSlippagePercent),
			"slippage within limits",
		),
	}

	gasRatio := gasRatioPercent(intent)
	checks = append(checks, thresholdCheck(
		CheckGasRatio, "Gas cost ratio",
		gasRatio, cfg.MaxGasPercent, cfg.WarnGasPercent,
		fmt.Sprintf("gas is %s%% of transaction value, maximum is %s%%", gasRatio.StringFixed(2), cfg.MaxGasPercent),
		fmt.Sprintf("gas is %s%% of transaction value (warn above %s%%)", gasRatio.StringFixed(2), cfg.WarnGasPercent),
		"gas cost proportionate",
	))

	if cfg.MaxDailyVolumeUSD.IsPositive() {
		projected := dailyVolumeUSD.Add(intent.AmountUSD)
		warnAt := cfg.MaxDailyVolumeUSD.Mul(budgetWarnFraction)
		checks = append(checks, thresholdCheck(
			CheckDailyVolume, "Daily volume",
			projected, cfg.MaxDailyVolumeUSD, warnAt,
			fmt.Sprintf("projected 24h volume $%s exceeds limit $%s", projected, cfg.MaxDailyVolumeUSD),
			fmt.Sprintf("projected 24h volume $%s is above 80%% of the $%s limit", projected, cfg.MaxDailyVolumeUSD),
			"daily volume within limits",
		))
	}

	return checks
}

// gasRatioPercent computes gas cost as a percentage of transaction value.
// A zero amount evaluates to ratio 0 rather than a division fault.
func gasRatioPercent(intent *TransactionIntent) decimal.Decimal {
	if intent.AmountUSD.IsZero() {
		return decimal.Zero
	}
	return intent.GasEstimateUSD.Div(intent.AmountUSD).Mul(oneHundred)
}

// thresholdCheck is the shared three-way test: fail above failAt, warn above
// warnAt, pass otherwise. Fail takes precedence over warn.
func thresholdCheck(id, label string, current, failAt, warnAt decimal.Decimal, failMsg, warnMsg, passMsg string) Check {
	check := Check{
		ID:      id,
		Label:   label,
		Status:  StatusPass,
		Message: passMsg,
		Details: &Details{Current: current, Limit: failAt},
	}
	switch {
	case current.GreaterThan(failAt):
		check.Status = StatusFail
		check.Message = failMsg
	case current.GreaterThan(warnAt):
		check.Status = StatusWarn
		check.Message = warnMsg
		check.Details = &Details{Current: current, Limit: warnAt}
	}
	return check
}

func sessionChecks(intent *TransactionIntent, session *SessionKeyData) []Check {
	checks := make([]Check, 0, 5)

	permission := Check{
		ID:      CheckSessionPermission,
		Label:   "Session permission",
		Status:  StatusPass,
		Message: fmt.Sprintf("session permits %s", intent.Type),
	}
	if !session.Permits(intent.Type) {
		permission.Status = StatusFail
		permission.Message = fmt.Sprintf("session does not permit %s transactions", intent.Type)
	}
	checks = append(checks, permission)

	txLimit := Check{
		ID:      CheckSessionTxLimit,
		Label:   "Session per-transaction limit",
		Status:  StatusPass,
		Message: "amount within session per-transaction limit",
		Details: &Details{Current: intent.AmountUSD, Limit: session.MaxValuePerTxUSD},
	}
	if intent.AmountUSD.GreaterThan(session.MaxValuePerTxUSD) {
		txLimit.Status = StatusFail
		txLimit.Message = fmt.Sprintf("amount $%s exceeds session per-transaction limit $%s",
			intent.AmountUSD, session.MaxValuePerTxUSD)
	}
	checks = append(checks, txLimit)

	checks = append(checks, sessionBudgetCheck(intent, session))

	if len(session.ChainAllowlist) > 0 {
		chain := Check{
			ID:      CheckSessionChain,
			Label:   "Session chain allowlist",
			Status:  StatusPass,
			Message: "chains within session allowlist",
		}
		if !session.AllowsChain(intent.FromToken.ChainID) {
			chain.Status = StatusFail
			chain.Message = fmt.Sprintf("source chain %d is outside the session allowlist", intent.FromToken.ChainID)
		} else if intent.IsBridge() && !session.AllowsChain(intent.ToToken.ChainID) {
			chain.Status = StatusFail
			chain.Message = fmt.Sprintf("destination chain %d is outside the session allowlist", intent.ToToken.ChainID)
		}
		checks = append(checks, chain)
	}

	if len(session.TokenAllowlist) > 0 {
		token := Check{
			ID:      CheckSessionToken,
			Label:   "Session token allowlist",
			Status:  StatusPass,
			Message: "tokens within session allowlist",
		}
		if !session.AllowsToken(intent.FromToken) {
			token.Status = StatusFail
			token.Message = fmt.Sprintf("token %s is outside the session allowlist", tokenName(intent.FromToken))
		} else if !session.AllowsToken(intent.ToToken) {
			token.Status = StatusFail
			token.Message = fmt.Sprintf("token %s is outside the session allowlist", tokenName(intent.ToToken))
		}
		checks = append(checks, token)
	}

	return checks
}

// sessionBudgetCheck is the advisory pre-flight against the delegated total
// budget. The hard, atomic check is owned by the backend ledger; this one
// only keeps obviously over-budget intents from reaching the wallet.
func sessionBudgetCheck(intent *TransactionIntent, session *SessionKeyData) Check {
	// A zero total is an unlimited grant, mirroring the session store's
	// exhaustion derivation.
	if !session.MaxTotalValueUSD.IsPositive() {
		return Check{
			ID:      CheckSessionBudget,
			Label:   "Session budget",
			Status:  StatusPass,
			Message: "session has no total budget limit",
		}
	}

	remaining := session.RemainingBudgetUSD()
	if intent.AmountUSD.GreaterThan(remaining) {
		return Check{
			ID:      CheckSessionBudget,
			Label:   "Session budget",
			Status:  StatusFail,
			Message: fmt.Sprintf("amount $%s exceeds remaining session budget $%s", intent.AmountUSD, remaining),
			Details: &Details{Current: intent.AmountUSD, Limit: remaining},
		}
	}

	projected := session.TotalValueUsedUSD.Add(intent.AmountUSD)
	warnAt := session.MaxTotalValueUSD.Mul(budgetWarnFraction)
	if projected.GreaterThan(warnAt) {
		pct := decimal.Zero
		if session.MaxTotalValueUSD.IsPositive() {
			pct = projected.Div(session.MaxTotalValueUSD).Mul(oneHundred)
		}
		return Check{
			ID:      CheckSessionBudget,
			Label:   "Session budget",
			Status:  StatusWarn,
			Message: fmt.Sprintf("projected usage $%s is %s%% of the session budget", projected, pct.StringFixed(0)),
			Details: &Details{Current: projected, Limit: session.MaxTotalValueUSD},
		}
	}

	return Check{
		ID:      CheckSessionBudget,
		Label:   "Session budget",
		Status:  StatusPass,
		Message: fmt.Sprintf("$%s remaining of $%s session budget", remaining, session.MaxTotalValueUSD),
		Details: &Details{Current: remaining, Limit: session.MaxTotalValueUSD},
	}
}

func tokenName(ref TokenRef) string {
	if ref.Symbol != "" {
		return ref.Symbol
	}
	return ref.Key()
}
