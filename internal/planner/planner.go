package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/quote"
	"github.com/gustavo/tradeguard/internal/registry"
)

const defaultSlippageBps = 50

// Planner maps a strategy configuration plus a live quote into an ordered
// execution plan. It has no persisted side effects beyond the quote call.
type Planner struct {
	quotes      quote.Service
	l           *zap.Logger
	slippageBps int64
}

func New(quotes quote.Service, l *zap.Logger) *Planner {
	if l == nil {
		l = zap.NewNop()
	}
	return &Planner{quotes: quotes, l: l, slippageBps: defaultSlippageBps}
}

// Request identifies one planning attempt.
type Request struct {
	ExecutionID  string
	StrategyID   string
	StrategyType string
	Config       map[string]any
	Wallet       string
}

// Plan builds the step sequence for one execution attempt. It fails only for
// missing wallet/token/amount configuration or a failed quote; an unknown
// strategy type yields a placeholder plan with a warning instead.
func (p *Planner) Plan(ctx context.Context, req Request) (Plan, error) {
	if strings.TrimSpace(req.Wallet) == "" {
		return Plan{}, clierr.New(clierr.CodeValidation, "planning requires a connected wallet address")
	}

	plan := Plan{
		StrategyID:   req.StrategyID,
		ExecutionID:  req.ExecutionID,
		StrategyType: req.StrategyType,
	}

	switch req.StrategyType {
	case StrategyPeriodicBuy:
		return p.planQuotedSwap(ctx, req, plan, true)
	case StrategyLimitOrder, StrategyStopLoss, StrategyTakeProfit:
		// Price-triggered strategies skip approval detection; the executor's
		// allowance fallback covers the gap at execution time.
		return p.planQuotedSwap(ctx, req, plan, false)
	case StrategyRebalance:
		plan.Steps = []Step{{
			Type:        StepCustom,
			Description: "Rebalance portfolio",
		}}
		plan.Warnings = append(plan.Warnings, "multi-step rebalance execution is not implemented yet")
		return plan, nil
	default:
		plan.Steps = []Step{{
			Type:        StepCustom,
			Description: fmt.Sprintf("Execute %s strategy", req.StrategyType),
		}}
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("unrecognized strategy type %q, manual review required", req.StrategyType))
		return plan, nil
	}
}

func (p *Planner) planQuotedSwap(ctx context.Context, req Request, plan Plan, detectApproval bool) (Plan, error) {
	cfg, err := ParseTradeConfig(req.Config)
	if err != nil {
		return Plan{}, err
	}
	if !cfg.AmountUSD.IsPositive() {
		return Plan{}, clierr.New(clierr.CodeValidation, "strategy config amount must be positive")
	}

	q, err := p.quotes.Swap(ctx, quote.SwapRequest{
		ChainID:     cfg.ChainID,
		FromToken:   cfg.FromToken,
		ToToken:     cfg.ToToken,
		AmountUSD:   cfg.AmountUSD,
		SlippageBps: p.slippageBps,
		Wallet:      req.Wallet,
	})
	if err != nil {
		return Plan{}, errors.Wrapf(err, "quote swap for strategy %s", req.StrategyID)
	}

	// Quote warnings always reach the plan, never dropped.
	plan.Warnings = append(plan.Warnings, q.Warnings...)

	if detectApproval && q.NeedsApproval && !registry.IsNativeToken(cfg.FromToken) {
		approval := Step{
			Type:              StepApproval,
			Description:       fmt.Sprintf("Approve token for %s", q.ApprovalAddress),
			TokenAddress:      cfg.FromToken,
			SpenderAddress:    q.ApprovalAddress,
			RequiredAllowance: q.FromAmount,
		}
		if q.ApprovalTx != nil {
			approval.Tx = StepTx(*q.ApprovalTx)
		}
		plan.Steps = append(plan.Steps, approval)
		p.l.Debug("approval step planned",
			zap.String("execution_id", req.ExecutionID),
			zap.String("token", cfg.FromToken),
			zap.String("spender", q.ApprovalAddress))
	}

	plan.Steps = append(plan.Steps, Step{
		Type:        StepSwap,
		Description: fmt.Sprintf("Swap $%s of %s for %s", cfg.AmountUSD, cfg.FromToken, cfg.ToToken),
		Tx:          StepTx(q.TxRequest),
	})

	p.l.Info("execution plan built",
		zap.String("execution_id", req.ExecutionID),
		zap.String("strategy_type", req.StrategyType),
		zap.Int("steps", len(plan.Steps)),
		zap.Int("warnings", len(plan.Warnings)))
	return plan, nil
}
