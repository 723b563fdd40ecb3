package planner

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/quote"
)

type fakeQuotes struct {
	quote    quote.Quote
	err      error
	lastReq  quote.SwapRequest
	reqCount int
}

func (f *fakeQuotes) Swap(_ context.Context, req quote.SwapRequest) (quote.Quote, error) {
	f.lastReq = req
	f.reqCount++
	if f.err != nil {
		return quote.Quote{}, f.err
	}
	return f.quote, nil
}

func goodQuote() quote.Quote {
	return quote.Quote{
		TxRequest: quote.TxRequest{
			To:      "0xrouter",
			Data:    "0xswapdata",
			Value:   "0",
			ChainID: 1,
		},
		ApprovalAddress: "0xspender",
		FromAmount:      "1000000",
		EstimatedOut:    decimal.NewFromInt(99),
	}
}

func structuredConfig() map[string]any {
	return map[string]any{
		"fromToken": map[string]any{"address": "0xaaa", "symbol": "USDC", "chainId": float64(1)},
		"toToken":   map[string]any{"address": "0xbbb", "symbol": "WETH", "chainId": float64(1)},
		"amountUsd": float64(100),
	}
}

func legacyConfig() map[string]any {
	return map[string]any{
		"from_token": "0xaaa",
		"to_token":   "0xbbb",
		"amount_usd": "100",
		"chain_id":   float64(1),
	}
}

func planRequest(strategyType string, config map[string]any) Request {
	return Request{
		ExecutionID:  "exec-1",
		StrategyID:   "strat-1",
		StrategyType: strategyType,
		Config:       config,
		Wallet:       "0xwallet",
	}
}

func TestPlanPeriodicBuyEmitsApprovalThenSwap(t *testing.T) {
	quotes := &fakeQuotes{quote: goodQuote()}
	quotes.quote.NeedsApproval = true

	plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(StrategyPeriodicBuy, structuredConfig()))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, StepApproval, plan.Steps[0].Type)
	assert.Equal(t, "0xaaa", plan.Steps[0].TokenAddress)
	assert.Equal(t, "0xspender", plan.Steps[0].SpenderAddress)
	assert.Equal(t, "1000000", plan.Steps[0].RequiredAllowance)
	assert.True(t, plan.Steps[0].Tx.Empty(), "approval without prepared tx resolves via allowance read")
	assert.Equal(t, StepSwap, plan.Steps[1].Type)
	assert.Equal(t, "0xswapdata", plan.Steps[1].Tx.Data)
}

func TestPlanPeriodicBuyNoApprovalNeeded(t *testing.T) {
	quotes := &fakeQuotes{quote: goodQuote()}

	plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(StrategyPeriodicBuy, structuredConfig()))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, StepSwap, plan.Steps[0].Type)
}

func TestPlanPeriodicBuyUsesPreparedApprovalTx(t *testing.T) {
	quotes := &fakeQuotes{quote: goodQuote()}
	quotes.quote.NeedsApproval = true
	quotes.quote.ApprovalTx = &quote.TxRequest{To: "0xaaa", Data: "0xapprovedata", Value: "0", ChainID: 1}

	plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(StrategyPeriodicBuy, structuredConfig()))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "0xapprovedata", plan.Steps[0].Tx.Data)
}

func TestPlanLegacyFlatConfigShape(t *testing.T) {
	quotes := &fakeQuotes{quote: goodQuote()}

	plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(StrategyPeriodicBuy, legacyConfig()))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "0xaaa", quotes.lastReq.FromToken)
	assert.Equal(t, int64(1), quotes.lastReq.ChainID)
	assert.Equal(t, "100", quotes.lastReq.AmountUSD.String())
}

func TestPlanPriceTriggeredSkipsApprovalDetection(t *testing.T) {
	for _, strategyType := range []string{StrategyLimitOrder, StrategyStopLoss, StrategyTakeProfit} {
		t.Run(strategyType, func(t *testing.T) {
			quotes := &fakeQuotes{quote: goodQuote()}
			quotes.quote.NeedsApproval = true

			plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(strategyType, structuredConfig()))
			require.NoError(t, err)
			require.Len(t, plan.Steps, 1, "price-triggered strategies plan a bare swap step")
			assert.Equal(t, StepSwap, plan.Steps[0].Type)
		})
	}
}

func TestPlanQuoteWarningsPropagate(t *testing.T) {
	quotes := &fakeQuotes{quote: goodQuote()}
	quotes.quote.Warnings = []string{"low liquidity route", "price impact 2.3%"}

	plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(StrategyPeriodicBuy, structuredConfig()))
	require.NoError(t, err)
	assert.Equal(t, []string{"low liquidity route", "price impact 2.3%"}, plan.Warnings)
}

func TestPlanRebalancePlaceholder(t *testing.T) {
	quotes := &fakeQuotes{}

	plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(StrategyRebalance, nil))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, StepCustom, plan.Steps[0].Type)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "rebalance")
	assert.Zero(t, quotes.reqCount, "rebalance must not request quotes")
}

func TestPlanUnknownStrategyTypeDoesNotError(t *testing.T) {
	quotes := &fakeQuotes{}

	plan, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest("grid_trading", nil))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, StepCustom, plan.Steps[0].Type)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "grid_trading")
}

func TestPlanMissingWalletFails(t *testing.T) {
	req := planRequest(StrategyPeriodicBuy, structuredConfig())
	req.Wallet = ""

	_, err := New(&fakeQuotes{}, zap.NewNop()).Plan(context.Background(), req)
	require.Error(t, err)
	typed, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, clierr.CodeValidation, typed.Code)
}

func TestPlanMissingTokenConfigFails(t *testing.T) {
	_, err := New(&fakeQuotes{}, zap.NewNop()).Plan(context.Background(),
		planRequest(StrategyPeriodicBuy, map[string]any{"amountUsd": float64(50)}))
	require.Error(t, err)
	typed, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, clierr.CodeValidation, typed.Code)
	assert.True(t, typed.Recoverable)
}

func TestPlanQuoteFailureWrapped(t *testing.T) {
	quotes := &fakeQuotes{err: clierr.New(clierr.CodeQuote, "no route found")}

	_, err := New(quotes, zap.NewNop()).Plan(context.Background(), planRequest(StrategyPeriodicBuy, structuredConfig()))
	require.Error(t, err)
	typed, ok := clierr.As(err)
	require.True(t, ok, "typed quote error must survive wrapping")
	assert.Equal(t, clierr.CodeQuote, typed.Code)
}
