package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/outcome"
	"github.com/gustavo/tradeguard/internal/planner"
)

type fakePlanner struct {
	plan  planner.Plan
	err   error
	calls int
}

func (f *fakePlanner) Plan(_ context.Context, req planner.Request) (planner.Plan, error) {
	f.calls++
	if f.err != nil {
		return planner.Plan{}, f.err
	}
	p := f.plan
	p.ExecutionID = req.ExecutionID
	return p, nil
}

type fakeSender struct {
	address string
	err     error
	sends   []planner.StepTx
}

func (f *fakeSender) Address() string { return f.address }

func (f *fakeSender) Send(_ context.Context, tx planner.StepTx) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sends = append(f.sends, tx)
	return fmt.Sprintf("0xhash%d", len(f.sends)), nil
}

type fakeReader struct {
	allowance *big.Int
	err       error
	calls     int
}

func (f *fakeReader) Allowance(context.Context, int64, string, string, string) (*big.Int, error) {
	f.calls++
	return f.allowance, f.err
}

type fakeSink struct {
	successes  []outcome.Success
	failures   []outcome.Failure
	successErr error
}

func (f *fakeSink) RecordSuccess(_ context.Context, s outcome.Success) error {
	f.successes = append(f.successes, s)
	return f.successErr
}

func (f *fakeSink) RecordFailure(_ context.Context, fl outcome.Failure) error {
	f.failures = append(f.failures, fl)
	return nil
}

func swapPlan() planner.Plan {
	return planner.Plan{
		StrategyID:   "strat-1",
		StrategyType: planner.StrategyPeriodicBuy,
		Steps: []planner.Step{{
			Type:        planner.StepSwap,
			Description: "swap",
			Tx:          planner.StepTx{To: "0xrouter", Data: "0xdead", Value: "0", ChainID: 1},
		}},
	}
}

func approvalPlan(approvalTx planner.StepTx) planner.Plan {
	p := swapPlan()
	p.Steps = append([]planner.Step{{
		Type:              planner.StepApproval,
		Description:       "approve",
		Tx:                approvalTx,
		TokenAddress:      "0x1111111111111111111111111111111111111111",
		SpenderAddress:    "0x2222222222222222222222222222222222222222",
		RequiredAllowance: "1000",
	}}, p.Steps...)
	return p
}

func newTestMachine(plans *fakePlanner, sender *fakeSender, reader *fakeReader, sink *fakeSink) *Machine {
	return NewMachine(plans, sender, reader, sink, outcome.NewMemoryProcessedSet(), nil)
}

func TestExecuteWithoutWalletFailsBeforePlanning(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: ""}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	err := m.Execute(context.Background(), Request{ExecutionID: "exec-1", StrategyType: planner.StrategyPeriodicBuy})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeValidation, clierr.CodeOf(err))
	assert.Equal(t, 0, plans.calls)
	assert.Empty(t, sender.sends)
	assert.Equal(t, StatusFailed, m.State().Status)

	require.Len(t, sink.failures, 1)
	assert.True(t, sink.failures[0].Recoverable)
}

func TestExecuteSingleSwapThroughConfirmation(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	ctx := context.Background()
	require.NoError(t, m.Execute(ctx, Request{
		ExecutionID: "exec-1",
		AmountUSD:   decimal.NewFromInt(100),
		SessionID:   "sess-1",
	}))

	st := m.State()
	assert.Equal(t, StatusExecuting, st.Status)
	assert.Equal(t, "0xhash1", st.TxHash)
	require.Len(t, sender.sends, 1)

	require.NoError(t, m.Deliver(ctx, Event{Type: EventConfirmed, TxHash: "0xhash1"}))
	assert.Equal(t, StatusCompleted, m.State().Status)

	require.Len(t, sink.successes, 1)
	assert.Equal(t, "exec-1", sink.successes[0].ExecutionID)
	assert.Equal(t, "0xhash1", sink.successes[0].TxHash)
	assert.Equal(t, "sess-1", sink.successes[0].SessionID)
	assert.True(t, decimal.NewFromInt(100).Equal(sink.successes[0].AmountUSD))
	assert.Empty(t, sink.failures)
}

func TestExecuteApprovalThenSwap(t *testing.T) {
	prebuilt := planner.StepTx{To: "0xtoken", Data: "0xapprovebytes", Value: "0", ChainID: 1}
	plans := &fakePlanner{plan: approvalPlan(prebuilt)}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	ctx := context.Background()
	req := Request{ExecutionID: "exec-1"}
	require.NoError(t, m.Execute(ctx, req))

	// The pre-built approval goes out and the machine yields.
	assert.Equal(t, StatusApproving, m.State().Status)
	require.Len(t, sender.sends, 1)
	assert.Equal(t, "0xtoken", sender.sends[0].To)

	// Approval confirmed: next step only on re-invocation.
	require.NoError(t, m.Deliver(ctx, Event{Type: EventConfirmed}))
	assert.Equal(t, StatusAwaitingMainTx, m.State().Status)
	require.Len(t, sender.sends, 1)

	require.NoError(t, m.Execute(ctx, req))
	assert.Equal(t, StatusExecuting, m.State().Status)
	require.Len(t, sender.sends, 2)
	assert.Equal(t, "0xrouter", sender.sends[1].To)

	require.NoError(t, m.Deliver(ctx, Event{Type: EventConfirmed}))
	assert.Equal(t, StatusCompleted, m.State().Status)
	require.Len(t, sink.successes, 1)
}

func TestEmptyApprovalDataFallsBackToAllowanceRead(t *testing.T) {
	plans := &fakePlanner{plan: approvalPlan(planner.StepTx{Data: "0x"})}
	sender := &fakeSender{address: "0xwallet"}
	reader := &fakeReader{allowance: big.NewInt(0)}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, reader, sink)

	require.NoError(t, m.Execute(context.Background(), Request{ExecutionID: "exec-1"}))

	assert.Equal(t, 1, reader.calls)
	require.Len(t, sender.sends, 1)
	// The built approval targets the token contract, never an empty payload.
	sent := sender.sends[0]
	assert.Equal(t, "0x1111111111111111111111111111111111111111", sent.To)
	assert.True(t, strings.HasPrefix(sent.Data, "0x095ea7b3")) // approve selector
	assert.Equal(t, int64(1), sent.ChainID)
	assert.Equal(t, StatusApproving, m.State().Status)
}

func TestSufficientAllowanceContinuesInSameCall(t *testing.T) {
	plans := &fakePlanner{plan: approvalPlan(planner.StepTx{})}
	sender := &fakeSender{address: "0xwallet"}
	reader := &fakeReader{allowance: big.NewInt(5000)}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, reader, sink)

	require.NoError(t, m.Execute(context.Background(), Request{ExecutionID: "exec-1"}))

	assert.Equal(t, 1, reader.calls)
	require.Len(t, sender.sends, 1)
	assert.Equal(t, "0xrouter", sender.sends[0].To)
	assert.Equal(t, StatusExecuting, m.State().Status)
}

func TestMainStepWithoutDataFails(t *testing.T) {
	plan := swapPlan()
	plan.Steps[0].Tx.Data = ""
	plans := &fakePlanner{plan: plan}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	err := m.Execute(context.Background(), Request{ExecutionID: "exec-1"})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeValidation, clierr.CodeOf(err))
	assert.Empty(t, sender.sends)
	assert.Equal(t, StatusFailed, m.State().Status)
	require.Len(t, sink.failures, 1)
	assert.True(t, sink.failures[0].Recoverable)
}

func TestPlannerErrorFailsRecoverable(t *testing.T) {
	plans := &fakePlanner{err: clierr.New(clierr.CodeQuote, "quote service unavailable")}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	err := m.Execute(context.Background(), Request{ExecutionID: "exec-1"})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeQuote, clierr.CodeOf(err))
	assert.Equal(t, StatusFailed, m.State().Status)
	require.Len(t, sink.failures, 1)
	assert.True(t, sink.failures[0].Recoverable)
}

func TestDeliverFailedEventSettlesFailed(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	ctx := context.Background()
	require.NoError(t, m.Execute(ctx, Request{ExecutionID: "exec-1"}))
	require.Error(t, m.Deliver(ctx, Event{Type: EventFailed, Err: clierr.New(clierr.CodeRPC, "reverted")}))

	st := m.State()
	assert.Equal(t, StatusFailed, st.Status)
	assert.Contains(t, st.Error, "reverted")
	require.Len(t, sink.failures, 1)
}

func TestDismissTwiceIsNoOpSecondTime(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	ctx := context.Background()
	require.NoError(t, m.Execute(ctx, Request{ExecutionID: "exec-1"}))
	require.NoError(t, m.Dismiss(ctx))

	require.Len(t, sink.failures, 1)
	assert.Equal(t, clierr.CodeUserDismissed, sink.failures[0].ErrorCode)
	assert.True(t, sink.failures[0].Recoverable)
	assert.Equal(t, "execution dismissed by user", m.State().Error)

	require.NoError(t, m.Dismiss(ctx))
	assert.Len(t, sink.failures, 1)
}

func TestBackendFlowUsesBackendStatusesAndMarksProcessed(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	processed := outcome.NewMemoryProcessedSet()
	m := NewMachine(plans, sender, nil, sink, processed, nil)

	ctx := context.Background()
	require.NoError(t, m.HandleBackendExecution(ctx, Request{ExecutionID: "exec-9"}))
	assert.Equal(t, StatusSigning, m.State().Status)

	require.NoError(t, m.Deliver(ctx, Event{Type: EventConfirmed, TxHash: "0xhash1"}))
	assert.Equal(t, StatusCompleted, m.State().Status)

	done, err := processed.Contains(ctx, "exec-9")
	require.NoError(t, err)
	assert.True(t, done)

	// Re-offering the processed execution never replans.
	require.NoError(t, m.HandleBackendExecution(ctx, Request{ExecutionID: "exec-9"}))
	assert.Equal(t, 1, plans.calls)
}

func TestBackendExecutionIgnoredWhileBusy(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	ctx := context.Background()
	require.NoError(t, m.Execute(ctx, Request{ExecutionID: "exec-1"}))
	require.NoError(t, m.HandleBackendExecution(ctx, Request{ExecutionID: "exec-2"}))

	assert.Equal(t, 1, plans.calls)
	assert.Equal(t, "exec-1", m.State().ExecutionID)
}

func TestDismissalMarksBackendExecutionProcessed(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	processed := outcome.NewMemoryProcessedSet()
	m := NewMachine(plans, sender, nil, sink, processed, nil)

	ctx := context.Background()
	require.NoError(t, m.HandleBackendExecution(ctx, Request{ExecutionID: "exec-9"}))
	require.NoError(t, m.Dismiss(ctx))

	assert.Equal(t, StatusDismissed, m.State().Status)
	done, err := processed.Contains(ctx, "exec-9")
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, m.HandleBackendExecution(ctx, Request{ExecutionID: "exec-9"}))
	assert.Equal(t, 1, plans.calls)
}

func TestRecordSuccessFaultDoesNotFailCompletion(t *testing.T) {
	plans := &fakePlanner{plan: swapPlan()}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{successErr: clierr.New(clierr.CodeBackendNotify, "backend unreachable")}
	m := newTestMachine(plans, sender, nil, sink)

	ctx := context.Background()
	require.NoError(t, m.Execute(ctx, Request{ExecutionID: "exec-1"}))
	require.NoError(t, m.Deliver(ctx, Event{Type: EventConfirmed, TxHash: "0xhash1"}))
	assert.Equal(t, StatusCompleted, m.State().Status)
}

func TestResetClearsStalePlanAndError(t *testing.T) {
	plans := &fakePlanner{err: clierr.New(clierr.CodeQuote, "quote failed")}
	sender := &fakeSender{address: "0xwallet"}
	sink := &fakeSink{}
	m := newTestMachine(plans, sender, nil, sink)

	require.Error(t, m.Execute(context.Background(), Request{ExecutionID: "exec-1"}))
	require.Equal(t, StatusFailed, m.State().Status)

	m.Reset()
	st := m.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.Error)
	assert.Nil(t, st.Plan)
}

func TestEventIgnoredWhenIdle(t *testing.T) {
	m := newTestMachine(&fakePlanner{plan: swapPlan()}, &fakeSender{address: "0xwallet"}, nil, &fakeSink{})
	require.NoError(t, m.Deliver(context.Background(), Event{Type: EventConfirmed}))
	assert.Equal(t, StatusIdle, m.State().Status)
}
