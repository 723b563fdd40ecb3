package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/outcome"
	"github.com/gustavo/tradeguard/internal/planner"
	"github.com/gustavo/tradeguard/internal/registry"
)

// PlanService builds the step sequence for an execution attempt.
type PlanService interface {
	Plan(ctx context.Context, req planner.Request) (planner.Plan, error)
}

// Sender signs and broadcasts a prepared transaction, returning its hash.
type Sender interface {
	Address() string
	Send(ctx context.Context, tx planner.StepTx) (string, error)
}

// AllowanceReader answers ERC-20 allowance queries.
type AllowanceReader interface {
	Allowance(ctx context.Context, chainID int64, token, owner, spender string) (*big.Int, error)
}

// OutcomeSink receives terminal execution outcomes.
type OutcomeSink interface {
	RecordSuccess(ctx context.Context, s outcome.Success) error
	RecordFailure(ctx context.Context, f outcome.Failure) error
}

// Request identifies one execution attempt handed to the machine.
type Request struct {
	ExecutionID  string
	StrategyID   string
	StrategyType string
	Config       map[string]any
	SessionID    string
	AmountUSD    decimal.Decimal
	Source       Source
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Machine drives plan steps one at a time through the wallet interface. It
// advances only on discrete external triggers: an Execute call sends at most
// one transaction and returns; confirmation arrives later through Deliver.
// Exactly one execution is live at a time.
type Machine struct {
	planner   PlanService
	sender    Sender
	reader    AllowanceReader
	outcomes  OutcomeSink
	processed outcome.ProcessedSet
	l         *zap.Logger

	mu        sync.Mutex
	phase     phase
	source    Source
	req       Request
	plan      *planner.Plan
	current   int
	txHash    string
	txChainID int64
	errMsg    string
}

func NewMachine(plans PlanService, sender Sender, reader AllowanceReader, outcomes OutcomeSink, processed outcome.ProcessedSet, l *zap.Logger) *Machine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Machine{
		planner:   plans,
		sender:    sender,
		reader:    reader,
		outcomes:  outcomes,
		processed: processed,
		l:         l,
		phase:     phaseIdle,
		source:    SourceUser,
	}
}

// State returns a snapshot. The plan pointer is shared but immutable once
// planned.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Source:      m.source,
		Status:      statusFor(m.source, m.phase),
		ExecutionID: m.req.ExecutionID,
		TxHash:      m.txHash,
		TxChainID:   m.txChainID,
		Error:       m.errMsg,
		Plan:        m.plan,
	}
	if m.plan != nil {
		st.CurrentStep = m.current
		st.TotalSteps = len(m.plan.Steps)
	}
	return st
}

// Execute starts a new execution, or advances an in-flight one that is
// waiting on its next step after an approval confirmed. Each call performs at
// most one send round-trip and returns.
func (m *Machine) Execute(ctx context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == phaseAwaitingMain && req.ExecutionID == m.req.ExecutionID {
		return m.advance(ctx)
	}
	if !m.phase.startable() {
		return clierr.New(clierr.CodeValidation,
			fmt.Sprintf("execution %s is already in progress (%s)", m.req.ExecutionID, statusFor(m.source, m.phase)))
	}

	m.resetLocked()
	m.req = req
	m.source = req.Source
	if m.source == "" {
		m.source = SourceUser
	}

	if m.sender == nil || strings.TrimSpace(m.sender.Address()) == "" {
		// No planner call, no transaction. Still surfaced to the backend as
		// recoverable so the user can connect a wallet and retry.
		return m.fail(ctx, clierr.New(clierr.CodeValidation, "no connected wallet"))
	}

	m.phase = phasePlanning
	plan, err := m.planner.Plan(ctx, planner.Request{
		ExecutionID:  req.ExecutionID,
		StrategyID:   req.StrategyID,
		StrategyType: req.StrategyType,
		Config:       req.Config,
		Wallet:       m.sender.Address(),
	})
	if err != nil {
		return m.fail(ctx, err)
	}
	m.plan = &plan
	m.current = 0
	m.l.Info("execution started",
		zap.String("execution_id", req.ExecutionID),
		zap.String("source", string(m.source)),
		zap.Int("steps", len(plan.Steps)))
	return m.advance(ctx)
}

// advance runs steps from the current position until one requires a send
// (returning with the tx in flight) or the plan is exhausted. Caller holds mu.
func (m *Machine) advance(ctx context.Context) error {
	for m.current < len(m.plan.Steps) {
		step := m.plan.Steps[m.current]
		if step.Type == planner.StepApproval {
			sent, err := m.runApproval(ctx, step)
			if err != nil {
				return m.fail(ctx, err)
			}
			if sent {
				return nil
			}
			// Allowance already sufficient; continue in the same call.
			m.current++
			continue
		}

		if step.Tx.Empty() {
			// A main step without transaction data means the quote layer
			// handed us an unusable plan, not a transient condition.
			return m.fail(ctx, clierr.New(clierr.CodeValidation,
				fmt.Sprintf("step %d (%s) has no transaction data", m.current+1, step.Type)))
		}
		m.phase = phaseAwaitingMain
		hash, err := m.sender.Send(ctx, step.Tx)
		if err != nil {
			return m.fail(ctx, err)
		}
		m.txHash = hash
		m.txChainID = step.Tx.ChainID
		m.phase = phaseMainSent
		return nil
	}

	// Every step resolved without a send (all approvals pre-satisfied).
	return m.complete(ctx, "")
}

// runApproval handles one approval step. Returns true when a transaction was
// sent and the machine must yield until confirmation.
func (m *Machine) runApproval(ctx context.Context, step planner.Step) (bool, error) {
	if !step.Tx.Empty() {
		m.phase = phaseAwaitingApproval
		hash, err := m.sender.Send(ctx, step.Tx)
		if err != nil {
			return false, err
		}
		m.txHash = hash
		m.txChainID = step.Tx.ChainID
		m.phase = phaseApprovalSent
		return true, nil
	}

	// No pre-built data: fall back to an on-chain allowance read rather than
	// sending an empty transaction.
	if m.reader == nil {
		return false, clierr.New(clierr.CodeValidation, "approval step has no transaction data and no chain reader is configured")
	}
	chainID := m.approvalChainID(step)
	required, ok := new(big.Int).SetString(step.RequiredAllowance, 10)
	if !ok || required.Sign() <= 0 {
		required = nil
	}

	allowance, err := m.reader.Allowance(ctx, chainID, step.TokenAddress, m.sender.Address(), step.SpenderAddress)
	if err != nil {
		return false, err
	}
	if required != nil && allowance.Cmp(required) >= 0 {
		m.l.Debug("allowance sufficient, skipping approval",
			zap.String("token", step.TokenAddress),
			zap.String("allowance", allowance.String()))
		return false, nil
	}

	amount := required
	if amount == nil {
		amount = maxUint256
	}
	data, err := registry.ApproveCalldata(step.SpenderAddress, amount)
	if err != nil {
		return false, clierr.Wrap(clierr.CodeInternal, "build approval calldata", err)
	}

	m.phase = phaseAwaitingApproval
	hash, err := m.sender.Send(ctx, planner.StepTx{
		To:      step.TokenAddress,
		Data:    data,
		Value:   "0",
		ChainID: chainID,
	})
	if err != nil {
		return false, err
	}
	m.txHash = hash
	m.txChainID = chainID
	m.phase = phaseApprovalSent
	return true, nil
}

// approvalChainID resolves the chain for an approval without prepared tx
// data from the following main step.
func (m *Machine) approvalChainID(step planner.Step) int64 {
	if step.Tx.ChainID != 0 {
		return step.Tx.ChainID
	}
	for i := m.current + 1; i < len(m.plan.Steps); i++ {
		if id := m.plan.Steps[i].Tx.ChainID; id != 0 {
			return id
		}
	}
	return 0
}

// Deliver feeds an external trigger into the machine: a confirmation-watcher
// callback or an asynchronous send failure. Events arriving outside a
// submitted phase are ignored.
func (m *Machine) Deliver(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != phaseApprovalSent && m.phase != phaseMainSent {
		m.l.Debug("event ignored outside submitted phase",
			zap.String("event", string(ev.Type)),
			zap.String("status", string(statusFor(m.source, m.phase))))
		return nil
	}

	switch ev.Type {
	case EventFailed:
		err := ev.Err
		if err == nil {
			err = clierr.New(clierr.CodeRPC, "transaction failed on chain")
		}
		return m.fail(ctx, err)
	case EventConfirmed:
		if ev.TxHash != "" {
			m.txHash = ev.TxHash
		}
		if m.phase == phaseApprovalSent {
			// Approval confirmed. Advance to the next step but yield: the
			// caller re-invokes Execute to send the main transaction.
			m.current++
			m.txHash = ""
			m.txChainID = 0
			m.phase = phaseAwaitingMain
			return nil
		}
		m.phase = phaseConfirming
		return m.complete(ctx, m.txHash)
	default:
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("unknown event type %q", ev.Type))
	}
}

// Dismiss abandons the pending execution. Allowed any time before
// completion; a second call is a no-op.
func (m *Machine) Dismiss(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == phaseIdle || m.phase.terminal() {
		return nil
	}

	dismissal := clierr.New(clierr.CodeUserDismissed, "execution dismissed by user")
	m.notifyFailure(ctx, dismissal)
	m.markProcessed(ctx)
	m.l.Info("execution dismissed", zap.String("execution_id", m.req.ExecutionID))
	m.errMsg = dismissal.Message
	m.phase = phaseDismissed
	m.plan = nil
	m.current = 0
	m.txHash = ""
	m.txChainID = 0
	return nil
}

// Reset returns the machine to idle, discarding any stale plan and error.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Machine) resetLocked() {
	m.phase = phaseIdle
	m.source = SourceUser
	m.req = Request{}
	m.plan = nil
	m.current = 0
	m.txHash = ""
	m.txChainID = 0
	m.errMsg = ""
}

// HandleBackendExecution offers a backend-approved execution to the machine.
// Idempotent under stale reads: processed IDs and a busy machine are both
// skipped silently, so an execution prompts at most once.
func (m *Machine) HandleBackendExecution(ctx context.Context, req Request) error {
	if m.processed != nil {
		done, err := m.processed.Contains(ctx, req.ExecutionID)
		if err != nil {
			return err
		}
		if done {
			m.l.Debug("execution already processed", zap.String("execution_id", req.ExecutionID))
			return nil
		}
	}

	m.mu.Lock()
	busy := !m.phase.startable()
	m.mu.Unlock()
	if busy {
		m.l.Debug("machine busy, ignoring backend execution", zap.String("execution_id", req.ExecutionID))
		return nil
	}

	req.Source = SourceBackend
	return m.Execute(ctx, req)
}

// complete settles the machine as completed and records the outcome. Caller
// holds mu.
func (m *Machine) complete(ctx context.Context, txHash string) error {
	var chainID int64
	if m.plan != nil && len(m.plan.Steps) > 0 {
		chainID = m.plan.Steps[len(m.plan.Steps)-1].Tx.ChainID
	}
	if m.outcomes != nil {
		err := m.outcomes.RecordSuccess(ctx, outcome.Success{
			ExecutionID: m.req.ExecutionID,
			TxHash:      txHash,
			ChainID:     chainID,
			ConfirmedAt: time.Now().UTC(),
			SessionID:   m.req.SessionID,
			AmountUSD:   m.req.AmountUSD,
		})
		if err != nil {
			// Local state stays authoritative; a recording fault must not
			// fail a confirmed execution.
			m.l.Error("record success failed", zap.String("execution_id", m.req.ExecutionID), zap.Error(err))
		}
	}
	m.markProcessed(ctx)
	m.phase = phaseCompleted
	m.txHash = txHash
	m.l.Info("execution completed",
		zap.String("execution_id", m.req.ExecutionID),
		zap.String("tx_hash", txHash))
	return nil
}

// fail settles the machine as failed, records the failure and returns the
// typed error to the caller. Caller holds mu.
func (m *Machine) fail(ctx context.Context, err error) error {
	m.phase = phaseFailed
	m.errMsg = err.Error()
	m.notifyFailure(ctx, err)
	m.markProcessed(ctx)
	m.l.Warn("execution failed",
		zap.String("execution_id", m.req.ExecutionID),
		zap.Error(err))
	return err
}

// notifyFailure reports a failure to the backend. Notification faults are
// logged only, never escalated.
func (m *Machine) notifyFailure(ctx context.Context, err error) {
	if m.outcomes == nil {
		return
	}
	recordErr := m.outcomes.RecordFailure(ctx, outcome.Failure{
		ExecutionID:  m.req.ExecutionID,
		ErrorMessage: err.Error(),
		ErrorCode:    clierr.CodeOf(err),
		Recoverable:  clierr.Recoverable(err),
		SessionID:    m.req.SessionID,
		FailedAt:     time.Now().UTC(),
	})
	if recordErr != nil {
		m.l.Error("record failure failed",
			zap.String("execution_id", m.req.ExecutionID),
			zap.Error(recordErr))
	}
}

func (m *Machine) markProcessed(ctx context.Context) {
	if m.processed == nil || m.source != SourceBackend || m.req.ExecutionID == "" {
		return
	}
	if err := m.processed.Mark(ctx, m.req.ExecutionID); err != nil {
		m.l.Error("mark processed failed",
			zap.String("execution_id", m.req.ExecutionID),
			zap.Error(err))
	}
}
