package executor

import "github.com/gustavo/tradeguard/internal/planner"

// Source distinguishes who initiated an execution. User-initiated and
// backend-initiated signing share one transition protocol and differ only in
// the status names surfaced to observers.
type Source string

const (
	SourceUser    Source = "user"
	SourceBackend Source = "backend"
)

// Status is the externally observable machine state.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusPreparing          Status = "preparing"
	StatusAwaitingApprovalTx Status = "awaiting_approval_tx"
	StatusApproving          Status = "approving"
	StatusAwaitingMainTx     Status = "awaiting_main_tx"
	StatusExecuting          Status = "executing"
	StatusConfirming         Status = "confirming"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"

	// Backend-initiated flow.
	StatusFetchingQuote     Status = "fetching_quote"
	StatusAwaitingSignature Status = "awaiting_signature"
	StatusSigning           Status = "signing"
	StatusDismissed         Status = "dismissed"
)

// phase is the internal position in the shared protocol; the observable
// Status is derived from phase and source.
type phase int

const (
	phaseIdle phase = iota
	phasePlanning
	phaseAwaitingApproval
	phaseApprovalSent
	phaseAwaitingMain
	phaseMainSent
	phaseConfirming
	phaseCompleted
	phaseFailed
	phaseDismissed
)

func statusFor(source Source, p phase) Status {
	if source == SourceBackend {
		switch p {
		case phasePlanning:
			return StatusFetchingQuote
		case phaseAwaitingApproval, phaseAwaitingMain:
			return StatusAwaitingSignature
		case phaseApprovalSent, phaseMainSent:
			return StatusSigning
		case phaseDismissed:
			return StatusDismissed
		}
	}
	switch p {
	case phaseIdle:
		return StatusIdle
	case phasePlanning:
		return StatusPreparing
	case phaseAwaitingApproval:
		return StatusAwaitingApprovalTx
	case phaseApprovalSent:
		return StatusApproving
	case phaseAwaitingMain:
		return StatusAwaitingMainTx
	case phaseMainSent:
		return StatusExecuting
	case phaseConfirming:
		return StatusConfirming
	case phaseCompleted:
		return StatusCompleted
	case phaseFailed:
		return StatusFailed
	case phaseDismissed:
		return StatusCancelled
	}
	return StatusIdle
}

// startable reports whether a new execution may take over the machine.
// A failed machine requires an explicit Reset first.
func (p phase) startable() bool {
	return p == phaseIdle || p == phaseCompleted || p == phaseDismissed
}

func (p phase) terminal() bool {
	return p == phaseCompleted || p == phaseFailed || p == phaseDismissed
}

// State is a point-in-time snapshot of the machine. Progress is observed
// through snapshots across async callbacks, not through return values.
type State struct {
	Source      Source        `json:"source"`
	Status      Status        `json:"status"`
	ExecutionID string        `json:"execution_id,omitempty"`
	CurrentStep int           `json:"current_step"`
	TotalSteps  int           `json:"total_steps"`
	TxHash      string        `json:"tx_hash,omitempty"`
	TxChainID   int64         `json:"tx_chain_id,omitempty"`
	Error       string        `json:"error,omitempty"`
	Plan        *planner.Plan `json:"plan,omitempty"`
}

// EventType classifies external triggers delivered to the machine.
type EventType string

const (
	EventConfirmed EventType = "confirmed"
	EventFailed    EventType = "failed"
)

// Event is one external trigger: a confirmation-watcher callback or a send
// failure surfaced asynchronously.
type Event struct {
	Type   EventType
	TxHash string
	Err    error
}
