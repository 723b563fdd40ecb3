package outcome

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder persists execution outcomes and drives session-budget
// consumption. It is the sole writer of session usage: on a confirmed
// success tied to a session, the executed amount is applied atomically
// through the ledger, never incremented locally by callers.
type Recorder struct {
	store  *Store
	ledger SessionLedger
	l      *zap.Logger
}

func NewRecorder(store *Store, ledger SessionLedger, l *zap.Logger) *Recorder {
	if l == nil {
		l = zap.NewNop()
	}
	return &Recorder{store: store, ledger: ledger, l: l}
}

// RecordSuccess persists a completed execution and applies its session
// budget consumption. The ledger apply is idempotent on execution ID, so a
// retried call cannot double-count.
func (r *Recorder) RecordSuccess(ctx context.Context, s Success) error {
	if s.ConfirmedAt.IsZero() {
		s.ConfirmedAt = time.Now().UTC()
	}
	record := Record{
		ExecutionID: s.ExecutionID,
		Status:      RecordCompleted,
		TxHash:      s.TxHash,
		ChainID:     s.ChainID,
		ConfirmedAt: s.ConfirmedAt,
		SessionID:   s.SessionID,
		AmountUSD:   s.AmountUSD,
	}
	if err := r.store.Save(record); err != nil {
		return err
	}

	if s.SessionID != "" && r.ledger != nil {
		total, err := r.ledger.Apply(ctx, s.SessionID, s.ExecutionID, s.AmountUSD)
		if err != nil {
			return err
		}
		r.l.Info("session usage applied",
			zap.String("session_id", s.SessionID),
			zap.String("execution_id", s.ExecutionID),
			zap.String("amount_usd", s.AmountUSD.String()),
			zap.String("total_used_usd", total.String()))
	}
	return nil
}

// RecordFailure persists a failed, dismissed or cancelled execution.
// Failures never touch the session ledger.
func (r *Recorder) RecordFailure(ctx context.Context, f Failure) error {
	_ = ctx
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}
	return r.store.Save(Record{
		ExecutionID:  f.ExecutionID,
		Status:       RecordFailed,
		SessionID:    f.SessionID,
		ErrorMessage: f.ErrorMessage,
		ErrorCode:    f.ErrorCode,
		Recoverable:  f.Recoverable,
	})
}
