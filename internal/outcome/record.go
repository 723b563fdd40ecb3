package outcome

import (
	"time"

	"github.com/shopspring/decimal"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

// RecordStatus is the terminal disposition of an execution.
type RecordStatus string

const (
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// Success describes a confirmed execution.
type Success struct {
	ExecutionID string          `json:"execution_id"`
	TxHash      string          `json:"tx_hash"`
	ChainID     int64           `json:"chain_id,omitempty"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
	SessionID   string          `json:"session_id,omitempty"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
}

// Failure describes a failed, dismissed or cancelled execution.
type Failure struct {
	ExecutionID  string      `json:"execution_id"`
	ErrorMessage string      `json:"error_message"`
	ErrorCode    clierr.Code `json:"error_code"`
	Recoverable  bool        `json:"recoverable"`
	SessionID    string      `json:"session_id,omitempty"`
	FailedAt     time.Time   `json:"failed_at"`
}

// Record is the persisted outcome row.
type Record struct {
	ExecutionID  string          `json:"execution_id"`
	Status       RecordStatus    `json:"status"`
	TxHash       string          `json:"tx_hash,omitempty"`
	ChainID      int64           `json:"chain_id,omitempty"`
	ConfirmedAt  time.Time       `json:"confirmed_at,omitzero"`
	SessionID    string          `json:"session_id,omitempty"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ErrorCode    clierr.Code     `json:"error_code,omitempty"`
	Recoverable  bool            `json:"recoverable,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
