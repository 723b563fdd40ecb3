package quote

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxRequest is a prepared transaction returned by the routing service,
// ready to hand to the wallet layer.
type TxRequest struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID int64  `json:"chain_id"`
}

func (t TxRequest) Empty() bool {
	return t.Data == "" || t.Data == "0x"
}

// SwapRequest asks the routing service for a swap route. Amount is given in
// USD; the service resolves it to token base units.
type SwapRequest struct {
	ChainID     int64
	FromToken   string
	ToToken     string
	AmountUSD   decimal.Decimal
	SlippageBps int64
	Wallet      string
}

// Quote is the routing service's answer for one planning attempt. Quotes are
// requested fresh per attempt; nothing here may be cached or reused.
type Quote struct {
	TxRequest       TxRequest
	ApprovalAddress string
	NeedsApproval   bool
	// ApprovalTx is a provider-prepared approval transaction, when the
	// route includes one. Absent it, the executor resolves the approval
	// via an on-chain allowance read.
	ApprovalTx *TxRequest
	// FromAmount is the spend amount in token base units, when resolved.
	FromAmount   string
	EstimatedOut decimal.Decimal
	Warnings     []string
}

// Service obtains swap quotes from the external routing provider.
type Service interface {
	Swap(ctx context.Context, req SwapRequest) (Quote, error)
}
