package wallet

import (
	"context"
	"errors"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

const defaultPollInterval = 3 * time.Second

// Watcher polls for transaction receipts. It imposes no timeout of its own;
// callers bound the wait through ctx.
type Watcher struct {
	pool     *ClientPool
	interval time.Duration
	l        *zap.Logger
}

func NewWatcher(pool *ClientPool, l *zap.Logger) *Watcher {
	if l == nil {
		l = zap.NewNop()
	}
	return &Watcher{pool: pool, interval: defaultPollInterval, l: l}
}

// Await blocks until the transaction is mined or ctx expires. A mined
// transaction that reverted returns a CodeRPC error alongside the receipt.
func (w *Watcher) Await(ctx context.Context, chainID int64, txHash string) (*types.Receipt, error) {
	client, err := w.pool.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, clierr.New(clierr.CodeRPC, "transaction reverted on chain")
			}
			w.l.Info("transaction confirmed",
				zap.String("tx_hash", txHash),
				zap.Int64("chain_id", chainID),
				zap.Uint64("block", receipt.BlockNumber.Uint64()))
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// still pending
		case ctx.Err() != nil:
			return nil, clierr.Wrap(clierr.CodeRPC, "confirmation wait aborted", ctx.Err())
		default:
			w.l.Debug("receipt poll failed", zap.String("tx_hash", txHash), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, clierr.Wrap(clierr.CodeRPC, "confirmation wait aborted", ctx.Err())
		case <-ticker.C:
		}
	}
}
