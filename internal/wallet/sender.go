package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/planner"
)

const defaultGasMultiplier = 1.2

// RPCSender signs and broadcasts prepared step transactions. It submits and
// returns the hash; confirmation is observed separately by the Watcher,
// never awaited here.
type RPCSender struct {
	pool          *ClientPool
	signer        Signer
	gasMultiplier float64
	l             *zap.Logger
}

func NewRPCSender(pool *ClientPool, signer Signer, l *zap.Logger) *RPCSender {
	if l == nil {
		l = zap.NewNop()
	}
	return &RPCSender{
		pool:          pool,
		signer:        signer,
		gasMultiplier: defaultGasMultiplier,
		l:             l,
	}
}

func (s *RPCSender) Address() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Address().Hex()
}

func (s *RPCSender) Send(ctx context.Context, tx planner.StepTx) (string, error) {
	if s.signer == nil {
		return "", clierr.New(clierr.CodeValidation, "no connected wallet")
	}
	if strings.TrimSpace(tx.To) == "" || !common.IsHexAddress(tx.To) {
		return "", clierr.New(clierr.CodeValidation, "transaction target address is invalid")
	}
	data, err := decodeHex(tx.Data)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeValidation, "decode transaction calldata", err)
	}
	value, err := parseValue(tx.Value)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeValidation, "parse transaction value", err)
	}

	client, err := s.pool.Client(ctx, tx.ChainID)
	if err != nil {
		return "", err
	}

	chainID := big.NewInt(tx.ChainID)
	target := common.HexToAddress(tx.To)
	msg := ethereum.CallMsg{From: s.signer.Address(), To: &target, Value: value, Data: data}

	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeRPC, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * s.gasMultiplier)

	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeRPC, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := client.PendingNonceAt(ctx, s.signer.Address())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeRPC, "fetch nonce", err)
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := s.signer.SignTx(chainID, unsigned)
	if err != nil {
		return "", mapSignError(err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", clierr.Wrap(clierr.CodeRPC, "broadcast transaction", err)
	}

	hash := signed.Hash().Hex()
	s.l.Info("transaction submitted",
		zap.String("tx_hash", hash),
		zap.Int64("chain_id", tx.ChainID),
		zap.String("to", target.Hex()))
	return hash, nil
}

// mapSignError distinguishes a user declining in their wallet from a signing
// fault, so retry UX can differ.
func mapSignError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied") {
		return clierr.Wrap(clierr.CodeWalletRejected, "wallet rejected transaction", err)
	}
	return clierr.Wrap(clierr.CodeValidation, "sign transaction", err)
}

func parseValue(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(clean, "0x") {
		value, ok := new(big.Int).SetString(strings.TrimPrefix(clean, "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex value %q", v)
		}
		return value, nil
	}
	value, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", v)
	}
	return value, nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex %q", v)
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
