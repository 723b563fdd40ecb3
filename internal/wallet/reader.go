package wallet

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/registry"
)

// ChainReader answers on-chain read queries used while executing a plan,
// currently just ERC-20 allowances.
type ChainReader struct {
	pool *ClientPool

	once   sync.Once
	erc20  abi.ABI
	abiErr error
}

func NewChainReader(pool *ClientPool) *ChainReader {
	return &ChainReader{pool: pool}
}

func (r *ChainReader) abi() (abi.ABI, error) {
	r.once.Do(func() {
		r.erc20, r.abiErr = abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	})
	return r.erc20, r.abiErr
}

// Allowance returns how much of token the owner has approved spender to move.
func (r *ChainReader) Allowance(ctx context.Context, chainID int64, token, owner, spender string) (*big.Int, error) {
	if !common.IsHexAddress(token) || !common.IsHexAddress(owner) || !common.IsHexAddress(spender) {
		return nil, clierr.New(clierr.CodeValidation, "allowance query has an invalid address")
	}
	parsed, err := r.abi()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse erc20 abi", err)
	}
	client, err := r.pool.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}

	input, err := parsed.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance call", err)
	}
	target := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeRPC, "read allowance", err)
	}
	values, err := parsed.Unpack("allowance", out)
	if err != nil || len(values) != 1 {
		return nil, clierr.Wrap(clierr.CodeRPC, "decode allowance result", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeRPC, "allowance result has unexpected type")
	}
	return allowance, nil
}
