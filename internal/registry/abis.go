package registry

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ERC20MinimalABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`
)

var (
	erc20Once sync.Once
	erc20ABI  abi.ABI
	erc20Err  error
)

func erc20() (abi.ABI, error) {
	erc20Once.Do(func() {
		erc20ABI, erc20Err = abi.JSON(strings.NewReader(ERC20MinimalABI))
	})
	return erc20ABI, erc20Err
}

// ApproveCalldata builds ERC-20 approve(spender, amount) calldata as a
// 0x-prefixed hex string.
func ApproveCalldata(spender string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(spender) {
		return "", fmt.Errorf("invalid spender address %q", spender)
	}
	parsed, err := erc20()
	if err != nil {
		return "", err
	}
	data, err := parsed.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(data), nil
}
