package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "owner", "type": "address"}, {"internalType": "address", "name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "spender", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "approve", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	erc20ABI    abi.ABI
	erc20Once   sync.Once
	erc20ABIErr error
)

func getERC20ABI() (abi.ABI, error) {
	erc20Once.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

// MaxAllowance is the unbounded ERC-20 approval amount (2^256-1).
func MaxAllowance() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}

// PackAllowance encodes an allowance(owner, spender) call.
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	tokenABI, err := getERC20ABI()
	if err != nil {
		return nil, err
	}
	data, err := tokenABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	return data, nil
}

// UnpackAllowance decodes the allowance call result.
func UnpackAllowance(resp []byte) (*big.Int, error) {
	tokenABI, err := getERC20ABI()
	if err != nil {
		return nil, err
	}
	values, err := tokenABI.Unpack("allowance", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected allowance result arity: %d", len(values))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance result type: %T", values[0])
	}
	return amount, nil
}

// PackApprove encodes an approve(spender, amount) call.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	tokenABI, err := getERC20ABI()
	if err != nil {
		return nil, err
	}
	data, err := tokenABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}
