package ops

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const routerABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "tokenA", "type": "address"}, {"internalType": "address", "name": "tokenB", "type": "address"}, {"internalType": "uint256", "name": "amountADesired", "type": "uint256"}, {"internalType": "uint256", "name": "amountBDesired", "type": "uint256"}, {"internalType": "uint256", "name": "amountAMin", "type": "uint256"}, {"internalType": "uint256", "name": "amountBMin", "type": "uint256"}, {"internalType": "address", "name": "to", "type": "address"}, {"internalType": "uint256", "name": "deadline", "type": "uint256"}], "name": "addLiquidity", "outputs": [{"internalType": "uint256", "name": "amountA", "type": "uint256"}, {"internalType": "uint256", "name": "amountB", "type": "uint256"}, {"internalType": "uint256", "name": "liquidity", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "token", "type": "address"}, {"internalType": "uint256", "name": "amountTokenDesired", "type": "uint256"}, {"internalType": "uint256", "name": "amountTokenMin", "type": "uint256"}, {"internalType": "uint256", "name": "amountETHMin", "type": "uint256"}, {"internalType": "address", "name": "to", "type": "address"}, {"internalType": "uint256", "name": "deadline", "type": "uint256"}], "name": "addLiquidityETH", "outputs": [{"internalType": "uint256", "name": "amountToken", "type": "uint256"}, {"internalType": "uint256", "name": "amountETH", "type": "uint256"}, {"internalType": "uint256", "name": "liquidity", "type": "uint256"}], "stateMutability": "payable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "tokenA", "type": "address"}, {"internalType": "address", "name": "tokenB", "type": "address"}, {"internalType": "uint256", "name": "liquidity", "type": "uint256"}, {"internalType": "uint256", "name": "amountAMin", "type": "uint256"}, {"internalType": "uint256", "name": "amountBMin", "type": "uint256"}, {"internalType": "address", "name": "to", "type": "address"}, {"internalType": "uint256", "name": "deadline", "type": "uint256"}], "name": "removeLiquidity", "outputs": [{"internalType": "uint256", "name": "amountA", "type": "uint256"}, {"internalType": "uint256", "name": "amountB", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "token", "type": "address"}, {"internalType": "uint256", "name": "liquidity", "type": "uint256"}, {"internalType": "uint256", "name": "amountTokenMin", "type": "uint256"}, {"internalType": "uint256", "name": "amountETHMin", "type": "uint256"}, {"internalType": "address", "name": "to", "type": "address"}, {"internalType": "uint256", "name": "deadline", "type": "uint256"}], "name": "removeLiquidityETH", "outputs": [{"internalType": "uint256", "name": "amountToken", "type": "uint256"}, {"internalType": "uint256", "name": "amountETH", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"}
]`

const stakingABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "pool", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "deposit", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "pool", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "withdraw", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "pool", "type": "address"}], "name": "harvest", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	routerABI     abi.ABI
	stakingABI    abi.ABI
	abiOnce       sync.Once
	routerABIErr  error
	stakingABIErr error
)

func loadABIs() error {
	abiOnce.Do(func() {
		routerABI, routerABIErr = abi.JSON(strings.NewReader(routerABIJSON))
		stakingABI, stakingABIErr = abi.JSON(strings.NewReader(stakingABIJSON))
	})
	if routerABIErr != nil {
		return routerABIErr
	}
	return stakingABIErr
}

func deadlineArg(deadline time.Time) *big.Int {
	return big.NewInt(deadline.Unix())
}

// Minimum-out amounts are hard-coded to zero: the request's slippage
// tolerance is validated but not enforced in the built transaction.
var zeroMin = big.NewInt(0)

func packAddLiquidity(tokenA, tokenB, to common.Address, amountA, amountB *big.Int, deadline time.Time) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := routerABI.Pack("addLiquidity", tokenA, tokenB, amountA, amountB, zeroMin, zeroMin, to, deadlineArg(deadline))
	if err != nil {
		return nil, fmt.Errorf("pack addLiquidity: %w", err)
	}
	return data, nil
}

func packAddLiquidityETH(token, to common.Address, amountToken *big.Int, deadline time.Time) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := routerABI.Pack("addLiquidityETH", token, amountToken, zeroMin, zeroMin, to, deadlineArg(deadline))
	if err != nil {
		return nil, fmt.Errorf("pack addLiquidityETH: %w", err)
	}
	return data, nil
}

func packRemoveLiquidity(tokenA, tokenB, to common.Address, liquidity *big.Int, deadline time.Time) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := routerABI.Pack("removeLiquidity", tokenA, tokenB, liquidity, zeroMin, zeroMin, to, deadlineArg(deadline))
	if err != nil {
		return nil, fmt.Errorf("pack removeLiquidity: %w", err)
	}
	return data, nil
}

func packRemoveLiquidityETH(token, to common.Address, liquidity *big.Int, deadline time.Time) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := routerABI.Pack("removeLiquidityETH", token, liquidity, zeroMin, zeroMin, to, deadlineArg(deadline))
	if err != nil {
		return nil, fmt.Errorf("pack removeLiquidityETH: %w", err)
	}
	return data, nil
}

func packDeposit(pool common.Address, amount *big.Int) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := stakingABI.Pack("deposit", pool, amount)
	if err != nil {
		return nil, fmt.Errorf("pack deposit: %w", err)
	}
	return data, nil
}

func packWithdraw(pool common.Address, amount *big.Int) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := stakingABI.Pack("withdraw", pool, amount)
	if err != nil {
		return nil, fmt.Errorf("pack withdraw: %w", err)
	}
	return data, nil
}

func packHarvest(pool common.Address) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := stakingABI.Pack("harvest", pool)
	if err != nil {
		return nil, fmt.Errorf("pack harvest: %w", err)
	}
	return data, nil
}
