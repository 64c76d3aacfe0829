package pools

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"ammdesk/internal/chain"
)

const pairABIJSON = `[
  {"inputs": [], "name": "getReserves", "outputs": [{"internalType": "uint112", "name": "_reserve0", "type": "uint112"}, {"internalType": "uint112", "name": "_reserve1", "type": "uint112"}, {"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token0", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const factoryABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "tokenA", "type": "address"}, {"internalType": "address", "name": "tokenB", "type": "address"}], "name": "createPair", "outputs": [{"internalType": "address", "name": "pair", "type": "address"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "tokenA", "type": "address"}, {"internalType": "address", "name": "tokenB", "type": "address"}], "name": "getPair", "outputs": [{"internalType": "address", "name": "pair", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

var (
	pairABI       abi.ABI
	factoryABI    abi.ABI
	pairABIOnce   sync.Once
	pairABIErr    error
	factoryABIErr error
)

func loadABIs() error {
	pairABIOnce.Do(func() {
		pairABI, pairABIErr = abi.JSON(strings.NewReader(pairABIJSON))
		factoryABI, factoryABIErr = abi.JSON(strings.NewReader(factoryABIJSON))
	})
	if pairABIErr != nil {
		return pairABIErr
	}
	return factoryABIErr
}

// pairState is the raw on-chain state of a pair contract.
type pairState struct {
	Token0      common.Address
	Token1      common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
}

func callPair(ctx context.Context, client chain.Client, pair common.Address, method string) ([]interface{}, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := pairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := client.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := pairABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// readPairState fetches reserves, supply and token addresses for a pair.
func readPairState(ctx context.Context, client chain.Client, pair common.Address) (*pairState, error) {
	reserves, err := callPair(ctx, client, pair, "getReserves")
	if err != nil {
		return nil, err
	}
	if len(reserves) != 3 {
		return nil, fmt.Errorf("unexpected getReserves arity: %d", len(reserves))
	}
	reserve0, ok0 := reserves[0].(*big.Int)
	reserve1, ok1 := reserves[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, fmt.Errorf("unexpected getReserves types: %T, %T", reserves[0], reserves[1])
	}

	supplyValues, err := callPair(ctx, client, pair, "totalSupply")
	if err != nil {
		return nil, err
	}
	supply, ok := supplyValues[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected totalSupply type: %T", supplyValues[0])
	}

	token0Values, err := callPair(ctx, client, pair, "token0")
	if err != nil {
		return nil, err
	}
	token0, ok := token0Values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected token0 type: %T", token0Values[0])
	}

	token1Values, err := callPair(ctx, client, pair, "token1")
	if err != nil {
		return nil, err
	}
	token1, ok := token1Values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected token1 type: %T", token1Values[0])
	}

	return &pairState{
		Token0:      token0,
		Token1:      token1,
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		TotalSupply: supply,
	}, nil
}

// packCreatePair encodes a factory createPair call.
func packCreatePair(tokenA, tokenB common.Address) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	data, err := factoryABI.Pack("createPair", tokenA, tokenB)
	if err != nil {
		return nil, fmt.Errorf("pack createPair: %w", err)
	}
	return data, nil
}

// getPairAddress reads the factory's pair address for a token pair.
// Returns the zero address when the pair does not exist.
func getPairAddress(ctx context.Context, client chain.Client, factory, tokenA, tokenB common.Address) (common.Address, error) {
	if err := loadABIs(); err != nil {
		return common.Address{}, err
	}
	data, err := factoryABI.Pack("getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPair: %w", err)
	}
	resp, err := client.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPair: %w", err)
	}
	values, err := factoryABI.Unpack("getPair", resp)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack getPair: %w", err)
	}
	pair, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getPair type: %T", values[0])
	}
	return pair, nil
}
