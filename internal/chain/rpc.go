package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCClient implements Client over a JSON-RPC node with managed
// accounts (eth_sendTransaction).
type RPCClient struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewRPCClient dials the node at rpcURL.
func NewRPCClient(ctx context.Context, rpcURL string) (*RPCClient, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &RPCClient{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *RPCClient) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// sendTxArgs mirrors the eth_sendTransaction parameter object.
type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// SubmitCall submits a call via the node's managed account.
func (c *RPCClient) SubmitCall(ctx context.Context, call CallRequest) (common.Hash, error) {
	args := sendTxArgs{
		From: call.From,
		To:   &call.To,
		Data: call.Data,
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(call.Value)
	}
	if call.GasLimit > 0 {
		gas := hexutil.Uint64(call.GasLimit)
		args.Gas = &gas
	}

	var txHash common.Hash
	if err := c.rpcClient.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, classify(err)
	}
	return txHash, nil
}

// TransactionReceipt returns the receipt, mapping "not found" to
// ErrReceiptNotFound so pollers can keep waiting.
func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, classify(err)
	}
	return receipt, nil
}

// Allowance reads the ERC-20 allowance via eth_call.
func (c *RPCClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := PackAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	resp, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return UnpackAllowance(resp)
}

// Approve submits an ERC-20 approval from owner to spender.
func (c *RPCClient) Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := PackApprove(spender, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SubmitCall(ctx, CallRequest{From: owner, To: token, Data: data})
}

// CallContract performs an eth_call.
func (c *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	resp, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// SuggestGasPrice returns the node's gas price suggestion.
func (c *RPCClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return price, nil
}

// SuggestGasTipCap returns the node's priority fee suggestion.
func (c *RPCClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	tip, err := c.ethClient.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return tip, nil
}

// classify translates node errors into structured kinds. Node error
// text is inspected here, at the RPC boundary, so that no other
// package ever matches on message strings.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "insufficient balance"):
		return &CallError{Kind: KindInsufficientFunds, Err: err}
	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "replacement transaction underpriced"):
		return &CallError{Kind: KindRejected, Err: err}
	default:
		return &CallError{Kind: KindUnavailable, Err: err}
	}
}
