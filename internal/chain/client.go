package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReceiptNotFound is returned while a submitted transaction has no
// receipt yet.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// Kind classifies chain call failures so callers never have to match
// on node error strings.
type Kind string

const (
	KindInsufficientFunds Kind = "insufficient_funds"
	KindRejected          Kind = "rejected"
	KindUnavailable       Kind = "unavailable"
)

// CallError wraps a node error with its classification.
type CallError struct {
	Kind Kind
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("chain call (%s): %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain, or "" if the
// error is not a chain call error.
func KindOf(err error) Kind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return ""
}

// CallRequest describes a contract call to submit.
type CallRequest struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Client is the chain surface the core depends on. Signing and
// transaction assembly stay behind this boundary.
type Client interface {
	// SubmitCall submits a call and returns the transaction hash.
	SubmitCall(ctx context.Context, call CallRequest) (common.Hash, error)
	// TransactionReceipt returns the receipt for a transaction, or
	// ErrReceiptNotFound while the transaction is unresolved.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	// Allowance reads the ERC-20 allowance granted by owner to spender.
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	// Approve submits an ERC-20 approval and returns the tx hash.
	Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) (common.Hash, error)
	// CallContract performs a read-only contract call.
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	// SuggestGasPrice returns the node's legacy gas price suggestion.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// SuggestGasTipCap returns the node's priority fee suggestion.
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	Close()
}
