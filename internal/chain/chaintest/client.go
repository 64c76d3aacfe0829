// Package chaintest provides a scriptable in-memory chain client for
// tests.
package chaintest

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ammdesk/internal/chain"
)

// ApprovalCall records one Approve invocation.
type ApprovalCall struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

// FakeClient implements chain.Client with scriptable behavior.
type FakeClient struct {
	mu sync.Mutex

	// SubmitErr, when set, fails every SubmitCall.
	SubmitErr error
	// Submitted records every submitted call in order.
	Submitted []chain.CallRequest
	// SubmittedHashes holds the hash returned for each submitted call.
	SubmittedHashes []common.Hash

	// Receipts maps tx hash to the receipt TransactionReceipt returns.
	Receipts map[common.Hash]*types.Receipt
	// ReceiptDelay is the number of polls per hash that return
	// ErrReceiptNotFound before the receipt is served.
	ReceiptDelay map[common.Hash]int
	// ReceiptPolls counts receipt lookups per hash.
	ReceiptPolls map[common.Hash]int

	// Allowances maps token|owner|spender to the granted amount.
	Allowances map[string]*big.Int
	// Approvals records every Approve invocation.
	Approvals []ApprovalCall

	// CallFn, when set, answers CallContract.
	CallFn func(msg ethereum.CallMsg) ([]byte, error)

	// GasPrice and TipCap answer the gas suggestion calls.
	GasPrice *big.Int
	TipCap   *big.Int

	nextHash uint64
}

// NewFakeClient returns an empty fake with initialized maps.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Receipts:     make(map[common.Hash]*types.Receipt),
		ReceiptDelay: make(map[common.Hash]int),
		ReceiptPolls: make(map[common.Hash]int),
		Allowances:   make(map[string]*big.Int),
		GasPrice:     big.NewInt(20_000_000_000),
		TipCap:       big.NewInt(1_000_000_000),
	}
}

func allowanceKey(token, owner, spender common.Address) string {
	return token.Hex() + "|" + owner.Hex() + "|" + spender.Hex()
}

// SetAllowance scripts an allowance read.
func (f *FakeClient) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Allowances[allowanceKey(token, owner, spender)] = amount
}

// SubmitCall records the call and returns a deterministic hash.
func (f *FakeClient) SubmitCall(_ context.Context, call chain.CallRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return common.Hash{}, f.SubmitErr
	}
	f.nextHash++
	var raw [32]byte
	binary.BigEndian.PutUint64(raw[24:], f.nextHash)
	hash := common.BytesToHash(raw[:])
	f.Submitted = append(f.Submitted, call)
	f.SubmittedHashes = append(f.SubmittedHashes, hash)
	return hash, nil
}

// TransactionReceipt serves the scripted receipt after the configured
// number of not-found polls.
func (f *FakeClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReceiptPolls[txHash]++
	if delay := f.ReceiptDelay[txHash]; delay > 0 {
		f.ReceiptDelay[txHash] = delay - 1
		return nil, chain.ErrReceiptNotFound
	}
	receipt, ok := f.Receipts[txHash]
	if !ok {
		return nil, chain.ErrReceiptNotFound
	}
	return receipt, nil
}

// Allowance returns the scripted allowance, zero by default.
func (f *FakeClient) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount, ok := f.Allowances[allowanceKey(token, owner, spender)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

// Approve records the approval and grants it.
func (f *FakeClient) Approve(_ context.Context, token, owner, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	f.Approvals = append(f.Approvals, ApprovalCall{Token: token, Owner: owner, Spender: spender, Amount: amount})
	f.Allowances[allowanceKey(token, owner, spender)] = new(big.Int).Set(amount)
	f.mu.Unlock()
	return f.SubmitCall(context.Background(), chain.CallRequest{From: owner, To: token})
}

// CallContract delegates to CallFn.
func (f *FakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.CallFn == nil {
		return nil, chain.ErrReceiptNotFound
	}
	return f.CallFn(msg)
}

// SuggestGasPrice returns the scripted gas price.
func (f *FakeClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return f.GasPrice, nil
}

// SuggestGasTipCap returns the scripted tip cap.
func (f *FakeClient) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return f.TipCap, nil
}

// Close is a no-op.
func (f *FakeClient) Close() {}
