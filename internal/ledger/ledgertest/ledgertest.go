// Package ledgertest provides an in-memory Gateway fake for package tests.
// Behavior is overridden per test through the Fn fields; everything not
// overridden has a safe default so tests only specify what they assert.
package ledgertest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/betbot/godex/internal/ledger"
)

// Call records one read-only method call.
type Call struct {
	From   common.Address
	To     common.Address
	Method string
	Args   []interface{}
}

// FakeGateway implements ledger.Gateway in memory.
type FakeGateway struct {
	Chain     int64
	Addresses map[string]common.Address

	CallFn      func(ctx context.Context, from, to common.Address, cabi abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	SubmitFn    func(ctx context.Context, req ledger.SubmitRequest) (common.Hash, error)
	WaitMinedFn func(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	SubscribeFn func(ctx context.Context, addr common.Address, fromBlock uint64) (*ledger.LogSubscription, error)
	GasPriceFn  func(ctx context.Context) (*big.Int, error)

	mu       sync.Mutex
	calls    []Call
	submits  []ledger.SubmitRequest
	resolves map[string]int
	subs     []*ledger.LogSubscription
	txSeq    uint64
}

var _ ledger.Gateway = (*FakeGateway)(nil)

func (g *FakeGateway) ChainID() int64 {
	if g.Chain != 0 {
		return g.Chain
	}
	return 1337
}

func (g *FakeGateway) ResolveAddress(name string) (common.Address, error) {
	g.mu.Lock()
	if g.resolves == nil {
		g.resolves = make(map[string]int)
	}
	g.resolves[name]++
	g.mu.Unlock()

	if addr, ok := g.Addresses[name]; ok {
		return addr, nil
	}
	return common.Address{}, &ledger.NotFoundError{Name: name, ChainID: g.ChainID()}
}

func (g *FakeGateway) Call(ctx context.Context, from, to common.Address, cabi abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{From: from, To: to, Method: method, Args: args})
	g.mu.Unlock()

	if g.CallFn == nil {
		return nil, fmt.Errorf("ledgertest: unexpected call %s", method)
	}
	return g.CallFn(ctx, from, to, cabi, method, args...)
}

func (g *FakeGateway) Submit(ctx context.Context, req ledger.SubmitRequest) (common.Hash, error) {
	g.mu.Lock()
	g.submits = append(g.submits, req)
	g.txSeq++
	seq := g.txSeq
	g.mu.Unlock()

	if g.SubmitFn != nil {
		return g.SubmitFn(ctx, req)
	}
	return TxHash(seq), nil
}

func (g *FakeGateway) WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if g.WaitMinedFn != nil {
		return g.WaitMinedFn(ctx, hash)
	}
	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(1),
	}, nil
}

func (g *FakeGateway) SubscribeLogs(ctx context.Context, addr common.Address, fromBlock uint64) (*ledger.LogSubscription, error) {
	if g.SubscribeFn != nil {
		return g.SubscribeFn(ctx, addr, fromBlock)
	}

	sub := ledger.NewSubscription()
	g.mu.Lock()
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
	return sub, nil
}

func (g *FakeGateway) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if g.GasPriceFn != nil {
		return g.GasPriceFn(ctx)
	}
	return big.NewInt(1_000_000_000), nil
}

// Calls returns a copy of all recorded read-only calls.
func (g *FakeGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// Submits returns a copy of all recorded submissions.
func (g *FakeGateway) Submits() []ledger.SubmitRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ledger.SubmitRequest, len(g.submits))
	copy(out, g.submits)
	return out
}

// Resolves reports how often ResolveAddress was asked for name.
func (g *FakeGateway) Resolves(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolves[name]
}

// Subscriptions returns every subscription handed out so far, oldest first.
func (g *FakeGateway) Subscriptions() []*ledger.LogSubscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*ledger.LogSubscription, len(g.subs))
	copy(out, g.subs)
	return out
}

// TxHash builds a deterministic hash for sequence n.
func TxHash(n uint64) common.Hash {
	var h common.Hash
	binary.BigEndian.PutUint64(h[24:], n)
	return h
}

// MustEventLog builds a raw log for the named event. Indexed inputs become
// topics in declaration order; the rest are packed into the data segment.
// Panics on encoding errors since those are test-authoring mistakes.
func MustEventLog(cabi abi.ABI, contract common.Address, event string, block uint64, index uint, indexed, nonIndexed []interface{}) ethtypes.Log {
	ev, ok := cabi.Events[event]
	if !ok {
		panic(fmt.Sprintf("ledgertest: no event %q in abi", event))
	}

	topics := []common.Hash{ev.ID}
	if len(indexed) > 0 {
		rows := make([][]interface{}, len(indexed))
		for i, v := range indexed {
			rows[i] = []interface{}{v}
		}
		made, err := abi.MakeTopics(rows...)
		if err != nil {
			panic(fmt.Sprintf("ledgertest: topics for %s: %v", event, err))
		}
		for _, row := range made {
			topics = append(topics, row[0])
		}
	}

	data, err := ev.Inputs.NonIndexed().Pack(nonIndexed...)
	if err != nil {
		panic(fmt.Sprintf("ledgertest: pack %s: %v", event, err))
	}

	return ethtypes.Log{
		Address:     contract,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      TxHash(block*1000 + uint64(index)),
	}
}
