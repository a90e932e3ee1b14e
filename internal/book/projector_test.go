package book

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger/ledgertest"
)

func bigs(vals ...int64) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

func newTestProjector(gw *ledgertest.FakeGateway) *Projector {
	gw.Addresses = map[string]common.Address{
		contracts.NameExchange: common.HexToAddress("0x0000000000000000000000000000000000000e01"),
	}
	return NewProjector(gw, binding.NewBinder(gw))
}

func TestProjectMergesBothSides(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	gw.CallFn = func(_ context.Context, _, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
		switch method {
		case contracts.MethodGetSellOrderBook:
			return []interface{}{bigs(2, 3), bigs(10, 5)}, nil
		case contracts.MethodGetBuyOrderBook:
			return []interface{}{bigs(1), bigs(7)}, nil
		}
		t.Fatalf("unexpected method %s", method)
		return nil, nil
	}
	p := newTestProjector(gw)

	view, err := p.Project(context.Background(), "FIXED")
	require.NoError(t, err)
	require.Equal(t, "FIXED", view.Symbol)
	require.False(t, view.FetchedAt.IsZero())

	require.Len(t, view.Asks, 2)
	require.Equal(t, big.NewInt(2), view.Asks[0].Price)
	require.Equal(t, big.NewInt(10), view.Asks[0].Volume)
	require.Equal(t, big.NewInt(3), view.Asks[1].Price)
	require.Equal(t, big.NewInt(5), view.Asks[1].Volume)

	require.Len(t, view.Bids, 1)
	require.Equal(t, big.NewInt(1), view.Bids[0].Price)
	require.Equal(t, big.NewInt(7), view.Bids[0].Volume)
}

func TestProjectEmptySideIsEmptyNotMissing(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	gw.CallFn = func(_ context.Context, _, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
		if method == contracts.MethodGetSellOrderBook {
			return []interface{}{bigs(2), bigs(10)}, nil
		}
		return []interface{}{bigs(), bigs()}, nil
	}
	p := newTestProjector(gw)

	view, err := p.Project(context.Background(), "FIXED")
	require.NoError(t, err)
	require.Len(t, view.Asks, 1)
	require.NotNil(t, view.Bids, "an empty side is still a side")
	require.Empty(t, view.Bids)
}

func TestProjectRejectsMismatchedArrays(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	gw.CallFn = func(_ context.Context, _, _ common.Address, _ abi.ABI, _ string, _ ...interface{}) ([]interface{}, error) {
		return []interface{}{bigs(1, 2), bigs(5)}, nil
	}
	p := newTestProjector(gw)

	_, err := p.Project(context.Background(), "FIXED")
	require.Error(t, err)
	require.Nil(t, p.Last("FIXED"), "a failed projection must not become the last view")
}

func TestLastReturnsMostRecentProjection(t *testing.T) {
	asks := bigs(2)
	gw := &ledgertest.FakeGateway{}
	gw.CallFn = func(_ context.Context, _, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
		if method == contracts.MethodGetSellOrderBook {
			return []interface{}{asks, bigs(10)}, nil
		}
		return []interface{}{bigs(), bigs()}, nil
	}
	p := newTestProjector(gw)

	require.Nil(t, p.Last("FIXED"))

	first, err := p.Project(context.Background(), "FIXED")
	require.NoError(t, err)
	require.Same(t, first, p.Last("FIXED"))

	asks[0] = big.NewInt(9)
	second, err := p.Project(context.Background(), "FIXED")
	require.NoError(t, err)
	require.Same(t, second, p.Last("FIXED"))
	require.Equal(t, big.NewInt(9), p.Last("FIXED").Asks[0].Price)

	// Earlier views stay immutable.
	require.Equal(t, big.NewInt(2), first.Asks[0].Price)
}
