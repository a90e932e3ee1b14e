package watcher

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/ledger/ledgertest"
)

var (
	exchangeAddr = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	depositor    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func exchangeHandle(t *testing.T) *binding.Handle {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(contracts.ExchangeABI))
	require.NoError(t, err)
	return &binding.Handle{Name: contracts.NameExchange, Address: exchangeAddr, ABI: parsed}
}

func depositLog(t *testing.T, h *binding.Handle, block uint64, index uint, amount int64) ethtypes.Log {
	t.Helper()
	return ledgertest.MustEventLog(h.ABI, h.Address, contracts.EventDepositForEthReceived,
		block, index,
		[]interface{}{depositor},
		[]interface{}{big.NewInt(amount), big.NewInt(1_600_000_000)},
	)
}

func collect(t *testing.T) (Callback, <-chan ledger.Event) {
	t.Helper()
	ch := make(chan ledger.Event, 16)
	return func(ev ledger.Event) { ch <- ev }, ch
}

func recv(t *testing.T, ch <-chan ledger.Event) ledger.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return ledger.Event{}
	}
}

func expectNone(t *testing.T, ch <-chan ledger.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s at %s", ev.Kind, ev.ID.String())
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatchDeliversDecodedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb, ch := collect(t)

	w := New(gw)
	_, err := w.Watch(ctx, h, KindAll, 0, cb)
	require.NoError(t, err)

	feed := gw.Subscriptions()[0]
	feed.Feed(depositLog(t, h, 3, 0, 250))

	ev := recv(t, ch)
	require.Equal(t, contracts.EventDepositForEthReceived, ev.Kind)
	require.Equal(t, uint64(3), ev.ID.Block)
	require.Equal(t, exchangeAddr, ev.ID.Contract)
	require.Equal(t, big.NewInt(250), ev.Args["_amount"])
	require.Equal(t, depositor, ev.Args["_from"])
}

func TestWatchExactlyOnceAcrossReplayBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb, ch := collect(t)

	w := New(gw)
	_, err := w.Watch(ctx, h, KindAll, 0, cb)
	require.NoError(t, err)

	feed := gw.Subscriptions()[0]
	first := depositLog(t, h, 5, 1, 10)
	feed.Feed(first)
	feed.Feed(first) // replay overlap duplicates the same identity
	feed.Feed(depositLog(t, h, 6, 0, 20))

	require.Equal(t, uint64(5), recv(t, ch).ID.Block)
	require.Equal(t, uint64(6), recv(t, ch).ID.Block)
	expectNone(t, ch)
}

func TestWatchDropsUnseenOlderReplay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb, ch := collect(t)

	w := New(gw)
	_, err := w.Watch(ctx, h, KindAll, 0, cb)
	require.NoError(t, err)

	feed := gw.Subscriptions()[0]
	feed.Feed(depositLog(t, h, 5, 0, 10))
	// Never delivered before and behind the frontier: delivering it now
	// would hand the callback a decreasing (block, index) sequence.
	feed.Feed(depositLog(t, h, 3, 0, 99))
	feed.Feed(depositLog(t, h, 6, 0, 20))

	require.Equal(t, uint64(5), recv(t, ch).ID.Block)
	require.Equal(t, uint64(6), recv(t, ch).ID.Block)
	expectNone(t, ch)
}

func TestWatchFiltersByKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb, ch := collect(t)

	w := New(gw)
	_, err := w.Watch(ctx, h, contracts.EventWithdrawalEth, 0, cb)
	require.NoError(t, err)

	feed := gw.Subscriptions()[0]
	feed.Feed(depositLog(t, h, 1, 0, 10))
	feed.Feed(ledgertest.MustEventLog(h.ABI, h.Address, contracts.EventWithdrawalEth,
		2, 0,
		[]interface{}{depositor},
		[]interface{}{big.NewInt(7), big.NewInt(1_600_000_000)},
	))

	ev := recv(t, ch)
	require.Equal(t, contracts.EventWithdrawalEth, ev.Kind)
	expectNone(t, ch)
}

func TestWatchRegistrationIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb1, ch1 := collect(t)
	cb2, ch2 := collect(t)

	w := New(gw)
	sub1, err := w.Watch(ctx, h, KindAll, 0, cb1)
	require.NoError(t, err)
	sub2, err := w.Watch(ctx, h, KindAll, 0, cb2)
	require.NoError(t, err)

	require.Same(t, sub1, sub2)
	require.Len(t, gw.Subscriptions(), 1, "second Watch must not resubscribe upstream")

	gw.Subscriptions()[0].Feed(depositLog(t, h, 1, 0, 10))
	require.Equal(t, uint64(1), recv(t, ch1).ID.Block)
	require.Equal(t, uint64(1), recv(t, ch2).ID.Block)
}

func TestWatchSurfacesTransportFaultsAndKeepsRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb, ch := collect(t)

	w := New(gw)
	sub, err := w.Watch(ctx, h, KindAll, 0, cb)
	require.NoError(t, err)

	feed := gw.Subscriptions()[0]
	feed.Fail(errors.New("stream hiccup"))

	select {
	case err := <-sub.Errs():
		require.Contains(t, err.Error(), "stream hiccup")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport fault")
	}

	// The session survives the fault.
	feed.Feed(depositLog(t, h, 9, 0, 10))
	require.Equal(t, uint64(9), recv(t, ch).ID.Block)
}

func TestCloseAllAllowsRewatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb, _ := collect(t)

	w := New(gw)
	sub1, err := w.Watch(ctx, h, KindAll, 0, cb)
	require.NoError(t, err)

	w.CloseAll()

	sub2, err := w.Watch(ctx, h, KindAll, 0, cb)
	require.NoError(t, err)
	require.NotSame(t, sub1, sub2, "a closed session must not be reused")
	require.Len(t, gw.Subscriptions(), 2)
}

func TestCloseStopsDeliveryGoroutine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &ledgertest.FakeGateway{}
	h := exchangeHandle(t)
	cb, ch := collect(t)

	w := New(gw)
	sub, err := w.Watch(ctx, h, KindAll, 0, cb)
	require.NoError(t, err)

	feed := gw.Subscriptions()[0]
	feed.Feed(depositLog(t, h, 1, 0, 100))
	recv(t, ch)

	// Close with the context still live; the loop has to stop on its own.
	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("delivery loop still running after Close")
	}
	require.False(t, feed.Feed(depositLog(t, h, 2, 0, 100)), "upstream should be closed")
	expectNone(t, ch)
}
