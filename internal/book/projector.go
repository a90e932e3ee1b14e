// Package book reconstructs resting order-book snapshots from remote
// queries.
package book

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/metrics"
	"github.com/betbot/godex/pkg/sigchan"
)

// Level is one resting price level.
type Level struct {
	Price  *big.Int
	Volume *big.Int
}

// View is an immutable order-book snapshot. The sell and buy sides come
// from two separate queries, so they are not guaranteed to reflect the same
// remote block; this is a best-effort projection, not a point-in-time one.
// An empty side is an empty slice, distinct from "not yet loaded" (no View
// at all).
type View struct {
	Symbol    string
	Asks      []Level // sell side, in the remote-declared order
	Bids      []Level // buy side, in the remote-declared order
	FetchedAt time.Time
}

// Projector rebuilds views wholesale on each call; the remote book is
// returned as full parallel arrays with no incremental update semantics.
type Projector struct {
	gw     ledger.Gateway
	binder *binding.Binder

	mu   sync.RWMutex
	last map[string]*View

	// C is nudged after every successful projection.
	C *sigchan.Chan
}

// NewProjector creates a projector over the gateway.
func NewProjector(gw ledger.Gateway, binder *binding.Binder) *Projector {
	return &Projector{
		gw:     gw,
		binder: binder,
		last:   make(map[string]*View),
		C:      sigchan.New(1),
	}
}

// Project queries both sides of the book for symbol and returns the merged
// snapshot. The successful result is retained for Last.
func (p *Projector) Project(ctx context.Context, symbol string) (*View, error) {
	exchange, err := p.binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}

	asks, err := p.fetchSide(ctx, exchange, contracts.MethodGetSellOrderBook, symbol)
	if err != nil {
		return nil, err
	}
	bids, err := p.fetchSide(ctx, exchange, contracts.MethodGetBuyOrderBook, symbol)
	if err != nil {
		return nil, err
	}

	view := &View{
		Symbol:    symbol,
		Asks:      asks,
		Bids:      bids,
		FetchedAt: time.Now(),
	}

	p.mu.Lock()
	p.last[symbol] = view
	p.mu.Unlock()

	metrics.BookProjections.Add(1)
	p.C.Emit()
	return view, nil
}

// Last returns the most recent successful projection for symbol, or nil
// when none has completed yet.
func (p *Projector) Last(symbol string) *View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last[symbol]
}

func (p *Projector) fetchSide(ctx context.Context, exchange *binding.Handle, method, symbol string) ([]Level, error) {
	out, err := p.gw.Call(ctx, common.Address{}, exchange.Address, exchange.ABI, method, symbol)
	if err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, errors.Errorf("%s returned %d values, want 2", method, len(out))
	}
	prices, ok := out[0].([]*big.Int)
	if !ok {
		return nil, errors.Errorf("%s prices are %T, want []*big.Int", method, out[0])
	}
	volumes, ok := out[1].([]*big.Int)
	if !ok {
		return nil, errors.Errorf("%s volumes are %T, want []*big.Int", method, out[1])
	}
	if len(prices) != len(volumes) {
		return nil, errors.Errorf("%s returned %d prices but %d volumes", method, len(prices), len(volumes))
	}

	levels := make([]Level, 0, len(prices))
	for i := range prices {
		levels = append(levels, Level{
			Price:  new(big.Int).Set(prices[i]),
			Volume: new(big.Int).Set(volumes[i]),
		})
	}
	return levels, nil
}
