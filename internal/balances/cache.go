// Package balances is the process-wide cached view of currency and asset
// balances. Reads never touch the network; refreshes are last-write-wins by
// issue sequence, so a slow in-flight refresh cannot clobber a newer one.
package balances

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/metrics"
	"github.com/betbot/godex/pkg/logger"
	"github.com/betbot/godex/pkg/sigchan"
)

// AssetNative is the exchange-held native currency balance.
const AssetNative = "native"

// WalletAsset names the wallet-held (not deposited) balance of a token.
func WalletAsset(symbol string) string {
	return symbol + "@wallet"
}

// Key addresses one balance cell.
type Key struct {
	Account common.Address
	Asset   string
}

type cell struct {
	amount *big.Int
	seq    uint64
}

// Cache holds the last known balances. Values are written only by Refresh;
// readers share them without locking beyond the cache's own.
type Cache struct {
	gw     ledger.Gateway
	binder *binding.Binder

	seq atomic.Uint64

	mu    sync.RWMutex
	cells map[Key]cell

	// C is nudged after every accepted write so UIs can re-render.
	C *sigchan.Chan
}

// NewCache creates an empty cache over the gateway.
func NewCache(gw ledger.Gateway, binder *binding.Binder) *Cache {
	return &Cache{
		gw:     gw,
		binder: binder,
		cells:  make(map[Key]cell),
		C:      sigchan.New(1),
	}
}

// Read returns the last known amount for (account, asset). ok is false when
// no refresh has completed yet; that is "unknown", distinct from zero.
func (c *Cache) Read(account common.Address, asset string) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.cells[Key{Account: account, Asset: asset}]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(cl.amount), true
}

// Snapshot returns a copy of every cell for one account.
func (c *Cache) Snapshot(account common.Address) map[string]*big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*big.Int)
	for k, cl := range c.cells {
		if k.Account == account {
			out[k.Asset] = new(big.Int).Set(cl.amount)
		}
	}
	return out
}

// Refresh queries the ledger for the current amount of (account, asset) and
// stores it tagged with a sequence number taken at issue time. A refresh
// that completes after a later-issued one for the same cell is discarded.
func (c *Cache) Refresh(ctx context.Context, account common.Address, asset string) (*big.Int, error) {
	seq := c.seq.Add(1)
	metrics.BalanceRefreshes.Add(1)

	amount, err := c.query(ctx, account, asset)
	if err != nil {
		return nil, err
	}

	c.store(Key{Account: account, Asset: asset}, amount, seq)
	return amount, nil
}

// RefreshAll refreshes the native cell plus the exchange-held and
// wallet-held cells of symbol. Partial failures refresh what they can and
// return the first error.
func (c *Cache) RefreshAll(ctx context.Context, account common.Address, symbol string) error {
	var firstErr error
	for _, asset := range []string{AssetNative, symbol, WalletAsset(symbol)} {
		if _, err := c.Refresh(ctx, account, asset); err != nil {
			logger.WithField("asset", asset).Warnf("balance refresh failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Cache) store(key Key, amount *big.Int, seq uint64) {
	c.mu.Lock()
	existing, ok := c.cells[key]
	if ok && existing.seq > seq {
		c.mu.Unlock()
		metrics.StaleRefreshesDropped.Add(1)
		logger.WithField("asset", key.Asset).Debugf("dropping stale refresh seq=%d stored=%d", seq, existing.seq)
		return
	}
	c.cells[key] = cell{amount: new(big.Int).Set(amount), seq: seq}
	c.mu.Unlock()
	c.C.Emit()
}

func (c *Cache) query(ctx context.Context, account common.Address, asset string) (*big.Int, error) {
	switch {
	case asset == AssetNative:
		exchange, err := c.binder.Resolve(contracts.NameExchange)
		if err != nil {
			return nil, err
		}
		return c.callUint(ctx, account, exchange, contracts.MethodGetEthBalance)

	case isWalletAsset(asset):
		token, err := c.binder.Resolve(contracts.NameToken)
		if err != nil {
			return nil, err
		}
		return c.callUint(ctx, account, token, contracts.MethodBalanceOf, account)

	default:
		exchange, err := c.binder.Resolve(contracts.NameExchange)
		if err != nil {
			return nil, err
		}
		return c.callUint(ctx, account, exchange, contracts.MethodGetBalance, asset)
	}
}

func (c *Cache) callUint(ctx context.Context, from common.Address, h *binding.Handle, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.gw.Call(ctx, from, h.Address, h.ABI, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Errorf("%s returned nothing", method)
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s returned %T, want *big.Int", method, out[0])
	}
	return amount, nil
}

func isWalletAsset(asset string) bool {
	const suffix = "@wallet"
	return len(asset) > len(suffix) && asset[len(asset)-len(suffix):] == suffix
}
