// Package session is the explicit per-session context: the active wallet,
// resolved contract handles, caches, and orchestration wired together. No
// component reads ambient globals; everything hangs off the Session.
package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/betbot/godex/internal/balances"
	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/book"
	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/orchestrator"
	"github.com/betbot/godex/internal/watcher"
	"github.com/betbot/godex/pkg/config"
	"github.com/betbot/godex/pkg/gasoracle"
	"github.com/betbot/godex/pkg/logger"
	"github.com/betbot/godex/pkg/sigchan"
	"github.com/betbot/godex/pkg/wallet"
)

const feedCapacity = 200

// Notice is one status line for display.
type Notice struct {
	Time    time.Time
	Message string
}

// EventNotice tags a delivered ledger event with its originating watch.
type EventNotice struct {
	Time   time.Time
	Source string // "exchange", "token", "trading"
	Event  ledger.Event
}

// Session owns the client-side state for one local user against one chain.
type Session struct {
	cfg    *config.Config
	gw     ledger.Gateway
	wallet *wallet.Wallet

	Binder    *binding.Binder
	Watcher   *watcher.Watcher
	Balances  *balances.Cache
	Books     *book.Projector
	Orch      *orchestrator.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	statuses []Notice
	events   []EventNotice

	// C is nudged whenever the status or event feed changes.
	C *sigchan.Chan
}

// New wires a session over an already-dialed gateway.
func New(parent context.Context, cfg *config.Config, w *wallet.Wallet, gw ledger.Gateway) *Session {
	ctx, cancel := context.WithCancel(parent)

	binder := binding.NewBinder(gw)
	cache := balances.NewCache(gw, binder)
	books := book.NewProjector(gw, binder)

	s := &Session{
		cfg:      cfg,
		gw:       gw,
		wallet:   w,
		Binder:   binder,
		Watcher:  watcher.New(gw),
		Balances: cache,
		Books:    books,
		ctx:      ctx,
		cancel:   cancel,
		C:        sigchan.New(1),
	}

	s.Orch = orchestrator.New(ctx, gw, w, cache, bookRefresher{books})
	s.Orch.SetStatusFunc(s.Status)
	if cfg.GasOracle.URL != "" {
		oracle := gasoracle.New(cfg.GasOracle.URL)
		if cfg.GasOracle.Fast {
			s.Orch.SetGasPricer(fastPricer{oracle})
		} else {
			s.Orch.SetGasPricer(oracle)
		}
	}
	return s
}

// fastPricer prices every submission at the oracle's fast tier.
type fastPricer struct {
	oracle *gasoracle.Oracle
}

func (p fastPricer) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return p.oracle.SuggestFastGasPrice(ctx)
}

// Dial connects to the configured node and builds a session over it.
// The exchange deployment has to be configured for the target chain;
// refusing up front beats a name-not-found error on the first call.
func Dial(ctx context.Context, cfg *config.Config, w *wallet.Wallet) (*Session, error) {
	if _, ok := cfg.DeploymentAddress(cfg.Network.ChainID, contracts.NameExchange); !ok {
		return nil, errors.Errorf("no %s deployment configured for chain %d", contracts.NameExchange, cfg.Network.ChainID)
	}
	gw, err := ledger.Dial(ctx, ledger.Options{
		RPCURL:      cfg.Network.RPCURL,
		WSURL:       cfg.Network.WSURL,
		ChainID:     cfg.Network.ChainID,
		Deployments: cfg.Deployments[cfg.Network.ChainID],
	})
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, w, gw), nil
}

// Close abandons local tracking and tears down watches. Transactions
// already submitted to the ledger keep going; only our view of them stops.
func (s *Session) Close() {
	s.Watcher.CloseAll()
	s.cancel()
	if g, ok := s.gw.(*ledger.EthGateway); ok {
		g.Close()
	}
}

// Account returns the current active account.
func (s *Session) Account() (common.Address, error) {
	return s.wallet.ActiveAccount()
}

// ExchangeAddress resolves and returns the Exchange deployment address.
func (s *Session) ExchangeAddress() (common.Address, error) {
	h, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return common.Address{}, err
	}
	return h.Address, nil
}

// TokenAddress resolves and returns the token deployment address.
func (s *Session) TokenAddress() (common.Address, error) {
	h, err := s.Binder.Resolve(contracts.NameToken)
	if err != nil {
		return common.Address{}, err
	}
	return h.Address, nil
}

// Status appends a free-text lifecycle notice and logs it.
func (s *Session) Status(msg string) {
	logger.Info(msg)
	s.mu.Lock()
	s.statuses = append(s.statuses, Notice{Time: time.Now(), Message: msg})
	if len(s.statuses) > feedCapacity {
		s.statuses = s.statuses[len(s.statuses)-feedCapacity:]
	}
	s.mu.Unlock()
	s.C.Emit()
}

// RecentStatus returns a copy of the status feed, oldest first.
func (s *Session) RecentStatus() []Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notice, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// LastStatus returns the newest status line, if any.
func (s *Session) LastStatus() (Notice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.statuses) == 0 {
		return Notice{}, false
	}
	return s.statuses[len(s.statuses)-1], true
}

func (s *Session) recordEvent(source string, ev ledger.Event) {
	s.mu.Lock()
	s.events = append(s.events, EventNotice{Time: time.Now(), Source: source, Event: ev})
	if len(s.events) > feedCapacity {
		s.events = s.events[len(s.events)-feedCapacity:]
	}
	s.mu.Unlock()
	s.C.Emit()
}

// RecentEvents returns a copy of the event feed, oldest first.
func (s *Session) RecentEvents() []EventNotice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventNotice, len(s.events))
	copy(out, s.events)
	return out
}

// bookRefresher adapts the projector to the orchestrator's refresh
// dependency.
type bookRefresher struct {
	books *book.Projector
}

func (r bookRefresher) RefreshBook(ctx context.Context, symbol string) error {
	_, err := r.books.Project(ctx, symbol)
	return err
}
