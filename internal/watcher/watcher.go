// Package watcher replays and tails contract events, delivering each
// distinct event exactly once per watch session.
package watcher

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/metrics"
	"github.com/betbot/godex/pkg/logger"
)

// KindAll subscribes to every event the contract emits.
const KindAll = "*"

// Callback receives decoded events. Invoked from the subscription's own
// goroutine, serially, in non-decreasing (block, index) order.
type Callback func(ev ledger.Event)

type sessionKey struct {
	contract common.Address
	kind     string
}

// Subscription is one live watch session over (contract, event kind).
type Subscription struct {
	contract common.Address
	kind     string
	cabi     abi.ABI

	mu        sync.Mutex
	callbacks []Callback
	delivered map[ledger.EventID]struct{}
	last      ledger.EventID
	hasLast   bool
	closed    bool

	upstream *ledger.LogSubscription
	errs     chan error
	quit     chan struct{}
	done     chan struct{}

	onClose func()
}

// Errs reports transport and decode faults. The subscription keeps running
// after a fault; resubscribing is the caller's decision.
func (s *Subscription) Errs() <-chan error { return s.errs }

// Close stops delivery. In-flight callback invocations may still complete;
// cancellation is not synchronous.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	s.upstream.Close()
	if s.onClose != nil {
		s.onClose()
	}
}

// Done is closed when the delivery loop has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) addCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Watcher owns all watch sessions. Registration is idempotent per
// (contract, event kind): watching the same pair again attaches the new
// callback to the existing session instead of double-subscribing.
type Watcher struct {
	gw ledger.Gateway

	mu       sync.Mutex
	sessions map[sessionKey]*Subscription
}

// New creates a watcher over the gateway.
func New(gw ledger.Gateway) *Watcher {
	return &Watcher{
		gw:       gw,
		sessions: make(map[sessionKey]*Subscription),
	}
}

// Watch delivers each distinct event of the given kind, from fromBlock
// through the live tail, to cb. kind may be KindAll. The returned
// subscription is shared when the (contract, kind) pair is already watched;
// in that case fromBlock is ignored in favor of the existing session's
// starting point.
func (w *Watcher) Watch(ctx context.Context, handle *binding.Handle, kind string, fromBlock uint64, cb Callback) (*Subscription, error) {
	key := sessionKey{contract: handle.Address, kind: kind}

	w.mu.Lock()
	if existing, ok := w.sessions[key]; ok {
		w.mu.Unlock()
		if cb != nil {
			existing.addCallback(cb)
		}
		return existing, nil
	}
	w.mu.Unlock()

	upstream, err := w.gw.SubscribeLogs(ctx, handle.Address, fromBlock)
	if err != nil {
		return nil, errors.Wrapf(err, "watch %s/%s", handle.Name, kind)
	}

	sub := &Subscription{
		contract:  handle.Address,
		kind:      kind,
		cabi:      handle.ABI,
		delivered: make(map[ledger.EventID]struct{}),
		upstream:  upstream,
		errs:      make(chan error, 8),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cb != nil {
		sub.callbacks = append(sub.callbacks, cb)
	}
	sub.onClose = func() {
		w.mu.Lock()
		if w.sessions[key] == sub {
			delete(w.sessions, key)
		}
		w.mu.Unlock()
	}

	w.mu.Lock()
	// A racing Watch may have registered meanwhile; the first one wins.
	if existing, ok := w.sessions[key]; ok {
		w.mu.Unlock()
		upstream.Close()
		close(sub.done)
		if cb != nil {
			existing.addCallback(cb)
		}
		return existing, nil
	}
	w.sessions[key] = sub
	w.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

// CloseAll tears down every session.
func (w *Watcher) CloseAll() {
	w.mu.Lock()
	subs := make([]*Subscription, 0, len(w.sessions))
	for _, s := range w.sessions {
		subs = append(subs, s)
	}
	w.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case lg, ok := <-s.upstream.Logs():
			if !ok {
				return
			}
			s.handleLog(lg)
		case err, ok := <-s.upstream.Errs():
			if !ok {
				return
			}
			s.reportErr(err)
		}
	}
}

func (s *Subscription) handleLog(lg ethtypes.Log) {
	ev, matched, err := decodeLog(s.cabi, s.kind, lg)
	if err != nil {
		s.reportErr(err)
		return
	}
	if !matched {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, seen := s.delivered[ev.ID]; seen {
		s.mu.Unlock()
		metrics.EventsDeduped.Add(1)
		return
	}
	// An identity positioned before the delivery frontier that was never
	// seen means the transport replayed out of order; delivering it now
	// would break the session's ordering guarantee.
	if s.hasLast && ev.ID.Before(s.last) {
		s.mu.Unlock()
		metrics.EventsDeduped.Add(1)
		logger.WithField("event", ev.ID.String()).Debug("dropping out-of-order replay")
		return
	}
	s.delivered[ev.ID] = struct{}{}
	s.last = ev.ID
	s.hasLast = true
	callbacks := make([]Callback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	metrics.EventsDelivered.Add(1)
	for _, cb := range callbacks {
		cb(ev)
	}
}

func (s *Subscription) reportErr(err error) {
	metrics.WatchErrors.Add(1)
	select {
	case s.errs <- err:
	default:
		// The caller is not draining; dropping beats blocking delivery.
	}
}

// decodeLog turns a raw log into a decoded Event. matched is false when the
// log is a different event kind than the session filter.
func decodeLog(cabi abi.ABI, kind string, lg ethtypes.Log) (ledger.Event, bool, error) {
	if len(lg.Topics) == 0 {
		return ledger.Event{}, false, errors.New("log without topics")
	}
	evABI, err := cabi.EventByID(lg.Topics[0])
	if err != nil {
		if kind == KindAll {
			return ledger.Event{}, false, errors.Wrap(err, "unknown event signature")
		}
		// Not the event this session filters for.
		return ledger.Event{}, false, nil
	}
	if kind != KindAll && evABI.Name != kind {
		return ledger.Event{}, false, nil
	}

	args := make(map[string]interface{})
	if len(lg.Data) > 0 {
		if err := evABI.Inputs.NonIndexed().UnpackIntoMap(args, lg.Data); err != nil {
			return ledger.Event{}, false, errors.Wrapf(err, "decode %s data", evABI.Name)
		}
	}
	var indexed abi.Arguments
	for _, arg := range evABI.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return ledger.Event{}, false, errors.Wrapf(err, "decode %s topics", evABI.Name)
		}
	}

	return ledger.Event{
		ID: ledger.EventID{
			Contract: lg.Address,
			Block:    lg.BlockNumber,
			Index:    lg.Index,
		},
		Kind:   evABI.Name,
		TxHash: lg.TxHash,
		Args:   args,
	}, true, nil
}
