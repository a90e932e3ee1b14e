package session

import (
	"context"

	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/watcher"
	"github.com/betbot/godex/pkg/logger"
)

// EventFunc receives decoded events from a session watch.
type EventFunc func(ev ledger.Event)

// WatchExchangeEvents replays every Exchange event from the genesis of the
// deployment and follows the live tail. Registration is idempotent.
func (s *Session) WatchExchangeEvents(ctx context.Context, cb EventFunc) (*watcher.Subscription, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	return s.watch(ctx, "exchange", exchange.Name, watcher.KindAll, cb)
}

// WatchTokenEvents replays and follows every token event (transfers,
// approvals).
func (s *Session) WatchTokenEvents(ctx context.Context, cb EventFunc) (*watcher.Subscription, error) {
	token, err := s.Binder.Resolve(contracts.NameToken)
	if err != nil {
		return nil, err
	}
	return s.watch(ctx, "token", token.Name, watcher.KindAll, cb)
}

// WatchTradeEvents follows the four order-lifecycle events of the
// exchange: limit orders created and orders fulfilled, both sides.
func (s *Session) WatchTradeEvents(ctx context.Context, cb EventFunc) ([]*watcher.Subscription, error) {
	subs := make([]*watcher.Subscription, 0, len(contracts.TradeEventNames))
	for _, kind := range contracts.TradeEventNames {
		sub, err := s.watch(ctx, "trading", contracts.NameExchange, kind, cb)
		if err != nil {
			for _, prev := range subs {
				prev.Close()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *Session) watch(ctx context.Context, source, contractName, kind string, cb EventFunc) (*watcher.Subscription, error) {
	handle, err := s.Binder.Resolve(contractName)
	if err != nil {
		return nil, err
	}

	sub, err := s.Watcher.Watch(ctx, handle, kind, 0, func(ev ledger.Event) {
		s.recordEvent(source, ev)
		if cb != nil {
			cb(ev)
		}
	})
	if err != nil {
		return nil, err
	}

	// Surface transport faults as status lines; the watch itself stays up
	// and resubscribing remains the caller's call.
	go func() {
		for {
			select {
			case <-sub.Done():
				return
			case err, ok := <-sub.Errs():
				if !ok {
					return
				}
				s.Status("Error watching " + source + " events; see log.")
				logger.WithField("watch", source).Errorf("event watch fault: %v", err)
			}
		}
	}()

	return sub, nil
}
