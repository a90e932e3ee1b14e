// Package binding resolves logical contract names to deployed addresses and
// decoded interfaces, once per session.
package binding

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger"
)

// Handle is a resolved contract: logical name, deployed address, decoded
// interface. Immutable once resolved.
type Handle struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// Error reports a failed resolution. It is fatal to operations on that
// contract but not to the session: a missing deployment or undecodable
// descriptor means a misconfigured environment, so there is no retry.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("binding %q: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Binder caches one Handle per logical name for the process lifetime.
type Binder struct {
	gw ledger.Gateway

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewBinder creates a binder over the given gateway.
func NewBinder(gw ledger.Gateway) *Binder {
	return &Binder{
		gw:      gw,
		handles: make(map[string]*Handle),
	}
}

// Resolve returns the handle for a logical contract name. The first call
// resolves and caches; later calls return the cached handle without
// touching the gateway.
func (b *Binder) Resolve(name string) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.handles[name]; ok {
		return h, nil
	}

	descriptor, ok := contracts.ABIForName(name)
	if !ok {
		return nil, &Error{Name: name, Err: fmt.Errorf("no interface descriptor")}
	}
	parsed, err := abi.JSON(strings.NewReader(descriptor))
	if err != nil {
		return nil, &Error{Name: name, Err: fmt.Errorf("parse descriptor: %w", err)}
	}

	addr, err := b.gw.ResolveAddress(name)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}

	h := &Handle{Name: name, Address: addr, ABI: parsed}
	b.handles[name] = h
	return h, nil
}
