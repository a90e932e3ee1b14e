// Package orchestrator sequences local intents into submitted transactions,
// tracks their lifecycle, and triggers the dependent state refreshes once
// they land.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/betbot/godex/internal/balances"
	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/metrics"
	"github.com/betbot/godex/pkg/logger"
)

// Op classifies an intent; the class decides which cached state must be
// refreshed on confirmation.
type Op string

const (
	OpDepositCurrency  Op = "deposit-currency"
	OpWithdrawCurrency Op = "withdraw-currency"
	OpDepositAsset     Op = "deposit-asset"
	OpWithdrawAsset    Op = "withdraw-asset"
	OpPlaceBuyOrder    Op = "place-buy-order"
	OpPlaceSellOrder   Op = "place-sell-order"
	OpTransferAsset    Op = "transfer-asset"
	OpApproveAllowance Op = "approve-allowance"
	OpRegisterAsset    Op = "register-asset"
)

// Status is the lifecycle state of a pending transaction.
type Status string

const (
	StatusSubmitted Status = "Submitted"
	StatusConfirmed Status = "Confirmed"
	StatusFailed    Status = "Failed"
)

// Default cost bounds per operation class. The order operations carry the
// large bounds the matching engine needs; everything else is a plain call.
const (
	defaultGasLimit      = 500_000
	depositAssetGasLimit = 4_500_000
	orderGasLimit        = 4_000_000
)

// Identity supplies the signing account. Re-queried before every
// submission; the account is treated as a changeable external fact.
type Identity interface {
	ActiveAccount() (common.Address, error)
	PrivateKey() (*ecdsa.PrivateKey, error)
}

// BalanceRefresher is the cached-balance dependency refreshed on
// confirmation.
type BalanceRefresher interface {
	Refresh(ctx context.Context, account common.Address, asset string) (*big.Int, error)
	RefreshAll(ctx context.Context, account common.Address, symbol string) error
}

// BookRefresher is the order-book dependency refreshed after order
// placements.
type BookRefresher interface {
	RefreshBook(ctx context.Context, symbol string) error
}

// GasPricer supplies the gas price bound for submissions. Optional; the
// node's suggestion is the fallback.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// StatusFunc receives free-text lifecycle notices for display.
type StatusFunc func(msg string)

// Request is one intent to submit.
type Request struct {
	Op     Op
	Handle *binding.Handle
	Method string
	Args   []interface{}

	// Symbol is the traded asset the refresh table targets. Empty for
	// currency-only and administrative operations.
	Symbol string

	// Value is native currency attached to the call (deposits).
	Value *big.Int

	// GasLimit overrides the per-op default when non-zero.
	GasLimit uint64

	// OnTerminal, when set, runs after the terminal transition and its
	// refreshes.
	OnTerminal func(p *Pending)
}

// Pending tracks one submitted transaction through its lifecycle.
type Pending struct {
	ID     string
	Op     Op
	Method string
	Symbol string
	TxHash common.Hash
	Signer common.Address

	mu     sync.Mutex
	status Status
	reason string
	done   chan struct{}
}

// Status returns the current lifecycle state and, for failures, the
// human-readable reason.
func (p *Pending) Status() (Status, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.reason
}

// Done is closed once the transaction is terminal and its refreshes ran.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until terminal or ctx expires.
func (p *Pending) Wait(ctx context.Context) (Status, string, error) {
	select {
	case <-p.done:
		st, reason := p.Status()
		return st, reason, nil
	case <-ctx.Done():
		return StatusSubmitted, "", ctx.Err()
	}
}

func (p *Pending) setTerminal(status Status, reason string) {
	p.mu.Lock()
	p.status = status
	p.reason = reason
	p.mu.Unlock()
}

// Orchestrator submits intents and runs the operation-to-refresh table on
// confirmation. Submissions are tracked independently; nothing is
// serialized or retried here.
type Orchestrator struct {
	gw       ledger.Gateway
	identity Identity
	balances BalanceRefresher
	book     BookRefresher
	gas      GasPricer  // optional
	notify   StatusFunc // optional

	// trackCtx bounds the confirmation-tracking goroutines; cancelling it
	// abandons local tracking without cancelling the remote transactions.
	trackCtx context.Context
}

// New creates an orchestrator. trackCtx scopes lifecycle tracking to the
// session.
func New(trackCtx context.Context, gw ledger.Gateway, identity Identity, balances BalanceRefresher, book BookRefresher) *Orchestrator {
	if trackCtx == nil {
		trackCtx = context.Background()
	}
	return &Orchestrator{
		gw:       gw,
		identity: identity,
		balances: balances,
		book:     book,
		trackCtx: trackCtx,
	}
}

// SetGasPricer installs an external gas price source.
func (o *Orchestrator) SetGasPricer(g GasPricer) { o.gas = g }

// SetStatusFunc installs the status message sink.
func (o *Orchestrator) SetStatusFunc(fn StatusFunc) { o.notify = fn }

// Submit signs and sends the request's transaction and starts tracking it.
// Identity is validated before any remote call: with no active account the
// submission is blocked and nothing reaches the ledger. A synchronous error
// means nothing was submitted; once a Pending is returned, the outcome
// arrives through it.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Pending, error) {
	account, err := o.identity.ActiveAccount()
	if err != nil {
		o.status(fmt.Sprintf("Error: no active account (%v)", err))
		return nil, err
	}
	key, err := o.identity.PrivateKey()
	if err != nil {
		o.status(fmt.Sprintf("Error: no active account (%v)", err))
		return nil, err
	}

	gasPrice := o.gasPrice(ctx)

	hash, err := o.gw.Submit(ctx, ledger.SubmitRequest{
		To:       req.Handle.Address,
		ABI:      req.Handle.ABI,
		Method:   req.Method,
		Args:     req.Args,
		Value:    req.Value,
		GasLimit: o.gasLimit(req),
		GasPrice: gasPrice,
		Key:      key,
	})
	if err != nil {
		metrics.TxFailed.Add(1)
		o.status(fmt.Sprintf("Error submitting %s; see log.", req.Method))
		logger.WithField("op", string(req.Op)).Errorf("submit %s failed: %v", req.Method, err)
		return nil, err
	}

	p := &Pending{
		ID:     uuid.NewString(),
		Op:     req.Op,
		Method: req.Method,
		Symbol: req.Symbol,
		TxHash: hash,
		Signer: account,
		status: StatusSubmitted,
		done:   make(chan struct{}),
	}
	metrics.TxSubmitted.Add(1)
	o.status(fmt.Sprintf("Transaction submitted: %s (%s)", req.Method, shortHash(hash)))

	go o.track(p, req)
	return p, nil
}

func (o *Orchestrator) track(p *Pending, req Request) {
	defer close(p.done)
	defer func() {
		if req.OnTerminal != nil {
			req.OnTerminal(p)
		}
	}()

	receipt, err := o.gw.WaitMined(o.trackCtx, p.TxHash)
	if err != nil {
		p.setTerminal(StatusFailed, err.Error())
		metrics.TxFailed.Add(1)
		o.status(fmt.Sprintf("Error: %s not confirmed; see log.", req.Method))
		logger.WithField("tx", p.TxHash.Hex()).Errorf("%s confirmation failed: %v", req.Method, err)
		return
	}
	if receipt.Status == 0 {
		reason := &SubmissionRejectedError{TxHash: p.TxHash, Method: req.Method}
		p.setTerminal(StatusFailed, reason.Error())
		metrics.TxFailed.Add(1)
		o.status(fmt.Sprintf("Error: %s reverted by the ledger.", req.Method))
		logger.WithField("tx", p.TxHash.Hex()).Errorf("%v", reason)
		return
	}

	p.setTerminal(StatusConfirmed, "")
	metrics.TxConfirmed.Add(1)
	o.status(fmt.Sprintf("Transaction confirmed: %s (block %d)", req.Method, receipt.BlockNumber.Uint64()))

	o.refreshFor(p.Signer, req)
}

// refreshFor runs the declared dependent refreshes for a confirmed
// operation. Failed submissions never reach this point.
func (o *Orchestrator) refreshFor(account common.Address, req Request) {
	ctx := o.trackCtx

	var err error
	switch req.Op {
	case OpDepositCurrency, OpWithdrawCurrency:
		_, err = o.balances.Refresh(ctx, account, balances.AssetNative)

	case OpDepositAsset, OpWithdrawAsset, OpTransferAsset:
		err = o.balances.RefreshAll(ctx, account, req.Symbol)

	case OpPlaceBuyOrder, OpPlaceSellOrder:
		err = o.balances.RefreshAll(ctx, account, req.Symbol)
		if bookErr := o.book.RefreshBook(ctx, req.Symbol); bookErr != nil && err == nil {
			err = bookErr
		}

	case OpApproveAllowance, OpRegisterAsset:
		// No cached state depends on these.
	}

	if err != nil {
		o.status("Error refreshing state; see log.")
		logger.WithField("op", string(req.Op)).Errorf("post-confirmation refresh failed: %v", err)
	}
}

func (o *Orchestrator) gasLimit(req Request) uint64 {
	if req.GasLimit > 0 {
		return req.GasLimit
	}
	switch req.Op {
	case OpDepositAsset:
		return depositAssetGasLimit
	case OpPlaceBuyOrder, OpPlaceSellOrder:
		return orderGasLimit
	default:
		return defaultGasLimit
	}
}

// gasPrice prefers the external oracle; nil lets the gateway fall back to
// the node's suggestion.
func (o *Orchestrator) gasPrice(ctx context.Context) *big.Int {
	if o.gas == nil {
		return nil
	}
	price, err := o.gas.SuggestGasPrice(ctx)
	if err != nil {
		logger.Warnf("gas oracle unavailable, using node suggestion: %v", err)
		return nil
	}
	return price
}

func (o *Orchestrator) status(msg string) {
	if o.notify != nil {
		o.notify(msg)
	}
}

func shortHash(h common.Hash) string {
	s := h.Hex()
	if len(s) > 12 {
		return s[:12] + "…"
	}
	return s
}
