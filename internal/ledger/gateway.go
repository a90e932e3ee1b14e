// Package ledger is the thin capability over the external node: read-only
// calls, signed submissions, and log subscriptions. Everything above it
// treats the chain as an append-only authority reachable only through this
// gateway.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/betbot/godex/pkg/logger"
)

const (
	// defaultPollInterval paces the tail-follow loop when no websocket
	// endpoint is configured.
	defaultPollInterval = 2 * time.Second

	// receiptPollInterval paces WaitMined.
	receiptPollInterval = 1 * time.Second
)

// SubmitRequest describes one state-changing transaction.
type SubmitRequest struct {
	To       common.Address
	ABI      abi.ABI
	Method   string
	Args     []interface{}
	Value    *big.Int // native currency attached, nil means zero
	GasLimit uint64
	GasPrice *big.Int
	Key      *ecdsa.PrivateKey
}

// Gateway is the capability the rest of the client consumes. Tests swap in
// fakes; production uses EthGateway.
type Gateway interface {
	ChainID() int64
	ResolveAddress(name string) (common.Address, error)
	// Call performs a read-only method call. from matters for view methods
	// that answer per msg.sender; pass the zero address otherwise.
	Call(ctx context.Context, from, to common.Address, cabi abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	Submit(ctx context.Context, req SubmitRequest) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	SubscribeLogs(ctx context.Context, addr common.Address, fromBlock uint64) (*LogSubscription, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// LogSubscription delivers raw logs for one contract from a starting block
// through the live tail. Transport faults go to Errs without tearing the
// subscription down; duplicates across replay/tail boundaries are possible
// and are the consumer's problem to drop.
type LogSubscription struct {
	logs chan ethtypes.Log
	errs chan error
	quit chan struct{}
	once sync.Once
}

// Logs returns the delivery channel.
func (s *LogSubscription) Logs() <-chan ethtypes.Log { return s.logs }

// Errs returns the transport error channel.
func (s *LogSubscription) Errs() <-chan error { return s.errs }

// Close stops delivery. Not synchronous: a send already in flight may still
// land on Logs.
func (s *LogSubscription) Close() {
	s.once.Do(func() { close(s.quit) })
}

func newLogSubscription() *LogSubscription {
	return &LogSubscription{
		logs: make(chan ethtypes.Log, 64),
		errs: make(chan error, 8),
		quit: make(chan struct{}),
	}
}

// NewSubscription returns a subscription whose feed the caller drives.
// Production code obtains subscriptions from Gateway.SubscribeLogs; gateway
// fakes hand these out and push logs through Feed.
func NewSubscription() *LogSubscription {
	return newLogSubscription()
}

// Feed pushes one log to the consumer. Returns false once the subscription
// is closed.
func (s *LogSubscription) Feed(lg ethtypes.Log) bool { return s.deliver(lg) }

// Fail reports a transport fault without tearing the subscription down.
func (s *LogSubscription) Fail(err error) { s.reportErr(err) }

func (s *LogSubscription) deliver(lg ethtypes.Log) bool {
	select {
	case <-s.quit:
		return false
	case s.logs <- lg:
		return true
	}
}

func (s *LogSubscription) reportErr(err error) {
	select {
	case s.errs <- err:
	default:
		// Error channel full; the caller already has enough to act on.
	}
}

// EthGateway talks JSON-RPC through go-ethereum's ethclient, with an
// optional raw websocket stream for the live log tail.
type EthGateway struct {
	client       *ethclient.Client
	ws           *WSLogStream // nil when no ws_url is configured
	chainID      int64
	deployments  map[string]common.Address
	pollInterval time.Duration
}

// Options configures an EthGateway.
type Options struct {
	RPCURL  string
	WSURL   string
	ChainID int64
	// Deployments maps logical contract names to addresses on ChainID.
	Deployments map[string]string
	// PollInterval overrides the tail-follow pace; zero means default.
	PollInterval time.Duration
}

// Dial connects to the node and validates the configured chain id against
// the node's own.
func Dial(ctx context.Context, opts Options) (*EthGateway, error) {
	client, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, remoteErr("dial "+opts.RPCURL, err)
	}

	nodeChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, remoteErr("query chain id", err)
	}
	if nodeChainID.Int64() != opts.ChainID {
		client.Close()
		return nil, errors.Errorf("ledger: node reports chain %d, config expects %d", nodeChainID.Int64(), opts.ChainID)
	}

	deployments := make(map[string]common.Address, len(opts.Deployments))
	for name, hex := range opts.Deployments {
		if !common.IsHexAddress(hex) {
			client.Close()
			return nil, errors.Errorf("ledger: deployment %q has invalid address %q", name, hex)
		}
		deployments[name] = common.HexToAddress(hex)
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	g := &EthGateway{
		client:       client,
		chainID:      opts.ChainID,
		deployments:  deployments,
		pollInterval: interval,
	}
	if opts.WSURL != "" {
		g.ws = NewWSLogStream(opts.WSURL)
	}
	return g, nil
}

// Close releases the underlying connection.
func (g *EthGateway) Close() {
	g.client.Close()
}

// ChainID returns the configured chain id.
func (g *EthGateway) ChainID() int64 { return g.chainID }

// ResolveAddress looks a logical contract name up in the deployment
// registry. No remote round trip is involved; the registry stands in for
// the framework's deployment artifacts.
func (g *EthGateway) ResolveAddress(name string) (common.Address, error) {
	addr, ok := g.deployments[name]
	if !ok {
		return common.Address{}, &NotFoundError{Name: name, ChainID: g.chainID}
	}
	return addr, nil
}

// Call performs a read-only contract call and returns the unpacked results.
func (g *EthGateway) Call(ctx context.Context, from, to common.Address, cabi abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := cabi.Pack(method, args...)
	if err != nil {
		return nil, remoteErr("pack "+method, err)
	}
	raw, err := g.client.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, remoteErr("call "+method, err)
	}
	out, err := cabi.Unpack(method, raw)
	if err != nil {
		return nil, remoteErr("unpack "+method, err)
	}
	return out, nil
}

// Submit signs and sends a state-changing transaction. It returns as soon
// as the node accepts the transaction into its pool; confirmation is the
// caller's concern via WaitMined.
func (g *EthGateway) Submit(ctx context.Context, req SubmitRequest) (common.Hash, error) {
	if req.Key == nil {
		return common.Hash{}, errors.New("ledger: submit without signing key")
	}

	data, err := req.ABI.Pack(req.Method, req.Args...)
	if err != nil {
		return common.Hash{}, remoteErr("pack "+req.Method, err)
	}

	from := crypto.PubkeyToAddress(req.Key.PublicKey)
	nonce, err := g.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, remoteErr("fetch nonce", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = g.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, remoteErr("suggest gas price", err)
		}
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      req.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(g.chainID)), req.Key)
	if err != nil {
		return common.Hash{}, remoteErr("sign "+req.Method, err)
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, remoteErr("send "+req.Method, err)
	}

	logger.WithField("tx", signed.Hash().Hex()).Debugf("submitted %s to %s", req.Method, req.To.Hex())
	return signed.Hash(), nil
}

// WaitMined polls until the transaction has a receipt or ctx expires.
func (g *EthGateway) WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, remoteErr("fetch receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, remoteErr("wait mined", ctx.Err())
		case <-ticker.C:
		}
	}
}

// SuggestGasPrice asks the node for its current gas price suggestion.
func (g *EthGateway) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, remoteErr("suggest gas price", err)
	}
	return price, nil
}

// SubscribeLogs replays historical logs for addr from fromBlock, then
// follows the live tail. The tail uses the websocket stream when one is
// configured and falls back to block-range polling otherwise. Ranges may
// overlap around the replay/tail handover, so the same log can be delivered
// more than once.
func (g *EthGateway) SubscribeLogs(ctx context.Context, addr common.Address, fromBlock uint64) (*LogSubscription, error) {
	latest, err := g.client.BlockNumber(ctx)
	if err != nil {
		return nil, remoteErr("query head", err)
	}

	sub := newLogSubscription()
	go g.runSubscription(ctx, sub, addr, fromBlock, latest)
	return sub, nil
}

func (g *EthGateway) runSubscription(ctx context.Context, sub *LogSubscription, addr common.Address, fromBlock, latest uint64) {
	// Historical replay up to the head observed at subscribe time.
	if fromBlock <= latest {
		if !g.replayRange(ctx, sub, addr, fromBlock, latest) {
			return
		}
	}

	// Live tail. The websocket path re-subscribes from the node's current
	// head, so the poller below also covers the gap between `latest` and
	// the stream start; overlap is deduplicated downstream.
	if g.ws != nil {
		if err := g.ws.Stream(ctx, addr, sub); err != nil {
			sub.reportErr(errors.Wrap(err, "websocket tail failed, falling back to polling"))
		} else {
			return
		}
	}
	g.pollTail(ctx, sub, addr, latest+1)
}

// replayRange delivers all logs in [from, to]. Returns false when the
// subscription closed mid-replay.
func (g *EthGateway) replayRange(ctx context.Context, sub *LogSubscription, addr common.Address, from, to uint64) bool {
	logs, err := g.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{addr},
	})
	if err != nil {
		sub.reportErr(remoteErr("replay logs", err))
		return true
	}
	for _, lg := range logs {
		if !sub.deliver(lg) {
			return false
		}
	}
	return true
}

func (g *EthGateway) pollTail(ctx context.Context, sub *LogSubscription, addr common.Address, next uint64) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := g.client.BlockNumber(ctx)
		if err != nil {
			sub.reportErr(remoteErr("query head", err))
			continue
		}
		if head < next {
			continue
		}
		if !g.replayRange(ctx, sub, addr, next, head) {
			return
		}
		next = head + 1
	}
}
