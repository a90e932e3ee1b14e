package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/betbot/godex/internal/binding"
	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/ledger/ledgertest"
)

type fakeIdentity struct {
	mu      sync.Mutex
	account common.Address
	key     *ecdsa.PrivateKey
	err     error
	keyErr  error
}

func newFakeIdentity(t *testing.T) *fakeIdentity {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeIdentity{
		account: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}
}

func (f *fakeIdentity) ActiveAccount() (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return common.Address{}, f.err
	}
	return f.account, nil
}

func (f *fakeIdentity) PrivateKey() (*ecdsa.PrivateKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	return f.key, nil
}

func (f *fakeIdentity) invalidateKey(err error) {
	f.mu.Lock()
	f.keyErr = err
	f.mu.Unlock()
}

func (f *fakeIdentity) invalidate(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type refreshRecord struct {
	asset  string // single-cell refreshes
	symbol string // full refreshes
}

type fakeBalances struct {
	mu      sync.Mutex
	records []refreshRecord
}

func (f *fakeBalances) Refresh(_ context.Context, _ common.Address, asset string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, refreshRecord{asset: asset})
	return big.NewInt(0), nil
}

func (f *fakeBalances) RefreshAll(_ context.Context, _ common.Address, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, refreshRecord{symbol: symbol})
	return nil
}

func (f *fakeBalances) all() []refreshRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]refreshRecord, len(f.records))
	copy(out, f.records)
	return out
}

type fakeBook struct {
	mu      sync.Mutex
	symbols []string
}

func (f *fakeBook) RefreshBook(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = append(f.symbols, symbol)
	return nil
}

func (f *fakeBook) refreshed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

func exchangeHandle(t *testing.T) *binding.Handle {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(contracts.ExchangeABI))
	require.NoError(t, err)
	return &binding.Handle{
		Name:    contracts.NameExchange,
		Address: common.HexToAddress("0x0000000000000000000000000000000000000e01"),
		ABI:     parsed,
	}
}

func awaitTerminal(t *testing.T, p *Pending) (Status, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, reason, err := p.Wait(ctx)
	require.NoError(t, err)
	return status, reason
}

func TestSubmitConfirmedRunsDeclaredRefreshes(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	bal := &fakeBalances{}
	book := &fakeBook{}
	o := New(context.Background(), gw, newFakeIdentity(t), bal, book)

	p, err := o.Submit(context.Background(), Request{
		Op:     OpPlaceSellOrder,
		Handle: exchangeHandle(t),
		Method: contracts.MethodSellToken,
		Args:   []interface{}{"FIXED", big.NewInt(2), big.NewInt(5)},
		Symbol: "FIXED",
	})
	require.NoError(t, err)

	status, _ := awaitTerminal(t, p)
	require.Equal(t, StatusConfirmed, status)

	require.Equal(t, []refreshRecord{{symbol: "FIXED"}}, bal.all())
	require.Equal(t, []string{"FIXED"}, book.refreshed())

	submits := gw.Submits()
	require.Len(t, submits, 1)
	require.Equal(t, contracts.MethodSellToken, submits[0].Method)
	require.Equal(t, uint64(4_000_000), submits[0].GasLimit)
}

func TestSubmitCurrencyOpRefreshesOnlyNativeCell(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	bal := &fakeBalances{}
	book := &fakeBook{}
	o := New(context.Background(), gw, newFakeIdentity(t), bal, book)

	p, err := o.Submit(context.Background(), Request{
		Op:     OpDepositCurrency,
		Handle: exchangeHandle(t),
		Method: contracts.MethodDepositEther,
		Value:  big.NewInt(1_000),
	})
	require.NoError(t, err)

	status, _ := awaitTerminal(t, p)
	require.Equal(t, StatusConfirmed, status)

	require.Equal(t, []refreshRecord{{asset: "native"}}, bal.all())
	require.Empty(t, book.refreshed(), "currency moves do not touch the book")
}

func TestSubmitFailureRunsNoRefreshes(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	gw.WaitMinedFn = func(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
		return &ethtypes.Receipt{Status: 0, TxHash: hash, BlockNumber: big.NewInt(1)}, nil
	}
	bal := &fakeBalances{}
	book := &fakeBook{}
	o := New(context.Background(), gw, newFakeIdentity(t), bal, book)

	p, err := o.Submit(context.Background(), Request{
		Op:     OpPlaceBuyOrder,
		Handle: exchangeHandle(t),
		Method: contracts.MethodBuyToken,
		Symbol: "FIXED",
	})
	require.NoError(t, err)

	status, reason := awaitTerminal(t, p)
	require.Equal(t, StatusFailed, status)
	require.Contains(t, reason, contracts.MethodBuyToken)

	require.Empty(t, bal.all(), "a failed submission must trigger no refreshes")
	require.Empty(t, book.refreshed())
}

func TestSubmitErrorMeansNothingSubmitted(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	gw.SubmitFn = func(_ context.Context, _ ledger.SubmitRequest) (common.Hash, error) {
		return common.Hash{}, errors.New("node unreachable")
	}
	bal := &fakeBalances{}
	o := New(context.Background(), gw, newFakeIdentity(t), bal, &fakeBook{})

	_, err := o.Submit(context.Background(), Request{
		Op:     OpWithdrawCurrency,
		Handle: exchangeHandle(t),
		Method: contracts.MethodWithdrawEther,
	})
	require.Error(t, err)
	require.Empty(t, bal.all())
}

func TestSubmitRevalidatesIdentityEachTime(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	identity := newFakeIdentity(t)
	o := New(context.Background(), gw, identity, &fakeBalances{}, &fakeBook{})

	var notices []string
	o.SetStatusFunc(func(msg string) { notices = append(notices, msg) })

	p, err := o.Submit(context.Background(), Request{
		Op:     OpDepositCurrency,
		Handle: exchangeHandle(t),
		Method: contracts.MethodDepositEther,
	})
	require.NoError(t, err)
	awaitTerminal(t, p)

	identity.invalidate(errors.New("keystore locked"))

	_, err = o.Submit(context.Background(), Request{
		Op:     OpDepositCurrency,
		Handle: exchangeHandle(t),
		Method: contracts.MethodDepositEther,
	})
	require.Error(t, err)
	require.Len(t, gw.Submits(), 1, "a blocked submission must not reach the ledger")
	require.Contains(t, notices[len(notices)-1], "no active account")
}

func TestSubmitMissingSigningKeyBlocksWithNotice(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	identity := newFakeIdentity(t)
	identity.invalidateKey(errors.New("signer gone"))
	o := New(context.Background(), gw, identity, &fakeBalances{}, &fakeBook{})

	var notices []string
	o.SetStatusFunc(func(msg string) { notices = append(notices, msg) })

	_, err := o.Submit(context.Background(), Request{
		Op:     OpDepositCurrency,
		Handle: exchangeHandle(t),
		Method: contracts.MethodDepositEther,
	})
	require.Error(t, err)
	require.Empty(t, gw.Submits())
	require.Len(t, notices, 1)
	require.Contains(t, notices[0], "no active account")
}

func TestSubmitUsesOracleGasPrice(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	o := New(context.Background(), gw, newFakeIdentity(t), &fakeBalances{}, &fakeBook{})
	o.SetGasPricer(gasPricerFunc(func(context.Context) (*big.Int, error) {
		return big.NewInt(7_000_000_000), nil
	}))

	p, err := o.Submit(context.Background(), Request{
		Op:     OpApproveAllowance,
		Handle: exchangeHandle(t),
		Method: contracts.MethodDepositEther,
	})
	require.NoError(t, err)
	awaitTerminal(t, p)

	submits := gw.Submits()
	require.Len(t, submits, 1)
	require.Equal(t, big.NewInt(7_000_000_000), submits[0].GasPrice)
	require.Equal(t, uint64(defaultGasLimit), submits[0].GasLimit)
}

func TestOnTerminalRunsAfterRefreshes(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	bal := &fakeBalances{}
	o := New(context.Background(), gw, newFakeIdentity(t), bal, &fakeBook{})

	terminal := make(chan Status, 1)
	p, err := o.Submit(context.Background(), Request{
		Op:     OpDepositAsset,
		Handle: exchangeHandle(t),
		Method: contracts.MethodDepositToken,
		Symbol: "FIXED",
		OnTerminal: func(p *Pending) {
			st, _ := p.Status()
			terminal <- st
		},
	})
	require.NoError(t, err)
	awaitTerminal(t, p)

	select {
	case st := <-terminal:
		require.Equal(t, StatusConfirmed, st)
	case <-time.After(2 * time.Second):
		t.Fatal("OnTerminal never ran")
	}
	require.Equal(t, []refreshRecord{{symbol: "FIXED"}}, bal.all())
}

type gasPricerFunc func(ctx context.Context) (*big.Int, error)

func (f gasPricerFunc) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return f(ctx) }
