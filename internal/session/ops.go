package session

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/godex/internal/balances"
	"github.com/betbot/godex/internal/book"
	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/orchestrator"
	"github.com/betbot/godex/pkg/etherconv"
)

// DepositEther moves native currency from the wallet into the exchange.
func (s *Session) DepositEther(ctx context.Context, amountWei *big.Int) (*orchestrator.Pending, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	s.Status("Initiating deposit of " + etherconv.FormatWei(amountWei) + "...")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpDepositCurrency,
		Handle: exchange,
		Method: contracts.MethodDepositEther,
		Value:  amountWei,
	})
}

// WithdrawEther moves native currency from the exchange back to the wallet.
func (s *Session) WithdrawEther(ctx context.Context, amountWei *big.Int) (*orchestrator.Pending, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	s.Status("Initiating withdrawal of " + etherconv.FormatWei(amountWei) + "...")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpWithdrawCurrency,
		Handle: exchange,
		Method: contracts.MethodWithdrawEther,
		Args:   []interface{}{amountWei},
	})
}

// DepositToken moves previously-approved tokens into the exchange.
func (s *Session) DepositToken(ctx context.Context, symbol string, amount *big.Int) (*orchestrator.Pending, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	s.Status("Initiating token deposit...")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpDepositAsset,
		Handle: exchange,
		Method: contracts.MethodDepositToken,
		Args:   []interface{}{symbol, amount},
		Symbol: symbol,
	})
}

// WithdrawToken moves tokens from the exchange back to the wallet.
func (s *Session) WithdrawToken(ctx context.Context, symbol string, amount *big.Int) (*orchestrator.Pending, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	s.Status("Initiating withdrawal...")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpWithdrawAsset,
		Handle: exchange,
		Method: contracts.MethodWithdrawToken,
		Args:   []interface{}{symbol, amount},
		Symbol: symbol,
	})
}

// PlaceBuyOrder rests or matches a limit buy at priceWei per token.
func (s *Session) PlaceBuyOrder(ctx context.Context, symbol string, priceWei, amount *big.Int) (*orchestrator.Pending, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	s.Status("Placing buy order...")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpPlaceBuyOrder,
		Handle: exchange,
		Method: contracts.MethodBuyToken,
		Args:   []interface{}{symbol, priceWei, amount},
		Symbol: symbol,
	})
}

// PlaceSellOrder rests or matches a limit sell at priceWei per token.
func (s *Session) PlaceSellOrder(ctx context.Context, symbol string, priceWei, amount *big.Int) (*orchestrator.Pending, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	s.Status("Placing sell order...")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpPlaceSellOrder,
		Handle: exchange,
		Method: contracts.MethodSellToken,
		Args:   []interface{}{symbol, priceWei, amount},
		Symbol: symbol,
	})
}

// TransferToken sends wallet-held tokens to another account.
func (s *Session) TransferToken(ctx context.Context, symbol string, to common.Address, amount *big.Int) (*orchestrator.Pending, error) {
	token, err := s.Binder.Resolve(contracts.NameToken)
	if err != nil {
		return nil, err
	}
	s.Status("Initiating transfer... (please wait)")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpTransferAsset,
		Handle: token,
		Method: contracts.MethodTransfer,
		Args:   []interface{}{to, amount},
		Symbol: symbol,
	})
}

// ApproveToken grants a spender an allowance over wallet-held tokens. No
// balance changes, so no refresh is coupled to it.
func (s *Session) ApproveToken(ctx context.Context, spender common.Address, amount *big.Int) (*orchestrator.Pending, error) {
	token, err := s.Binder.Resolve(contracts.NameToken)
	if err != nil {
		return nil, err
	}
	s.Status("Initiating approval... (please wait)")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpApproveAllowance,
		Handle: token,
		Method: contracts.MethodApprove,
		Args:   []interface{}{spender, amount},
	})
}

// AddTokenToExchange registers a token symbol with the exchange.
// Administrative; only the exchange owner's transactions succeed.
func (s *Session) AddTokenToExchange(ctx context.Context, symbol string, tokenAddr common.Address) (*orchestrator.Pending, error) {
	exchange, err := s.Binder.Resolve(contracts.NameExchange)
	if err != nil {
		return nil, err
	}
	s.Status("Registering token " + symbol + "...")
	return s.Orch.Submit(ctx, orchestrator.Request{
		Op:     orchestrator.OpRegisterAsset,
		Handle: exchange,
		Method: contracts.MethodAddToken,
		Args:   []interface{}{symbol, tokenAddr},
	})
}

// RefreshBalances re-queries the native, exchange-held and wallet-held
// balances of symbol for the active account.
func (s *Session) RefreshBalances(ctx context.Context, symbol string) error {
	account, err := s.Account()
	if err != nil {
		return err
	}
	return s.Balances.RefreshAll(ctx, account, symbol)
}

// BalanceSnapshot returns the last known balances of the active account.
// Assets never refreshed are absent, not zero.
func (s *Session) BalanceSnapshot() (map[string]*big.Int, error) {
	account, err := s.Account()
	if err != nil {
		return nil, err
	}
	return s.Balances.Snapshot(account), nil
}

// OrderBook projects the current order book for symbol.
func (s *Session) OrderBook(ctx context.Context, symbol string) (*book.View, error) {
	return s.Books.Project(ctx, symbol)
}

// NativeAsset is the snapshot key of the exchange-held native balance.
const NativeAsset = balances.AssetNative
