// Package contracts holds the interface descriptors for the deployed
// contracts the client binds to: the Exchange and the FixedSupplyToken.
package contracts

// Logical contract names used for binding resolution.
const (
	NameExchange = "Exchange"
	NameToken    = "FixedSupplyToken"
)

// Exchange method names.
const (
	MethodDepositEther      = "depositEther"
	MethodWithdrawEther     = "withdrawEther"
	MethodGetEthBalance     = "getEthBalanceInWei"
	MethodDepositToken      = "depositToken"
	MethodWithdrawToken     = "withdrawToken"
	MethodGetBalance        = "getBalance"
	MethodAddToken          = "addToken"
	MethodHasToken          = "hasToken"
	MethodBuyToken          = "buyToken"
	MethodSellToken         = "sellToken"
	MethodGetBuyOrderBook   = "getBuyOrderBook"
	MethodGetSellOrderBook  = "getSellOrderBook"
)

// Token method names.
const (
	MethodBalanceOf = "balanceOf"
	MethodTransfer  = "transfer"
	MethodApprove   = "approve"
)

// Exchange event names.
const (
	EventTokenAddedToSystem      = "TokenAddedToSystem"
	EventDepositForTokenReceived = "DepositForTokenReceived"
	EventWithdrawalToken         = "WithdrawalToken"
	EventDepositForEthReceived   = "DepositForEthReceived"
	EventWithdrawalEth           = "WithdrawalEth"
	EventLimitSellOrderCreated   = "LimitSellOrderCreated"
	EventSellOrderFulfilled      = "SellOrderFulfilled"
	EventSellOrderCanceled       = "SellOrderCanceled"
	EventLimitBuyOrderCreated    = "LimitBuyOrderCreated"
	EventBuyOrderFulfilled       = "BuyOrderFulfilled"
	EventBuyOrderCanceled        = "BuyOrderCanceled"
)

// Token event names.
const (
	EventTransfer = "Transfer"
	EventApproval = "Approval"
)

// TradeEventNames are the events the trading view listens for.
var TradeEventNames = []string{
	EventLimitBuyOrderCreated,
	EventLimitSellOrderCreated,
	EventBuyOrderFulfilled,
	EventSellOrderFulfilled,
}
