package contracts

// ExchangeABI is the interface descriptor for the on-chain Exchange.
const ExchangeABI = `[
  {"type":"function","name":"depositEther","inputs":[],"outputs":[],"stateMutability":"payable"},
  {"type":"function","name":"withdrawEther","inputs":[{"name":"amountInWeiToWithdraw","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"getEthBalanceInWei","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"depositToken","inputs":[{"name":"symbolName","type":"string"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"withdrawToken","inputs":[{"name":"symbolName","type":"string"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"getBalance","inputs":[{"name":"symbolName","type":"string"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"addToken","inputs":[{"name":"symbolName","type":"string"},{"name":"erc20TokenAddress","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"hasToken","inputs":[{"name":"symbolName","type":"string"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
  {"type":"function","name":"buyToken","inputs":[{"name":"symbolName","type":"string"},{"name":"priceInWei","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"sellToken","inputs":[{"name":"symbolName","type":"string"},{"name":"priceInWei","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"getBuyOrderBook","inputs":[{"name":"symbolName","type":"string"}],"outputs":[{"name":"prices","type":"uint256[]"},{"name":"volumes","type":"uint256[]"}],"stateMutability":"view"},
  {"type":"function","name":"getSellOrderBook","inputs":[{"name":"symbolName","type":"string"}],"outputs":[{"name":"prices","type":"uint256[]"},{"name":"volumes","type":"uint256[]"}],"stateMutability":"view"},
  {"type":"event","name":"TokenAddedToSystem","inputs":[{"name":"_symbolIndex","type":"uint256","indexed":false},{"name":"_token","type":"string","indexed":false},{"name":"_timestamp","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"DepositForTokenReceived","inputs":[{"name":"_from","type":"address","indexed":true},{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_amount","type":"uint256","indexed":false},{"name":"_timestamp","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"WithdrawalToken","inputs":[{"name":"_to","type":"address","indexed":true},{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_amount","type":"uint256","indexed":false},{"name":"_timestamp","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"DepositForEthReceived","inputs":[{"name":"_from","type":"address","indexed":true},{"name":"_amount","type":"uint256","indexed":false},{"name":"_timestamp","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"WithdrawalEth","inputs":[{"name":"_to","type":"address","indexed":true},{"name":"_amount","type":"uint256","indexed":false},{"name":"_timestamp","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"LimitSellOrderCreated","inputs":[{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_who","type":"address","indexed":true},{"name":"_amountTokens","type":"uint256","indexed":false},{"name":"_priceInWei","type":"uint256","indexed":false},{"name":"_orderKey","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"SellOrderFulfilled","inputs":[{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_amountTokens","type":"uint256","indexed":false},{"name":"_priceInWei","type":"uint256","indexed":false},{"name":"_orderKey","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"SellOrderCanceled","inputs":[{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_priceInWei","type":"uint256","indexed":false},{"name":"_orderKey","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"LimitBuyOrderCreated","inputs":[{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_who","type":"address","indexed":true},{"name":"_amountTokens","type":"uint256","indexed":false},{"name":"_priceInWei","type":"uint256","indexed":false},{"name":"_orderKey","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"BuyOrderFulfilled","inputs":[{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_amountTokens","type":"uint256","indexed":false},{"name":"_priceInWei","type":"uint256","indexed":false},{"name":"_orderKey","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"BuyOrderCanceled","inputs":[{"name":"_symbolIndex","type":"uint256","indexed":true},{"name":"_priceInWei","type":"uint256","indexed":false},{"name":"_orderKey","type":"uint256","indexed":false}],"anonymous":false}
]`

// TokenABI is the ERC-20 interface of the FixedSupplyToken.
const TokenABI = `[
  {"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"balanceOf","inputs":[{"name":"_owner","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"transfer","inputs":[{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"transferFrom","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"approve","inputs":[{"name":"_spender","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"allowance","inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"outputs":[{"name":"remaining","type":"uint256"}],"stateMutability":"view"},
  {"type":"event","name":"Transfer","inputs":[{"name":"_from","type":"address","indexed":true},{"name":"_to","type":"address","indexed":true},{"name":"_value","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"Approval","inputs":[{"name":"_owner","type":"address","indexed":true},{"name":"_spender","type":"address","indexed":true},{"name":"_value","type":"uint256","indexed":false}],"anonymous":false}
]`

// ABIForName maps a logical contract name to its descriptor JSON. ok is
// false for unknown names.
func ABIForName(name string) (string, bool) {
	switch name {
	case NameExchange:
		return ExchangeABI, true
	case NameToken:
		return TokenABI, true
	default:
		return "", false
	}
}
