package statusapi

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/godex/internal/contracts"
	"github.com/betbot/godex/internal/ledger/ledgertest"
	"github.com/betbot/godex/internal/session"
	"github.com/betbot/godex/pkg/config"
	"github.com/betbot/godex/pkg/wallet"
)

func newTestServer(t *testing.T, gw *ledgertest.FakeGateway) (*session.Session, *httptest.Server) {
	t.Helper()
	if gw.Addresses == nil {
		gw.Addresses = map[string]common.Address{
			contracts.NameExchange: common.HexToAddress("0x0000000000000000000000000000000000000e01"),
			contracts.NameToken:    common.HexToAddress("0x0000000000000000000000000000000000000e02"),
		}
	}

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := &wallet.Wallet{}
	w.SetPrivateKey(key)

	sess := session.New(context.Background(), config.Default(), w, gw)
	t.Cleanup(sess.Close)

	srv := httptest.NewServer(New(sess, "127.0.0.1:0").Handler())
	t.Cleanup(srv.Close)
	return sess, srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	sess, srv := newTestServer(t, gw)
	sess.Status("Transaction complete!")

	var body map[string]interface{}
	code := getJSON(t, srv.URL+"/api/v1/status", &body)
	require.Equal(t, http.StatusOK, code)

	account, err := sess.Account()
	require.NoError(t, err)
	assert.Equal(t, account.Hex(), body["account"])
	require.IsType(t, "", body["exchange"])
	assert.Equal(t, gw.Addresses[contracts.NameExchange], common.HexToAddress(body["exchange"].(string)))
	assert.Equal(t, "Transaction complete!", body["last_status"])
}

func TestBalancesEndpoint(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	gw.CallFn = func(_ context.Context, _, _ common.Address, _ abi.ABI, _ string, _ ...interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(12345)}, nil
	}
	sess, srv := newTestServer(t, gw)

	account, err := sess.Account()
	require.NoError(t, err)
	_, err = sess.Balances.Refresh(context.Background(), account, session.NativeAsset)
	require.NoError(t, err)

	var body struct {
		Balances map[string]string `json:"balances"`
	}
	code := getJSON(t, srv.URL+"/api/v1/balances", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "12345", body.Balances[session.NativeAsset])
}

func TestOrderBookEndpoint(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	gw.CallFn = func(_ context.Context, _, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
		if method == contracts.MethodGetSellOrderBook {
			return []interface{}{[]*big.Int{big.NewInt(2)}, []*big.Int{big.NewInt(10)}}, nil
		}
		return []interface{}{[]*big.Int{}, []*big.Int{}}, nil
	}
	sess, srv := newTestServer(t, gw)

	// Nothing projected yet.
	code := getJSON(t, srv.URL+"/api/v1/orderbook/FIXED", nil)
	assert.Equal(t, http.StatusNotFound, code)

	_, err := sess.OrderBook(context.Background(), "FIXED")
	require.NoError(t, err)

	var body struct {
		Symbol string `json:"symbol"`
		Asks   []struct {
			Price  string `json:"price"`
			Volume string `json:"volume"`
		} `json:"asks"`
		Bids []interface{} `json:"bids"`
	}
	code = getJSON(t, srv.URL+"/api/v1/orderbook/FIXED", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FIXED", body.Symbol)
	require.Len(t, body.Asks, 1)
	assert.Equal(t, "2", body.Asks[0].Price)
	assert.Equal(t, "10", body.Asks[0].Volume)
	assert.Empty(t, body.Bids)
}

func TestEventsEndpoint(t *testing.T) {
	gw := &ledgertest.FakeGateway{}
	sess, srv := newTestServer(t, gw)

	_, err := sess.WatchExchangeEvents(context.Background(), nil)
	require.NoError(t, err)

	h, err := sess.Binder.Resolve(contracts.NameExchange)
	require.NoError(t, err)
	gw.Subscriptions()[0].Feed(ledgertest.MustEventLog(h.ABI, h.Address,
		contracts.EventDepositForEthReceived, 4, 1,
		[]interface{}{common.HexToAddress("0xaa")},
		[]interface{}{big.NewInt(9), big.NewInt(1_600_000_000)},
	))

	require.Eventually(t, func() bool {
		return len(sess.RecentEvents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var body struct {
		Events []struct {
			Source string            `json:"source"`
			Kind   string            `json:"kind"`
			Block  uint64            `json:"block"`
			Args   map[string]string `json:"args"`
		} `json:"events"`
	}
	code := getJSON(t, srv.URL+"/api/v1/events", &body)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "exchange", body.Events[0].Source)
	assert.Equal(t, contracts.EventDepositForEthReceived, body.Events[0].Kind)
	assert.Equal(t, uint64(4), body.Events[0].Block)
	assert.Equal(t, "9", body.Events[0].Args["_amount"])
}
