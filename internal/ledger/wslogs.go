package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/betbot/godex/pkg/logger"
)

const (
	wsHandshakeTimeout = 15 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsReconnectDelay   = 3 * time.Second
)

// WSLogStream follows a contract's logs through a raw eth_subscribe
// websocket session. It exists so the live tail is push-driven instead of
// polled when the node exposes a ws endpoint.
type WSLogStream struct {
	url string
}

// NewWSLogStream creates a stream for the given ws:// or wss:// URL.
func NewWSLogStream(url string) *WSLogStream {
	return &WSLogStream{url: url}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stream blocks, delivering logs for addr into sub until the subscription
// closes or ctx expires. The first connection attempt failing is returned
// as an error so the caller can fall back to polling; later faults are
// reported on the subscription's error channel and followed by a
// reconnect.
func (s *WSLogStream) Stream(ctx context.Context, addr common.Address, sub *LogSubscription) error {
	conn, err := s.connect(ctx, addr)
	if err != nil {
		return err
	}

	for {
		err := s.readLoop(conn, sub)
		_ = conn.Close()

		select {
		case <-sub.quit:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		if err != nil {
			sub.reportErr(errors.Wrap(err, "log stream interrupted"))
		}

		// Reconnect. Any logs emitted during the gap are not replayed
		// here; the consumer's dedup set makes an overlapping manual
		// re-watch safe.
		select {
		case <-sub.quit:
			return nil
		case <-ctx.Done():
			return nil
		case <-time.After(wsReconnectDelay):
		}

		conn, err = s.connect(ctx, addr)
		if err != nil {
			sub.reportErr(errors.Wrap(err, "log stream reconnect failed"))
			continue
		}
		logger.WithField("url", s.url).Debug("log stream reconnected")
	}
}

func (s *WSLogStream) connect(ctx context.Context, addr common.Address) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", s.url)
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params: []interface{}{
			"logs",
			map[string]interface{}{"address": addr.Hex()},
		},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "send eth_subscribe")
	}

	// First frame must be the subscription ack.
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "read eth_subscribe ack")
	}
	if ack.Error != nil {
		_ = conn.Close()
		return nil, errors.Errorf("eth_subscribe rejected: %s", ack.Error.Message)
	}
	return conn, nil
}

func (s *WSLogStream) readLoop(conn *websocket.Conn, sub *LogSubscription) error {
	for {
		select {
		case <-sub.quit:
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Method != "eth_subscription" || len(msg.Params.Result) == 0 {
			continue
		}

		var lg ethtypes.Log
		if err := json.Unmarshal(msg.Params.Result, &lg); err != nil {
			sub.reportErr(errors.Wrap(err, "decode log notification"))
			continue
		}
		if lg.Removed {
			// Reorged out; the canonical replacement arrives on its own.
			continue
		}
		if !sub.deliver(lg) {
			return nil
		}
	}
}
