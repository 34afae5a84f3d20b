// Package feed watches Solana accounts over the RPC websocket and wakes the
// trading loop when one of them changes.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// ChangeHandler is called with the account that changed.
type ChangeHandler func(account solana.PublicKey)

// AccountFeed subscribes to accountSubscribe notifications for a fixed set
// of accounts and reconnects with exponential backoff.
type AccountFeed struct {
	wsURL      string
	accounts   []solana.PublicKey
	commitment string
	onChange   ChangeHandler
	logger     *slog.Logger
	dialer     websocket.Dialer

	backoffMin time.Duration
	backoffMax time.Duration
}

// NewAccountFeed creates a feed for accounts on the websocket at wsURL.
func NewAccountFeed(wsURL string, accounts []solana.PublicKey, onChange ChangeHandler, logger *slog.Logger) *AccountFeed {
	return &AccountFeed{
		wsURL:      wsURL,
		accounts:   accounts,
		commitment: "confirmed",
		onChange:   onChange,
		logger:     logger.With(slog.String("component", "account_feed")),
		dialer:     websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		backoffMin: minBackoff,
		backoffMax: maxBackoff,
	}
}

// Run keeps a subscription open until ctx ends.
func (f *AccountFeed) Run(ctx context.Context) error {
	if len(f.accounts) == 0 {
		f.logger.Info("no accounts to watch, exiting")
		return nil
	}

	backoff := f.backoffMin
	for {
		started := time.Now()
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordFeedReconnect()
		if time.Since(started) > f.backoffMax {
			backoff = f.backoffMin
		}
		f.logger.Warn("account feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.backoffMax)
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params struct {
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

func (f *AccountFeed) runConnection(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
		})
	}
	defer closeConn()

	var writeMu sync.Mutex
	write := func(msgType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(msgType, data)
	}

	// Request ids are 1-based indexes into f.accounts.
	for i, acc := range f.accounts {
		req, err := json.Marshal(rpcRequest{
			JSONRPC: "2.0",
			ID:      uint64(i + 1),
			Method:  "accountSubscribe",
			Params: []any{
				acc.String(),
				map[string]string{"encoding": "base64", "commitment": f.commitment},
			},
		})
		if err != nil {
			return fmt.Errorf("feed: marshal subscribe: %w", err)
		}
		if err := write(websocket.TextMessage, req); err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", acc, err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				closeConn()
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	subs := make(map[uint64]solana.PublicKey, len(f.accounts))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		if err := f.handle(data, subs); err != nil {
			return err
		}
	}
}

func (f *AccountFeed) handle(data []byte, subs map[uint64]solana.PublicKey) error {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("ignoring malformed message", slog.String("error", err.Error()))
		return nil
	}

	switch {
	case msg.ID != nil:
		idx := *msg.ID
		if idx == 0 || idx > uint64(len(f.accounts)) {
			return nil
		}
		acc := f.accounts[idx-1]
		if msg.Error != nil {
			return fmt.Errorf("feed: subscribe %s: rpc error %d: %s", acc, msg.Error.Code, msg.Error.Message)
		}
		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return fmt.Errorf("feed: subscribe %s: decode subscription id: %w", acc, err)
		}
		subs[subID] = acc
		f.logger.Info("watching account", slog.String("account", acc.String()), slog.Uint64("subscription", subID))

	case msg.Method == "accountNotification":
		acc, ok := subs[msg.Params.Subscription]
		if !ok {
			return nil
		}
		f.logger.Debug("account changed", slog.String("account", acc.String()))
		if f.onChange != nil {
			f.onChange(acc)
		}
	}
	return nil
}
