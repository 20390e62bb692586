package wallet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

// bridgeEvent is a message pushed by the wallet bridge endpoint.
type bridgeEvent struct {
	Event    string   `json:"event"`
	Accounts []string `json:"accounts"`
}

// Bridge subscribes to a wallet bridge websocket endpoint and forwards
// accountsChanged events into the adapter. The wallet can switch accounts
// at any time without the app asking; the bridge is how the client finds
// out.
type Bridge struct {
	url     string
	adapter *Adapter
	log     *logger.Logger

	reconnectWait time.Duration
}

// NewBridge creates a bridge feeding the given adapter.
func NewBridge(url string, adapter *Adapter, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewDefault("wallet-bridge")
	}
	return &Bridge{
		url:           url,
		adapter:       adapter,
		log:           log,
		reconnectWait: 5 * time.Second,
	}
}

// Run connects and reads events until the context is cancelled,
// reconnecting on connection loss.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if err := b.readLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.WithError(err).Warn("wallet bridge connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.reconnectWait):
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	b.log.WithField("url", b.url).Info("wallet bridge connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev bridgeEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			b.log.WithError(err).Debug("ignoring malformed bridge message")
			continue
		}
		if ev.Event != "accountsChanged" {
			continue
		}

		accounts := make([]educhain.AccountID, 0, len(ev.Accounts))
		for _, raw := range ev.Accounts {
			accounts = append(accounts, educhain.AccountID(raw))
		}
		b.adapter.HandleAccountsChanged(accounts)
	}
}
