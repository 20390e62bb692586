// Package chain provides JSON-RPC interaction with the EduChain ledger node.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client is a JSON-RPC client for the EduChain ledger node.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
	// RateLimit caps outbound RPC calls per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

// NewClient creates a new ledger RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}, nil
}

// Call makes a JSON-RPC call to the ledger node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// ChainID returns the network identifier of the connected node.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, err
	}

	var hexID string
	if err := json.Unmarshal(result, &hexID); err != nil {
		return 0, err
	}
	return parseHexUint(hexID)
}

// EthCall performs a read-only contract call and returns the raw return data.
func (c *Client) EthCall(ctx context.Context, msg CallMsg) ([]byte, error) {
	result, err := c.Call(ctx, "eth_call", []interface{}{msg, "latest"})
	if err != nil {
		return nil, err
	}

	var hexData string
	if err := json.Unmarshal(result, &hexData); err != nil {
		return nil, err
	}
	return decodeHexBytes(hexData)
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, signedTx string) (string, error) {
	result, err := c.Call(ctx, "eth_sendRawTransaction", []interface{}{signedTx})
	if err != nil {
		return "", err
	}

	var txHash string
	if err := json.Unmarshal(result, &txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

// GetTransactionReceipt fetches the receipt for a transaction hash. A nil
// receipt with nil error means the transaction is not yet included.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, err
	}

	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}
	return ParseReceipt(result)
}

// DefaultTxWaitTimeout is the default timeout for confirmation waits.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for receipt polling.
const DefaultPollInterval = 2 * time.Second

// WaitForReceipt polls for a transaction receipt until it is available or
// the context is done. A missing receipt is transient and retried; the
// underlying transaction may still land after the caller gives up.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string, pollInterval time.Duration) (*Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.GetTransactionReceipt(ctx, txHash)
			if err != nil {
				if isNotFoundError(err) {
					continue
				}
				return nil, err
			}
			if receipt == nil {
				continue
			}
			return receipt, nil
		}
	}
}

// SendRawTransactionAndWait broadcasts a signed transaction and waits for
// its receipt. waitTimeout <= 0 uses DefaultTxWaitTimeout.
func (c *Client) SendRawTransactionAndWait(ctx context.Context, signedTx string, pollInterval, waitTimeout time.Duration) (*Receipt, error) {
	txHash, err := c.SendRawTransaction(ctx, signedTx)
	if err != nil {
		return nil, err
	}

	if waitTimeout <= 0 {
		waitTimeout = DefaultTxWaitTimeout
	}

	wctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	return c.WaitForReceipt(wctx, txHash, pollInterval)
}

// isNotFoundError reports whether an RPC error indicates a transaction
// that is not yet known to the node.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "unknown transaction")
}
