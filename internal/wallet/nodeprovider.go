package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/educhain"
)

// NodeProvider is a Provider backed by a node with unlocked, node-managed
// accounts (a development chain, or a node fronted by a remote signer).
// Used by the CLI, where no browser wallet is available.
type NodeProvider struct {
	client *chain.Client
}

// NewNodeProvider creates a provider over the given RPC client.
func NewNodeProvider(client *chain.Client) *NodeProvider {
	return &NodeProvider{client: client}
}

// Accounts lists the node-managed accounts.
func (p *NodeProvider) Accounts(ctx context.Context) ([]educhain.AccountID, error) {
	result, err := p.client.Call(ctx, "eth_accounts", nil)
	if err != nil {
		return nil, err
	}

	var raw []string
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal accounts: %w", err)
	}
	accounts := make([]educhain.AccountID, len(raw))
	for i, a := range raw {
		accounts[i] = educhain.AccountID(a)
	}
	return accounts, nil
}

// RequestAccess verifies the account is managed by the node. Node-managed
// accounts have no permission prompt; an unknown account is a denial.
func (p *NodeProvider) RequestAccess(ctx context.Context, account educhain.AccountID) error {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.Equal(account) {
			return nil
		}
	}
	return fmt.Errorf("%w: account %s not managed by node", ErrPermissionDenied, account)
}

// ChainID returns the node's network identifier.
func (p *NodeProvider) ChainID(ctx context.Context) (uint64, error) {
	return p.client.ChainID(ctx)
}

// SignTransaction signs through the node's eth_signTransaction.
func (p *NodeProvider) SignTransaction(ctx context.Context, from educhain.AccountID, msg chain.CallMsg) (string, error) {
	msg.From = string(from)
	result, err := p.client.Call(ctx, "eth_signTransaction", []interface{}{msg})
	if err != nil {
		return "", err
	}

	// Nodes answer either {"raw": "0x..", "tx": {...}} or a bare string.
	var wrapped struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(result, &wrapped); err == nil && wrapped.Raw != "" {
		return wrapped.Raw, nil
	}
	var raw string
	if err := json.Unmarshal(result, &raw); err == nil && raw != "" {
		return raw, nil
	}
	return "", fmt.Errorf("unrecognized eth_signTransaction response")
}
