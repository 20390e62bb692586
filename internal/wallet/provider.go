// Package wallet wraps the external wallet capability: account discovery,
// permission requests, and transaction signing. The wallet owns the current
// account and may switch it outside the app's control, so everything here
// is built around explicit session snapshots rather than ambient lookup.
package wallet

import (
	"context"
	"errors"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/educhain"
)

// ErrNoProvider indicates no wallet capability is present.
var ErrNoProvider = errors.New("no wallet provider available")

// ErrPermissionDenied indicates the user declined the account request.
var ErrPermissionDenied = errors.New("wallet permission denied")

// Provider is the capability surface the external wallet must present.
type Provider interface {
	// Accounts lists the accounts currently visible to the app.
	Accounts(ctx context.Context) ([]educhain.AccountID, error)

	// RequestAccess asks the wallet for permission to use the given
	// account. Fails with ErrNoProvider or ErrPermissionDenied.
	RequestAccess(ctx context.Context, account educhain.AccountID) error

	// ChainID returns the identity of the wallet's active network.
	ChainID(ctx context.Context) (uint64, error)

	// SignTransaction signs msg on behalf of from and returns the raw
	// signed transaction hex, ready for broadcast.
	SignTransaction(ctx context.Context, from educhain.AccountID, msg chain.CallMsg) (string, error)
}
