package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

// Session is a snapshot of the wallet state at the moment an operation
// starts. Gateway calls carry a Session instead of reading ambient state;
// a stale snapshot is detected explicitly via Verify.
type Session struct {
	Account educhain.AccountID
	ChainID uint64
	epoch   uint64
}

// Adapter tracks the wallet's current account and notifies dependents when
// the wallet switches accounts externally. Epoch increments on every
// change, invalidating previously issued sessions.
type Adapter struct {
	mu        sync.RWMutex
	provider  Provider
	current   educhain.AccountID
	accounts  []educhain.AccountID
	epoch     uint64
	listeners []func(educhain.AccountID)
	log       *logger.Logger
}

// NewAdapter creates an adapter over the given provider.
func NewAdapter(provider Provider, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Adapter{provider: provider, log: log}
}

// Refresh reloads the visible account list from the provider.
func (a *Adapter) Refresh(ctx context.Context) error {
	if a.provider == nil {
		return ErrNoProvider
	}
	accounts, err := a.provider.Accounts(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts = accounts
	return nil
}

// Accounts returns the last known visible account list.
func (a *Adapter) Accounts() []educhain.AccountID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]educhain.AccountID, len(a.accounts))
	copy(out, a.accounts)
	return out
}

// Current returns the active account, if one is selected.
func (a *Adapter) Current() (educhain.AccountID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current, a.current != ""
}

// Select requests wallet permission for the given account, makes it the
// active account, and returns a session snapshot for it.
func (a *Adapter) Select(ctx context.Context, account educhain.AccountID) (Session, error) {
	if a.provider == nil {
		return Session{}, ErrNoProvider
	}
	if !account.Valid() {
		return Session{}, educhain.NewError(educhain.ErrCodeValidation, "malformed account address: "+string(account))
	}

	if err := a.provider.RequestAccess(ctx, account); err != nil {
		return Session{}, err
	}
	chainID, err := a.provider.ChainID(ctx)
	if err != nil {
		return Session{}, err
	}

	a.mu.Lock()
	if !a.current.Equal(account) {
		a.current = account
		a.epoch++
	}
	session := Session{Account: account, ChainID: chainID, epoch: a.epoch}
	a.mu.Unlock()

	a.log.WithField("account", string(account)).Info("account selected")
	return session, nil
}

// Session returns a snapshot for the currently active account.
func (a *Adapter) Session(ctx context.Context) (Session, error) {
	if a.provider == nil {
		return Session{}, ErrNoProvider
	}

	a.mu.RLock()
	current := a.current
	epoch := a.epoch
	a.mu.RUnlock()

	if current == "" {
		return Session{}, errors.New("no account selected")
	}
	chainID, err := a.provider.ChainID(ctx)
	if err != nil {
		return Session{}, err
	}
	return Session{Account: current, ChainID: chainID, epoch: epoch}, nil
}

// Verify checks that the session still refers to the wallet's active
// account. A stale session means the wallet switched accounts after the
// snapshot was taken.
func (a *Adapter) Verify(s Session) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.epoch != s.epoch || !a.current.Equal(s.Account) {
		return educhain.NewError(educhain.ErrCodeAccountChanged,
			"wallet account changed since operation started")
	}
	return nil
}

// OnChange registers a callback invoked whenever the active account
// changes externally. The new account may be empty when the wallet
// disconnects entirely.
func (a *Adapter) OnChange(fn func(educhain.AccountID)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// HandleAccountsChanged ingests an external accountsChanged event from the
// wallet. The first account in the list becomes active.
func (a *Adapter) HandleAccountsChanged(accounts []educhain.AccountID) {
	a.mu.Lock()
	a.accounts = accounts

	var next educhain.AccountID
	if len(accounts) > 0 {
		next = accounts[0]
	}
	changed := !a.current.Equal(next)
	if changed {
		a.current = next
		a.epoch++
	}
	listeners := make([]func(educhain.AccountID), len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	if !changed {
		return
	}
	a.log.WithField("account", string(next)).Warn("wallet account changed externally")
	for _, fn := range listeners {
		fn(next)
	}
}

// Sign verifies the session is still current and signs msg through the
// provider. A decline from the signer is classified as a submission
// rejection.
func (a *Adapter) Sign(ctx context.Context, s Session, msg chain.CallMsg) (string, error) {
	if err := a.Verify(s); err != nil {
		return "", err
	}
	signed, err := a.provider.SignTransaction(ctx, s.Account, msg)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) || isUserRejection(err) {
			return "", educhain.WrapError(educhain.ErrCodeSubmissionRejected,
				"signer declined the request", err)
		}
		return "", err
	}
	// The wallet may have switched accounts while the signing prompt was
	// open; a signature from the wrong account must not be broadcast.
	if err := a.Verify(s); err != nil {
		return "", err
	}
	return signed, nil
}

// isUserRejection reports whether a signing error reads like a user
// declining the wallet prompt. Wallet implementations phrase this
// inconsistently.
func isUserRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}
