// Package store persists custodial accounts and their per-chain bindings.
package store

import (
	"errors"
	"time"

	"github.com/m3rciful/walletbot/internal/chain"
)

// ErrNotFound is returned when no account exists for a chat identity.
var ErrNotFound = errors.New("account not found")

// ChainBinding gives an account capability on one blockchain. The key-share
// handle is opaque custody material; it is never logged and never leaves the
// process except inside custody provider calls.
type ChainBinding struct {
	Address        string
	KeyShareHandle string
}

// Account is the durable record bound to one chat identity. Chain bindings are
// created atomically with the account and never mutated afterwards.
type Account struct {
	ID           int64
	ChatIdentity string
	DisplayName  string
	Chains       map[chain.Tag]ChainBinding
	CreatedAt    time.Time
}

// Binding returns the binding for the given chain, if present.
func (a *Account) Binding(t chain.Tag) (ChainBinding, bool) {
	if a == nil {
		return ChainBinding{}, false
	}
	b, ok := a.Chains[t]
	return b, ok
}
