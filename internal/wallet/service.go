// Package wallet provisions custodial accounts and aggregates balances.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/internal/chain"
	"github.com/m3rciful/walletbot/internal/custody"
	"github.com/m3rciful/walletbot/internal/store"
)

// Store is the durable account store consumed by the service.
type Store interface {
	FindByIdentity(ctx context.Context, chatIdentity string) (*store.Account, error)
	InsertIfAbsent(ctx context.Context, acct *store.Account) (bool, error)
}

// Custody creates chain accounts at the external MPC provider.
type Custody interface {
	CreateChainAccount(ctx context.Context, identityKey string, tag chain.Tag) (custody.Binding, error)
}

// BalanceReader reads one chain's balance in its smallest unit.
type BalanceReader interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
}

// Service implements account provisioning and balance aggregation.
type Service struct {
	store     Store
	custody   Custody
	readers   map[chain.Tag]BalanceReader
	namespace string
	log       *slog.Logger
}

// NewService wires the wallet service.
func NewService(st Store, cust Custody, readers map[chain.Tag]BalanceReader, namespace string) *Service {
	return &Service{
		store:     st,
		custody:   cust,
		readers:   readers,
		namespace: namespace,
		log:       logger.SVCWallet,
	}
}

// identityKey derives the deterministic custody identity key for a chat
// identity, namespaced so deployments do not collide in the provider's
// identity space.
func (s *Service) identityKey(chatIdentity string) string {
	return s.namespace + ":" + chatIdentity
}

// Provision returns the account bound to the chat identity, creating it on
// first contact. Creation is all-chains-or-nothing: every chain binding must
// come back from custody before a single durable write happens, so no account
// ever exists with a missing chain address.
func (s *Service) Provision(ctx context.Context, chatIdentity, displayName string) (*store.Account, error) {
	if chatIdentity == "" {
		return nil, ErrIdentityMissing
	}

	acct, err := s.store.FindByIdentity(ctx, chatIdentity)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	start := time.Now()
	key := s.identityKey(chatIdentity)
	bindings := make(map[chain.Tag]store.ChainBinding, len(chain.All()))
	for _, tag := range chain.All() {
		b, err := s.custody.CreateChainAccount(ctx, key, tag)
		if err != nil {
			s.log.Error("provisioning aborted",
				slog.String("event", "wallet.provision"),
				slog.String("rid", logger.RIDFrom(ctx)),
				slog.String("chat_identity", chatIdentity),
				slog.String("chain", string(tag)),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
		}
		bindings[tag] = store.ChainBinding{
			Address:        b.Address,
			KeyShareHandle: b.KeyShareHandle,
		}
	}

	acct = &store.Account{
		ChatIdentity: chatIdentity,
		DisplayName:  displayName,
		Chains:       bindings,
	}
	inserted, err := s.store.InsertIfAbsent(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if !inserted {
		// Lost the race: another provisioning attempt committed first.
		// The uniqueness constraint is the arbiter; return the winner.
		existing, err := s.store.FindByIdentity(ctx, chatIdentity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
		}
		return existing, nil
	}

	s.log.Info("account provisioned",
		slog.String("event", "wallet.provision"),
		slog.String("rid", logger.RIDFrom(ctx)),
		slog.String("chat_identity", chatIdentity),
		slog.Int("chains", len(acct.Chains)),
		slog.Duration("duration", logger.Took(start)),
	)
	return acct, nil
}

// Account returns the already-provisioned account for a chat identity, or
// ErrAccountMissing if the identity was never registered.
func (s *Service) Account(ctx context.Context, chatIdentity string) (*store.Account, error) {
	if chatIdentity == "" {
		return nil, ErrIdentityMissing
	}
	acct, err := s.store.FindByIdentity(ctx, chatIdentity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountMissing
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

// BalanceResult carries one chain's outcome: a smallest-unit balance or the
// query error.
type BalanceResult struct {
	Raw *big.Int
	Err error
}

// Balances queries each bound chain independently. A failure on one chain
// never suppresses another chain's balance; the result always has an entry
// per bound chain.
func (s *Service) Balances(ctx context.Context, acct *store.Account) map[chain.Tag]BalanceResult {
	results := make(map[chain.Tag]BalanceResult, len(acct.Chains))
	for tag, binding := range acct.Chains {
		reader, ok := s.readers[tag]
		if !ok {
			results[tag] = BalanceResult{Err: fmt.Errorf("%w: %s", chain.ErrUnknownChain, tag)}
			continue
		}
		raw, err := reader.Balance(ctx, binding.Address)
		if err != nil {
			s.log.Warn("balance query failed",
				slog.String("event", "wallet.balance"),
				slog.String("rid", logger.RIDFrom(ctx)),
				slog.String("chat_identity", acct.ChatIdentity),
				slog.String("chain", string(tag)),
				slog.String("err", err.Error()),
			)
			results[tag] = BalanceResult{Err: err}
			continue
		}
		results[tag] = BalanceResult{Raw: raw}
	}
	return results
}
