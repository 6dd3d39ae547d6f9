package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/internal/chain"
	"github.com/m3rciful/walletbot/internal/events"
	"github.com/m3rciful/walletbot/internal/store"
	"github.com/m3rciful/walletbot/internal/wallet"
)

// ErrExecutionFailed wraps any signing or broadcast failure. The underlying
// cause stays opaque here; interpretation of chain error codes belongs to the
// custody provider.
var ErrExecutionFailed = errors.New("execution failed")

// Signer signs and broadcasts a transfer at the custody provider.
type Signer interface {
	SignAndSend(ctx context.Context, keyShareHandle string, tag chain.Tag, destination string, amount *big.Int) (string, error)
}

// Executor dispatches a single transfer to the signer, converting the display
// amount to the chain's smallest unit at the last moment.
type Executor struct {
	signer  Signer
	emitter *events.Emitter
	log     *slog.Logger
}

// NewExecutor wires the executor. emitter may be nil.
func NewExecutor(signer Signer, emitter *events.Emitter) *Executor {
	return &Executor{
		signer:  signer,
		emitter: emitter,
		log:     logger.SVCTransfer,
	}
}

// Execute sends amount (display units) from the account's binding on the given
// chain. Exactly one attempt is made; the key-share handle is never logged.
func (e *Executor) Execute(ctx context.Context, acct *store.Account, tag chain.Tag, destination string, amount decimal.Decimal) (string, error) {
	binding, ok := acct.Binding(tag)
	if !ok {
		return "", fmt.Errorf("%w: no %s binding", wallet.ErrAccountMissing, tag)
	}

	raw, err := chain.ToSmallestUnit(tag, amount)
	if err != nil {
		return "", err
	}

	txID, err := e.signer.SignAndSend(ctx, binding.KeyShareHandle, tag, destination, raw)
	if err != nil {
		e.log.Error("transfer dispatch failed",
			slog.String("event", "transfer.execute"),
			slog.String("chat_identity", acct.ChatIdentity),
			slog.String("chain", string(tag)),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	e.log.Info("transfer completed",
		slog.String("event", "transfer.execute"),
		slog.String("chat_identity", acct.ChatIdentity),
		slog.String("chain", string(tag)),
		slog.String("tx_id", txID),
	)
	e.emitter.EmitTransfer(ctx, events.TransferEvent{
		ChatIdentity:  acct.ChatIdentity,
		Chain:         string(tag),
		Destination:   destination,
		Amount:        amount.String(),
		TransactionID: txID,
		CompletedAt:   time.Now().UTC(),
	})
	return txID, nil
}
