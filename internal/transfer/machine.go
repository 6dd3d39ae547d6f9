// Package transfer drives the guided, multi-turn transfer conversation and
// dispatches the resulting transaction.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/internal/chain"
	"github.com/m3rciful/walletbot/internal/store"
	"github.com/m3rciful/walletbot/internal/wallet"
)

// State is a step of the guided transfer conversation.
type State string

const (
	// AwaitingAddress waits for the destination address.
	AwaitingAddress State = "awaiting_address"
	// AwaitingAmount waits for the transfer amount.
	AwaitingAmount State = "awaiting_amount"
	// Executing dispatches the transaction.
	Executing State = "executing"
	// Completed is the successful terminal state.
	Completed State = "completed"
	// Aborted is the failed terminal state.
	Aborted State = "aborted"
)

// Session is the ephemeral state of one guided transfer conversation. It lives
// only for the conversation's lifetime and is never persisted.
type Session struct {
	ChatIdentity string
	Chain        chain.Tag
	State        State
	Destination  string
	Amount       decimal.Decimal
}

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool {
	return s.State == Completed || s.State == Aborted
}

// AccountResolver re-resolves accounts by chat identity at execution time.
type AccountResolver interface {
	FindByIdentity(ctx context.Context, chatIdentity string) (*store.Account, error)
}

// Machine walks a transfer session through its states. Each step consumes one
// user message and returns the reply to emit; the caller owns suspension
// between steps.
type Machine struct {
	accounts AccountResolver
	executor *Executor
	log      *slog.Logger
}

// NewMachine wires the state machine.
func NewMachine(accounts AccountResolver, executor *Executor) *Machine {
	return &Machine{
		accounts: accounts,
		executor: executor,
		log:      logger.SVCTransfer,
	}
}

// Start opens a session for an account on the given chain. The account must
// already hold a binding for the chain.
func (m *Machine) Start(acct *store.Account, tag chain.Tag) (*Session, string, error) {
	if _, ok := acct.Binding(tag); !ok {
		return nil, "", fmt.Errorf("%w: no %s binding", wallet.ErrAccountMissing, tag)
	}
	s := &Session{
		ChatIdentity: acct.ChatIdentity,
		Chain:        tag,
		State:        AwaitingAddress,
	}
	prompt := fmt.Sprintf("Sending on %s. Enter the destination address:", tag)
	return s, prompt, nil
}

// Advance feeds the next user message into the session and returns the reply
// to emit. The session transitions according to its current state; invalid
// input aborts the session with a user-facing explanation rather than an
// error.
func (m *Machine) Advance(ctx context.Context, s *Session, input string) string {
	switch s.State {
	case AwaitingAddress:
		return m.acceptAddress(s, input)
	case AwaitingAmount:
		reply := m.acceptAmount(s, input)
		if s.State != Executing {
			return reply
		}
		return m.execute(ctx, s)
	default:
		s.State = Aborted
		return "Transfer cancelled."
	}
}

func (m *Machine) acceptAddress(s *Session, input string) string {
	if err := chain.ValidateAddress(s.Chain, input); err != nil {
		s.State = Aborted
		m.logTransition(s, "address rejected")
		return fmt.Sprintf("That does not look like a valid %s address. Transfer cancelled.", s.Chain)
	}
	s.Destination = input
	s.State = AwaitingAmount
	m.logTransition(s, "address accepted")
	return fmt.Sprintf("Enter the amount in %s:", s.Chain.Unit())
}

func (m *Machine) acceptAmount(s *Session, input string) string {
	amount, err := chain.ParseAmount(input)
	if err != nil {
		s.State = Aborted
		m.logTransition(s, "amount rejected")
		return "The amount must be a number greater than zero. Transfer cancelled."
	}
	if _, err := chain.ToSmallestUnit(s.Chain, amount); err != nil {
		s.State = Aborted
		m.logTransition(s, "amount rejected")
		return fmt.Sprintf("The amount has too many decimal places for %s. Transfer cancelled.", s.Chain.Unit())
	}
	s.Amount = amount
	s.State = Executing
	m.logTransition(s, "amount accepted")
	return ""
}

// execute re-resolves the account by chat identity rather than trusting a
// reference cached at session start: the binding may have changed between
// suspension points.
func (m *Machine) execute(ctx context.Context, s *Session) string {
	acct, err := m.accounts.FindByIdentity(ctx, s.ChatIdentity)
	if err != nil {
		s.State = Aborted
		if errors.Is(err, store.ErrNotFound) {
			m.logTransition(s, "account missing")
			return "Your account could not be found. Use /start to register again."
		}
		m.logTransition(s, "account lookup failed")
		return "Something went wrong looking up your account. Please try again later."
	}

	txID, err := m.executor.Execute(ctx, acct, s.Chain, s.Destination, s.Amount)
	if err != nil {
		s.State = Aborted
		if errors.Is(err, wallet.ErrAccountMissing) {
			m.logTransition(s, "binding missing")
			return "Your account could not be found. Use /start to register again."
		}
		m.logTransition(s, "execution failed")
		return fmt.Sprintf("The transfer could not be completed: %v. You can start a new transfer with /send.", err)
	}

	s.State = Completed
	m.logTransition(s, "completed")
	return fmt.Sprintf("Sent %s %s to %s.\nTransaction: %s",
		s.Amount.String(), s.Chain.Unit(), s.Destination, txID)
}

func (m *Machine) logTransition(s *Session, note string) {
	m.log.Info("transfer session transition",
		slog.String("event", "transfer.state"),
		slog.String("chat_identity", s.ChatIdentity),
		slog.String("chain", string(s.Chain)),
		slog.String("state", string(s.State)),
		slog.String("note", note),
	)
}
