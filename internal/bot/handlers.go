// Package bot wires the Telegram command handlers to the wallet services.
package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tg "github.com/m3rciful/walletbot/core/telegram"
	"github.com/m3rciful/walletbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
	"github.com/m3rciful/walletbot/core/telegram/state"
	"github.com/m3rciful/walletbot/internal/chain"
	"github.com/m3rciful/walletbot/internal/transfer"
	"github.com/m3rciful/walletbot/internal/wallet"
)

// Handlers owns the bot's command and conversation handlers.
type Handlers struct {
	wallet  *wallet.Service
	machine *transfer.Machine
	fsm     *state.Manager[*transfer.Session]
}

// New builds the handler set.
func New(walletSvc *wallet.Service, machine *transfer.Machine) *Handlers {
	return &Handlers{
		wallet:  walletSvc,
		machine: machine,
		fsm:     state.NewManager[*transfer.Session](),
	}
}

// Register wires commands into the registry and returns the routes to mount.
// Routes are returned bare; recovery and logging run as global middlewares.
func (h *Handlers) Register(reg *tg.Registry) []tg.Route {
	h.fsm.RegisterHandler(state.State(transfer.AwaitingAddress), h.resumeTransfer)
	h.fsm.RegisterHandler(state.State(transfer.AwaitingAmount), h.resumeTransfer)

	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.handleStart,
		Description: "Register and show your deposit addresses",
		Aliases:     []string{"register"},
	})
	reg.RegisterCommand("/balance", commands.Command{
		Handler:     h.handleBalance,
		Description: "Show your balances on all chains",
	})
	reg.RegisterCommand("/send", commands.Command{
		Handler:     h.handleSend,
		Description: "Start a guided transfer (eth or sol)",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.handleCancel,
		Description: "Cancel the transfer in progress",
	})
	reg.SetTextFallback(h.handleUnknownText)

	routes := make([]tg.Route, 0, len(reg.Commands())+1)
	for cmd, def := range reg.Commands() {
		routes = append(routes, tg.Route{Endpoint: cmd, Handler: def.Handler})
	}
	routes = append(routes, tg.Route{
		Endpoint: tele.OnText,
		Handler:  h.routeText(reg),
	})

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
	)
	return routes
}

// routeText forwards free text into the active conversation, if any, and
// otherwise falls back to the usage hint.
func (h *Handlers) routeText(reg *tg.Registry) tele.HandlerFunc {
	return func(c tele.Context) error {
		if h.fsm.InProgress(c.Sender().ID) {
			return h.fsm.Resume(c)
		}
		if _, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
			return cmd.Handler(c)
		}
		if fb := reg.TextFallback(); fb != nil {
			return fb(c)
		}
		return nil
	}
}

// chatIdentity derives the durable account lookup key from the sender.
func chatIdentity(c tele.Context) string {
	sender := c.Sender()
	if sender == nil {
		return ""
	}
	return strconv.FormatInt(sender.ID, 10)
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (h *Handlers) handleStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)

	identity := chatIdentity(c)
	acct, err := h.wallet.Provision(ctx, identity, displayName(c.Sender()))
	if err != nil {
		logger.FromContext(ctx).Error("provision failed",
			slog.String("event", "cmd.start"),
			slog.String("chat_identity", identity),
			slog.String("err", err.Error()),
		)
		if errors.Is(err, wallet.ErrIdentityMissing) {
			return tghelpers.SendText(c, "Could not determine your identity. Please try again.")
		}
		return tghelpers.SendText(c, fmt.Sprintf("Registration failed: %v. Please try /start again.", err))
	}

	var b strings.Builder
	b.WriteString("Your wallet is ready. Deposit addresses:\n")
	for _, tag := range chain.All() {
		if binding, ok := acct.Binding(tag); ok {
			fmt.Fprintf(&b, "%s: `%s`\n", tag, binding.Address)
		}
	}
	b.WriteString("\nUse /balance to check balances and /send to transfer.")
	return tghelpers.SendMD(c, b.String())
}

func (h *Handlers) handleBalance(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)

	acct, err := h.wallet.Account(ctx, chatIdentity(c))
	if err != nil {
		if errors.Is(err, wallet.ErrAccountMissing) {
			return tghelpers.SendText(c, "You are not registered yet. Use /start first.")
		}
		logger.FromContext(ctx).Error("balance lookup failed",
			slog.String("event", "cmd.balance"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Could not load your account. Please try again later.")
	}

	results := h.wallet.Balances(ctx, acct)
	var b strings.Builder
	b.WriteString("Balances:\n")
	for _, tag := range chain.All() {
		res, ok := results[tag]
		if !ok {
			continue
		}
		if res.Err != nil {
			fmt.Fprintf(&b, "%s: unavailable\n", tag)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", tag, chain.FormatBalance(tag, res.Raw))
	}
	return tghelpers.SendText(c, b.String())
}

func (h *Handlers) handleSend(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	if h.fsm.InProgress(userID) {
		return tghelpers.SendText(c, "A transfer is already in progress. Finish it or use /cancel.")
	}

	args := c.Args()
	if len(args) == 0 {
		return tghelpers.SendText(c, "Usage: /send eth or /send sol")
	}
	tag, ok := chain.ParseTag(args[0])
	if !ok {
		return tghelpers.SendText(c, fmt.Sprintf("Unknown chain %q. Usage: /send eth or /send sol", args[0]))
	}

	acct, err := h.wallet.Account(ctx, chatIdentity(c))
	if err != nil {
		if errors.Is(err, wallet.ErrAccountMissing) {
			return tghelpers.SendText(c, "You are not registered yet. Use /start first.")
		}
		logger.FromContext(ctx).Error("send lookup failed",
			slog.String("event", "cmd.send"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Could not load your account. Please try again later.")
	}

	sess, prompt, err := h.machine.Start(acct, tag)
	if err != nil {
		return tghelpers.SendText(c, fmt.Sprintf("You have no %s wallet. Use /start first.", tag))
	}

	h.fsm.Begin(userID, state.State(sess.State), sess)
	return tghelpers.SendText(c, prompt)
}

func (h *Handlers) handleCancel(c tele.Context) error {
	userID := c.Sender().ID
	if !h.fsm.InProgress(userID) {
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	h.fsm.Clear(userID)
	return tghelpers.SendText(c, "Transfer cancelled.")
}

// resumeTransfer feeds the next inbound message into the suspended transfer
// session and relays the machine's reply.
func (h *Handlers) resumeTransfer(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	sess, ok := h.fsm.Get(userID)
	if !ok || sess.Data == nil {
		h.fsm.Clear(userID)
		return nil
	}

	reply := h.machine.Advance(ctx, sess.Data, strings.TrimSpace(c.Text()))
	if sess.Data.Done() {
		h.fsm.Clear(userID)
	} else {
		h.fsm.SetState(userID, state.State(sess.Data.State))
	}

	if reply == "" {
		return nil
	}
	return tghelpers.SendText(c, reply)
}

func (h *Handlers) handleUnknownText(c tele.Context) error {
	return tghelpers.SendText(c, "I did not understand that. Try /start, /balance or /send.")
}
