package telegram

import (
	"os"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/core/telegram/commands"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Options{Level: "error"})
	os.Exit(m.Run())
}

func noopHandler(tele.Context) error { return nil }

func newTestRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     noopHandler,
		Description: "register",
		Aliases:     []string{"register"},
	})
	reg.RegisterCommand("/send", commands.Command{
		Handler:     noopHandler,
		Description: "transfer",
	})
	return reg
}

func TestLookupCommand(t *testing.T) {
	reg := newTestRegistry()

	cases := []struct {
		name    string
		input   string
		wantKey string
		wantOK  bool
	}{
		{"canonical", "/start", "/start", true},
		{"bare alias", "register", "/start", true},
		{"alias with trailing text", "register alice", "/start", true},
		{"command with argument", "/send eth", "/send", true},
		{"slash alias", "/register", "/start", true},
		{"unknown", "hello there", "", false},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, _, ok := reg.LookupCommand(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("LookupCommand(%q) ok = %v, want %v", tc.input, ok, tc.wantOK)
			}
			if key != tc.wantKey {
				t.Errorf("LookupCommand(%q) key = %q, want %q", tc.input, key, tc.wantKey)
			}
		})
	}
}

func TestRegisterCommandRejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("start", commands.Command{Handler: noopHandler, Description: "no slash"})
	reg.RegisterCommand("/nohandler", commands.Command{Description: "missing handler"})
	if n := len(reg.Commands()); n != 0 {
		t.Fatalf("commands registered = %d, want 0", n)
	}
}
