// Package logger configures the process-wide structured logger and exposes
// per-component child loggers plus context carriers used across layers.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	initOnce sync.Once
	levelVar slog.LevelVar

	// L is the base logger shared by all components.
	L *slog.Logger

	// DB logs database events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// SVCWallet logs account provisioning and balance service activity.
	SVCWallet *slog.Logger
	// SVCTransfer logs transfer state machine and executor activity.
	SVCTransfer *slog.Logger
	// CUST logs custody provider client activity.
	CUST *slog.Logger
	// RPC logs chain RPC client activity.
	RPC *slog.Logger
	// EVT logs audit event emission.
	EVT *slog.Logger
)

// Options select the handler format and minimum level.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// Init configures the global structured logger. It may be called only once;
// subsequent calls are no-ops.
func Init(opts Options) {
	initOnce.Do(func() {
		levelVar.Set(parseLevel(opts.Level))

		hopts := &slog.HandlerOptions{Level: &levelVar}
		var handler slog.Handler
		if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
			handler = slog.NewJSONHandler(os.Stderr, hopts)
		} else {
			handler = slog.NewTextHandler(os.Stderr, hopts)
		}

		L = slog.New(handler)
		slog.SetDefault(L)
		wireComponents()
	})
}

func wireComponents() {
	DB = L.With("component", "db")
	MIG = L.With("component", "db.migrate")
	TG = L.With("component", "tg")
	TWire = L.With("component", "tg.wire")
	SVCWallet = L.With("component", "service.wallet")
	SVCTransfer = L.With("component", "service.transfer")
	CUST = L.With("component", "custody")
	RPC = L.With("component", "chain.rpc")
	EVT = L.With("component", "events")
}

// Component returns a child logger tagged with the given component name.
func Component(name string) *slog.Logger {
	if L == nil {
		Init(Options{})
	}
	return L.With("component", name)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Status maps error to a unified status string for logs.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Took returns rounded duration since start for compact logging.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds duration to the nearest millisecond for consistent logging.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}
