package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/m3rciful/walletbot/core/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Options{Level: "error"})
	os.Exit(m.Run())
}

// capturingWriter blocks deliveries until released and hands captured
// messages back on a channel.
type capturingWriter struct {
	release chan struct{}
	got     chan kafka.Message
}

func newCapturingWriter() *capturingWriter {
	return &capturingWriter{
		release: make(chan struct{}),
		got:     make(chan kafka.Message, 1),
	}
}

func (w *capturingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, m := range msgs {
		w.got <- m
	}
	return nil
}

func (w *capturingWriter) Close() error { return nil }

func testEvent() TransferEvent {
	return TransferEvent{
		ChatIdentity:  "1001",
		Chain:         "EVM",
		Destination:   "0xdest",
		Amount:        "0.05",
		TransactionID: "0xfeed",
		CompletedAt:   time.Now().UTC(),
	}
}

func TestEmitTransferDoesNotBlockCaller(t *testing.T) {
	w := newCapturingWriter()
	e := &Emitter{writer: w, log: logger.EVT}

	start := time.Now()
	e.EmitTransfer(context.Background(), testEvent())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("EmitTransfer blocked for %s with an unresponsive writer", elapsed)
	}

	close(w.release)
	select {
	case msg := <-w.got:
		if string(msg.Key) != "1001" {
			t.Errorf("message key = %q, want chat identity 1001", msg.Key)
		}
		var ev TransferEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if ev.TransactionID != "0xfeed" || ev.Chain != "EVM" || ev.Amount != "0.05" {
			t.Errorf("payload = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was never delivered after the writer unblocked")
	}
}

func TestEmitTransferDropsOnDeadline(t *testing.T) {
	w := newCapturingWriter()
	e := &Emitter{writer: w, log: logger.EVT}

	// Never release the writer; the background delivery must give up on its
	// own deadline instead of leaking. The caller is unaffected either way.
	e.EmitTransfer(context.Background(), testEvent())

	select {
	case <-w.got:
		t.Fatal("blocked writer should not have delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	e.EmitTransfer(context.Background(), testEvent())
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
