// Package events emits transfer audit events to Kafka for operators.
// Emission is best-effort: a broker outage never blocks or fails a transfer.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/m3rciful/walletbot/core/logger"
)

// emitTimeout bounds one event delivery, detached from the request context.
const emitTimeout = 5 * time.Second

// TransferEvent is published once per completed transfer.
type TransferEvent struct {
	ChatIdentity  string    `json:"chat_identity"`
	Chain         string    `json:"chain"`
	Destination   string    `json:"destination"`
	Amount        string    `json:"amount"`
	TransactionID string    `json:"transaction_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Emitter publishes transfer events. A nil Emitter is valid and drops events.
type Emitter struct {
	writer messageWriter
	log    *slog.Logger
}

// NewEmitter creates a Kafka-backed emitter. Returns nil when no brokers are
// configured, which disables emission.
func NewEmitter(brokers []string, topic string) *Emitter {
	if len(brokers) == 0 {
		return nil
	}
	return &Emitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: emitTimeout,
		},
		log: logger.EVT,
	}
}

// EmitTransfer publishes a transfer event keyed by chat identity. Delivery runs
// in the background with its own deadline, so a slow or dead broker never
// delays the caller's reply.
func (e *Emitter) EmitTransfer(_ context.Context, ev TransferEvent) {
	if e == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("marshal transfer event failed",
			slog.String("event", "emit.transfer"),
			slog.String("err", err.Error()),
		)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		err := e.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.ChatIdentity),
			Value: payload,
		})
		if err != nil {
			e.log.Error("emit transfer event failed",
				slog.String("event", "emit.transfer"),
				slog.String("tx_id", ev.TransactionID),
				slog.String("err", err.Error()),
			)
			return
		}
		e.log.Debug("transfer event emitted",
			slog.String("event", "emit.transfer"),
			slog.String("tx_id", ev.TransactionID),
		)
	}()
}

// Close flushes and closes the underlying writer.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.writer.Close()
}
