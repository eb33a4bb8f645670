package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sikabot/internal/model"
	"sikabot/internal/service"
)

// Notifier delivers a receipt to the user. The chat transport lives
// outside this module; the default implementation just logs.
type Notifier interface {
	Notify(ctx context.Context, ev model.ReceiptEvent) error
}

// ReceiptWorker listens on the receipts topic and turns reconciliation
// outcomes into user notifications.
type ReceiptWorker struct {
	notifier Notifier
	natsConn *nats.Conn
}

func NewReceiptWorker(notifier Notifier, nc *nats.Conn) *ReceiptWorker {
	return &ReceiptWorker{
		notifier: notifier,
		natsConn: nc,
	}
}

// Start subscribes to the receipts topic and blocks until ctx is
// cancelled. QueueSubscribe keeps delivery single-consumer across
// replicas, so a user gets each receipt once.
func (w *ReceiptWorker) Start(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(service.TopicReceipts, "receipt_workers", func(m *nats.Msg) {
		var ev model.ReceiptEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("worker: failed to unmarshal receipt event", "error", err)
			return
		}

		if err := w.notifier.Notify(ctx, ev); err != nil {
			slog.Error("worker: failed to deliver receipt",
				"user_id", ev.UserID,
				"reference", ev.Reference,
				"error", err,
			)
			return
		}

		slog.Info("worker: receipt delivered",
			"kind", string(ev.Kind),
			"user_id", ev.UserID,
			"reference", ev.Reference,
		)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe: %w", err)
	}

	slog.Info("Receipt worker is running")

	<-ctx.Done()

	slog.Info("Receipt worker shutting down, draining subscription...")
	return sub.Drain()
}

func (w *ReceiptWorker) Stop(ctx context.Context) error {
	return nil
}

// LogNotifier is the fallback Notifier: it writes the receipt to the
// structured log, where an operator (or the bot bridge tailing it) can
// pick it up.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev model.ReceiptEvent) error {
	slog.Info("receipt",
		"kind", string(ev.Kind),
		"user_id", ev.UserID,
		"reference", ev.Reference,
		"amount", ev.Amount.Cedis(),
		"new_balance", ev.NewBalance.Cedis(),
		"item", ev.ItemLabel,
		"message", ev.Message,
	)
	return nil
}
