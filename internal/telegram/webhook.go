package telegram

import (
	"context"
	"log/slog"

	"github.com/ent0n29/docvoice/internal/intake"
	"github.com/ent0n29/docvoice/internal/observability"
)

// Dispatcher handles one normalized event; *intake.Engine satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, ev intake.Event) intake.Outcome
}

// Webhook authenticates and dispatches webhook deliveries. Both the HTTP
// server and the Lambda handler sit on top of it.
type Webhook struct {
	Secret     string
	Dispatcher Dispatcher
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Receive processes one delivery synchronously. It returns an error only when
// the secret token is wrong; malformed or ignored updates are acknowledged so
// Telegram does not redeliver them.
func (w *Webhook) Receive(ctx context.Context, secretToken string, body []byte) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := VerifySecretToken(w.Secret, secretToken); err != nil {
		w.Metrics.ObserveWebhookUpdate("unauthorized")
		logger.Warn("webhook rejected", "err", err)
		return err
	}

	ev, ok, err := ParseUpdate(body)
	if err != nil {
		w.Metrics.ObserveWebhookUpdate("malformed")
		logger.Warn("webhook update dropped", "err", err)
		return nil
	}
	if !ok {
		w.Metrics.ObserveWebhookUpdate("ignored")
		return nil
	}

	out := w.Dispatcher.Handle(ctx, ev)
	w.Metrics.ObserveWebhookUpdate("handled")
	logger.Debug("webhook update handled",
		"user_id", ev.UserID, "flow", out.Flow, "state", out.State.String(), "code", out.Code, "completed", out.Completed)
	return nil
}
