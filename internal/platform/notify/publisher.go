package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/logctx"
)

// Dispatcher receives notification intents and operational alerts.
type Dispatcher interface {
	Notify(ctx context.Context, intent Intent) error
	Alert(ctx context.Context, alert Alert) error
}

type Publisher struct {
	transport   Transport
	intentTopic string
	alertTopic  string
	log         *zap.SugaredLogger
}

func NewPublisher(t Transport, cfg *config.Config, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		transport:   t,
		intentTopic: cfg.Notification.IntentTopic,
		alertTopic:  cfg.Notification.AlertTopic,
		log:         log,
	}
}

func (p *Publisher) Notify(ctx context.Context, intent Intent) error {
	log := logctx.FromCtx(ctx, p.log)
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent %s: %w", intent.Type, err)
	}
	if err := p.transport.Publish(ctx, p.intentTopic, intent.Data.SubscriptionReference, payload); err != nil {
		log.Errorw("notification intent not delivered", "type", intent.Type, "subscription", intent.Data.SubscriptionReference, "err", err)
		return err
	}
	log.Infow("notification intent emitted", "type", intent.Type, "id", intent.ID,
		"subscription", intent.Data.SubscriptionReference, "user_id", intent.Recipient.UserID)
	return nil
}

// Alert is always logged at error level, even when the transport fails.
func (p *Publisher) Alert(ctx context.Context, alert Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	logctx.FromCtx(ctx, p.log).Errorw("operational alert", "kind", alert.Kind, "severity", alert.Severity,
		"message", alert.Message, "fields", alert.Fields)
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", alert.Kind, err)
	}
	return p.transport.Publish(ctx, p.alertTopic, alert.Kind, payload)
}

func registerTransportClose(lc fx.Lifecycle, t Transport) {
	lc.Append(fx.StopHook(t.Close))
}

var Module = fx.Options(
	fx.Provide(
		NewTransport,
		fx.Annotate(NewPublisher, fx.As(new(Dispatcher))),
	),
	fx.Invoke(registerTransportClose),
)
