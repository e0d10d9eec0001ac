// Package notify delivers notifications to the external notification
// pipeline over RabbitMQ. Delivery is fire-and-forget: publish failures are
// logged and never reach the dispatch or settlement paths.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/atria-app/backend/internal/services"
)

// Publisher sends notification events to a topic exchange, routing key
// "notify.<kind>".
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

var _ services.Notifier = (*Publisher)(nil)

func (p *Publisher) Notify(ctx context.Context, n services.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		p.logger.Warn("notification marshal failed", "kind", n.Kind, "error", err)
		return
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "notify."+n.Kind, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("notification publish failed",
			"kind", n.Kind, "recipient_id", n.RecipientID, "error", err)
	}
}

func (p *Publisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// LogNotifier is the fallback when no broker is configured: notifications go
// to the log only.
type LogNotifier struct {
	Logger *slog.Logger
}

var _ services.Notifier = (*LogNotifier)(nil)

func (l *LogNotifier) Notify(_ context.Context, n services.Notification) {
	l.Logger.Info("notification (log only)",
		"kind", n.Kind, "recipient_id", n.RecipientID, "recipient_kind", n.RecipientKind)
}
