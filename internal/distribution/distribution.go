// Package distribution feeds settlement events to the downstream
// referral/distribution pipeline. The settlement engine depends only on the
// services.DistributionNotifier interface; this publisher is wired in at the
// composition root, which keeps the dependency one-directional.
package distribution

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/atria-app/backend/internal/services"
)

// Publisher emits one event per settled job. The distribution module
// consumes these to compute multi-level referral payouts out of the
// platform's cut; it never touches provider wallets directly.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

var _ services.DistributionNotifier = (*Publisher)(nil)

func (p *Publisher) JobSettled(ctx context.Context, ev services.SettlementEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (p *Publisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
