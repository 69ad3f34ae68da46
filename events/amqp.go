package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/slack-lackey/maid-server/core"
)

// Channel is the slice of an AMQP channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type ChannelOpener func() (Channel, error)

// AMQPPublisher writes events as persistent JSON messages to a topic exchange.
// A channel is opened per publish; connections are shared.
type AMQPPublisher struct {
	Exchange   string
	RoutingKey string
	Logger     core.Logger
	Now        func() time.Time

	open  ChannelOpener
	close func() error
}

func NewAMQPPublisher(open ChannelOpener, exchange string, routingKey string, logger core.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Logger:     core.ResolveLogger("events.amqp", nil, logger),
		Now:        time.Now,
		open:       open,
	}
}

// DialAMQP connects to the broker and declares the durable topic exchange.
func DialAMQP(cfg core.BrokerConfig, logger core.Logger) (*AMQPPublisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("events: broker url is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange %q: %w", cfg.Exchange, err)
	}

	publisher := NewAMQPPublisher(func() (Channel, error) {
		channel, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return channel, nil
	}, cfg.Exchange, cfg.RoutingKey, logger)
	publisher.close = conn.Close
	return publisher, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt SnippetExported) error {
	if p == nil || p.open == nil {
		return fmt.Errorf("events: publisher is not configured")
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Type == "" {
		evt.Type = TypeSnippetExported
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if evt.ExportedAt.IsZero() {
		evt.ExportedAt = now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", evt.Type, err)
	}

	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.Exchange, p.RoutingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     evt.ID,
		CorrelationId: evt.CorrelationToken,
		Type:          evt.Type,
		Timestamp:     evt.ExportedAt,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", evt.Type, err)
	}
	core.LogDebug(ctx, p.Logger, "event published", map[string]any{
		"exchange":    p.Exchange,
		"routing_key": p.RoutingKey,
		"event_id":    evt.ID,
		"tenant_id":   evt.TenantID,
	})
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close()
}

var _ Publisher = (*AMQPPublisher)(nil)
