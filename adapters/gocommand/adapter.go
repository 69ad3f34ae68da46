package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// ValidateMessageContract requires a non-empty Type() and runs Validate()
// when the message has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Bus owns a go-command registry and the dispatcher subscriptions made
// through it. The dispatcher is process global, so a Bus must be closed
// before another one subscribes handlers for the same message types.
type Bus struct {
	registry *command.Registry

	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
	started       bool
}

func NewBus() *Bus {
	return &Bus{registry: command.NewRegistry()}
}

// HandleCommand subscribes cmd and records it in the registry. A failed
// registration drops the subscription again.
func HandleCommand[T any](b *Bus, cmd command.Commander[T], opts ...runner.Option) error {
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	return b.track(commanddispatcher.SubscribeCommand(cmd, opts...), cmd)
}

func HandleQuery[T any, R any](b *Bus, qry command.Querier[T, R], opts ...runner.Option) error {
	if qry == nil {
		return fmt.Errorf("gocommand: query is required")
	}
	return b.track(commanddispatcher.SubscribeQuery(qry, opts...), qry)
}

func (b *Bus) track(subscription commanddispatcher.Subscription, handler any) error {
	if b == nil || b.registry == nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return fmt.Errorf("gocommand: bus is not configured")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.registry.RegisterCommand(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.subscriptions = append(b.subscriptions, subscription)
	return nil
}

// Start initializes the registry once every handler is in place.
func (b *Bus) Start() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := b.registry.Initialize(); err != nil {
		return err
	}
	b.started = true
	return nil
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// Send validates msg and dispatches it to its command handler.
func Send[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

// Ask validates msg and returns its query handler's answer.
func Ask[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
