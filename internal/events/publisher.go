package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
)

// Publisher forwards engine events to an external transport.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop is a Publisher that discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// conn is the subset of *nats.Conn used by NATSPublisher.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON on "<prefix>.<engine>.<type>".
// Calls go through a circuit breaker so an unreachable server costs one
// fast failure per call instead of a blocked engine command.
type NATSPublisher struct {
	nc      conn
	prefix  string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// DialNATS connects to the NATS server at url and returns a publisher.
func DialNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("showcase-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from nats", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to nats", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSPublisher(nc, prefix, logger), nil
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nats-events",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &NATSPublisher{nc: nc, prefix: prefix, breaker: breaker, logger: logger}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(e Event) string {
	return p.prefix + "." + e.Engine + "." + e.Type
}

// Publish encodes e and sends it. A tripped breaker returns
// gobreaker.ErrOpenState without touching the connection.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.nc.Publish(p.Subject(e), data)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
