package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/common/config"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
)

// NATSBus implements Bus over a NATS connection, grounded on the
// teacher's NATSEventBus (internal/events/bus/nats.go).
type NATSBus struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NewNATSBus dials cfg.URL with the reconnection policy the teacher uses.
func NewNATSBus(cfg config.NATSConfig, log *logger.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSBus{conn: conn, log: log}, nil
}

// Publish marshals event to JSON and publishes it on subject.
func (b *NATSBus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject, data)
}

// Subscribe registers handler for subject, decoding each NATS message
// back into an Event.
func (b *NATSBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.log.Error("failed to decode NATS event", zap.String("subject", subject), zap.Error(err))
			return
		}
		if err := handler(context.Background(), &event); err != nil {
			b.log.Error("eventbus handler error", zap.String("subject", subject), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

// Close closes the underlying NATS connection without draining pending
// messages.
func (b *NATSBus) Close() {
	b.conn.Close()
}

// IsConnected reports the underlying connection state.
func (b *NATSBus) IsConnected() bool {
	return b.conn.IsConnected()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) IsValid() bool {
	return s.sub.IsValid()
}

// Provide builds the configured Bus implementation: NATS when
// cfg.NATS.URL is set, otherwise the in-memory bus. Grounded on the
// teacher's events.Provide (internal/events/provider.go).
func Provide(cfg *config.Config, log *logger.Logger) (Bus, func(), error) {
	if cfg.NATS.URL != "" {
		b, err := NewNATSBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}
	b := NewMemoryBus(log)
	return b, b.Close, nil
}
