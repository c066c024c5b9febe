// Package relay mirrors race table events onto NATS so external consumers
// (dashboards, risk tooling) can follow the table without holding a
// websocket to it. The relay wraps the gateway broadcaster: when NATS is
// not configured the table talks to the gateway directly and nothing here
// runs.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Broadcaster matches the table's fanout surface.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
	SendToUser(userID string, eventType string, payload any)
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// DefaultConfig returns the default relay settings.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "derby.race",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Relay publishes every broadcast event to NATS and forwards it to the
// inner broadcaster. Per-user messages are forwarded only; they are
// private payouts, not table telemetry.
type Relay struct {
	nc     *nats.Conn
	prefix string
	inner  Broadcaster
}

// New connects to NATS and wraps the inner broadcaster.
func New(cfg Config, inner Broadcaster) (*Relay, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("race relay connected")
	return &Relay{nc: nc, prefix: cfg.SubjectPrefix, inner: inner}, nil
}

// Broadcast publishes to `<prefix>.<event_type>` and forwards.
func (r *Relay) Broadcast(eventType string, payload any) {
	r.inner.Broadcast(eventType, payload)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal relay event")
		return
	}
	subject := fmt.Sprintf("%s.%s", r.prefix, eventType)
	if err := r.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish relay event")
	}
}

// SendToUser forwards without relaying.
func (r *Relay) SendToUser(userID string, eventType string, payload any) {
	r.inner.SendToUser(userID, eventType, payload)
}

// Close drains the NATS connection.
func (r *Relay) Close() {
	if r.nc != nil {
		r.nc.Drain()
	}
}
