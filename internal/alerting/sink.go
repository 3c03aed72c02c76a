package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"upgrade-alerts/internal/upgrade"
)

// EventSink receives every fired AlertEvent in addition to the chat fan-out.
type EventSink interface {
	Publish(ctx context.Context, ev upgrade.AlertEvent) error
	Close()
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(context.Context, upgrade.AlertEvent) error { return nil }
func (NopSink) Close()                                           {}

// NATSSink publishes alert events as JSON on <subject>.<network>.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url, subject string, logger zerolog.Logger) (*NATSSink, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if strings.TrimSpace(subject) == "" {
		subject = "upgrades.alerts"
	}

	conn, err := nats.Connect(url,
		nats.Name("upgradewatcher"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	sinkLogger := logger.With().Str("component", "nats_sink").Logger()
	sinkLogger.Info().Str("url", conn.ConnectedUrlRedacted()).Str("subject", subject).Msg("nats sink connected")
	return &NATSSink{conn: conn, subject: subject, logger: sinkLogger}, nil
}

// Publish sends ev; delivery is fire-and-forget like the chat transport.
func (s *NATSSink) Publish(ctx context.Context, ev upgrade.AlertEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	subject := EventSubject(s.subject, ev.Network)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	s.logger.Debug().Str("subject", subject).Str("id", ev.ID).Msg("alert event published")
	return nil
}

// Close flushes pending publishes and closes the connection.
func (s *NATSSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("drain nats connection")
		s.conn.Close()
	}
}

// EventSubject builds the per-network subject.
func EventSubject(base, network string) string {
	base = strings.TrimSuffix(strings.TrimSpace(base), ".")
	network = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(network)
	return base + "." + network
}

var (
	_ EventSink = (*NATSSink)(nil)
	_ EventSink = NopSink{}
)
