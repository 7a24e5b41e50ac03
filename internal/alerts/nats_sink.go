package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	alertStreamName = "RISK_ALERTS"
	alertSubjects   = "alerts.risk.*"
)

// NATSSink publishes alerts to a JetStream stream, one subject per risk
// level (alerts.risk.high, alerts.risk.critical, ...).
type NATSSink struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNATSSink connects to NATS and ensures the alert stream exists.
func NewNATSSink(ctx context.Context, natsURL string) (*NATSSink, error) {
	nc, err := nats.Connect(natsURL,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      alertStreamName,
		Subjects:  []string{alertSubjects},
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   50000,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure alert stream: %w", err)
	}

	return &NATSSink{conn: nc, js: js}, nil
}

func (s *NATSSink) Deliver(ctx context.Context, a *Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	subject := fmt.Sprintf("alerts.risk.%s", a.Level)
	if _, err := s.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish alert to %s: %w", subject, err)
	}
	return nil
}

// Close drains the NATS connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}
