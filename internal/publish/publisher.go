package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"clearinghouse/internal/event"
)

// Connect dials NATS with unbounded reconnects and returns a JetStream
// handle.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// Publisher forwards engine events to NATS JetStream for downstream
// consumers (risk dashboards, keeper bots, data pipelines). The engine
// sends non-blocking, so a slow broker drops messages here rather than
// stalling trading; consumers that need completeness read the event log.
type Publisher struct {
	js    jetstream.JetStream
	input <-chan event.Envelope
	log   zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, input <-chan event.Envelope, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, input: input, log: log}
}

// Run drains the publish channel until ctx is cancelled or the channel
// closes. Publish failures are logged and skipped.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				p.log.Warn().Err(err).Int64("sequence", env.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = p.js.Publish(ctx, Subject(env), data)
	return err
}

// Subject builds the routing key: clearing.events.{event_type}.{market_id}.
// Events with no market (global parameter changes) omit the last token.
func Subject(env event.Envelope) string {
	subject := fmt.Sprintf("clearing.events.%s", strings.ToLower(env.EventType.String()))
	if env.MarketID != "" {
		subject = fmt.Sprintf("%s.%s", subject, env.MarketID)
	}
	return subject
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CLEARING_EVENTS",
		Subjects:  []string{"clearing.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
