package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"honeyshield/internal/config"
	"honeyshield/pkg/logger"
)

var ErrNATSDisconnected = errors.New("NATS not connected")

// NATSPublisher shares detection events between replicas through a
// JetStream stream so every dashboard sees every instance's alerts.
type NATSPublisher struct {
	conn     *nats.Conn
	stream   jetstream.Stream
	js       jetstream.JetStream
	prefix   string
	instance string
	logger   *logger.Logger
}

// NewNATSPublisher connects and creates (or updates) the event stream.
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, log *logger.Logger) (*NATSPublisher, error) {
	log = log.WithComponent("nats")
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "HONEYSHIELD"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "honeyshield"
	}

	conn, err := nats.Connect(cfg.URL, connectOptions(log)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, streamConfig(cfg))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}

	log.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("NATS stream ready")
	return &NATSPublisher{
		conn:     conn,
		stream:   stream,
		js:       js,
		prefix:   cfg.SubjectPrefix,
		instance: uuid.NewString(),
		logger:   log,
	}, nil
}

func connectOptions(log *logger.Logger) []nats.Option {
	return []nats.Option{
		nats.Name("honeyshield"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("server", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
}

// streamConfig keeps three days of events; older ones are discarded.
func streamConfig(cfg config.NATSConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "honeyshield detection events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		Storage:     jetstream.FileStorage,
		MaxAge:      72 * time.Hour,
		MaxMsgs:     50_000,
		MaxBytes:    64 << 20,
		Duplicates:  2 * time.Minute,
	}
}

func (p *NATSPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Publish stores e on its subject. The event id doubles as the JetStream
// message id so retried publishes are deduplicated.
func (p *NATSPublisher) Publish(ctx context.Context, e *Event) error {
	if !p.IsConnected() {
		return ErrNATSDisconnected
	}
	out := *e
	if out.Origin == "" {
		out.Origin = p.instance
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(p.prefix, e)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(e.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subject is <prefix>.<type>.<severity>.<platform>, for example
// honeyshield.alert_created.high.linkedin.
func Subject(prefix string, e *Event) string {
	severity := strings.ToLower(string(e.Severity))
	if severity == "" {
		severity = "none"
	}
	platform := string(e.Platform)
	if platform == "" {
		platform = "all"
	}
	return strings.Join([]string{prefix, string(e.Type), severity, platform}, ".")
}

// Subscribe delivers events published by other replicas. The channel is
// fed until ctx is done; it is never closed.
func (p *NATSPublisher) Subscribe(ctx context.Context, sub *Subscription) (<-chan *Event, error) {
	if !p.IsConnected() {
		return nil, ErrNATSDisconnected
	}
	consumer, err := p.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    3,
		FilterSubject: p.prefix + ".>",
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	out := make(chan *Event, subscriberBuffer)
	handle := func(msg jetstream.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data(), &e); err != nil {
			p.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("undecodable event")
			_ = msg.Term()
			return
		}
		if e.Origin == p.instance || (sub != nil && !sub.Matches(&e)) {
			_ = msg.Ack()
			return
		}
		select {
		case out <- &e:
			_ = msg.Ack()
		case <-ctx.Done():
			_ = msg.Nak()
		}
	}
	cc, err := consumer.Consume(handle, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		p.logger.Warn().Err(err).Msg("NATS consume error")
	}))
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return out, nil
}
