package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordclock/go/internal/clock/events"
	"github.com/mcdev12/wordclock/go/internal/clock/feed"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string        // e.g., "clock.events.>"
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int           // Max messages pending ack
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    events.StreamName,
		ConsumerName:  "clock-gateway",
		SubjectFilter: events.SubjectFilter,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventHandler applies one decoded clock event
type EventHandler interface {
	HandleDomainEvent(ctx context.Context, eventType string, gameID uuid.UUID, payload []byte) error
}

// EventConsumer feeds clock events from JetStream into an EventHandler
type EventConsumer struct {
	handler  EventHandler
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConsumerConfig

	mu        sync.Mutex
	running   bool
	processed uint64
	lastEvent time.Time
}

// ConsumerStats is a point-in-time view of consumer progress
type ConsumerStats struct {
	Connected     bool
	Running       bool
	Processed     uint64
	LastEventTime time.Time
}

// NewEventConsumer connects to NATS and binds the durable consumer
func NewEventConsumer(handler EventHandler, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, js, err := feed.Connect(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}

	ec := &EventConsumer{
		handler: handler,
		nc:      nc,
		js:      js,
		config:  config,
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Clock gateway snapshot consumer",
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy, // Replay retained events to rebuild clocks after restart
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start consumes events until ctx is cancelled. Messages are handled one at a
// time so each game's events apply in stream order.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	ec.setRunning(true)
	defer ec.setRunning(false)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			settle(msg, processMessage(ctx, ec.handler, msg))
			ec.recordProcessed()
		}
	}
}

func (ec *EventConsumer) setRunning(running bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.running = running
}

func (ec *EventConsumer) recordProcessed() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.processed++
	ec.lastEvent = time.Now()
}

// Stats returns the consumer's connection state and progress
func (ec *EventConsumer) Stats() ConsumerStats {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	return ConsumerStats{
		Connected:     ec.nc != nil && ec.nc.IsConnected(),
		Running:       ec.running,
		Processed:     ec.processed,
		LastEventTime: ec.lastEvent,
	}
}

// processMessage decodes the envelope on msg and hands it to h
func processMessage(ctx context.Context, h EventHandler, msg jetstream.Msg) error {
	var envelope events.Envelope
	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		return fmt.Errorf("%w: unmarshal event envelope: %w", ErrMalformedEvent, err)
	}

	gameID, err := uuid.Parse(envelope.GameID)
	if err != nil {
		return fmt.Errorf("%w: parse game ID: %w", ErrMalformedEvent, err)
	}

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("game_id", envelope.GameID).
		Str("event_type", envelope.EventType).
		Str("subject", msg.Subject()).
		Msg("processing JetStream event")

	return h.HandleDomainEvent(ctx, envelope.EventType, gameID, envelope.Payload)
}

// settle acks, terminates, or naks msg depending on how processing went.
// Malformed events are terminated since redelivery cannot fix them.
func settle(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	case errors.Is(err, ErrMalformedEvent):
		log.Warn().
			Err(err).
			Str("subject", msg.Subject()).
			Msg("dropping malformed clock event")
		if termErr := msg.TermWithReason(err.Error()); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
	default:
		log.Error().
			Err(err).
			Str("subject", msg.Subject()).
			Msg("failed to process message")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
	}
}

// Stop closes the NATS connection
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
