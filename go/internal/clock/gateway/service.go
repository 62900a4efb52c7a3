package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordclock/go/internal/clock"
	"github.com/mcdev12/wordclock/go/internal/config"
	"github.com/mcdev12/wordclock/go/internal/metrics"
)

// Service is the clock gateway: it keeps one clock per game in step with the
// event stream and pushes ticks to WebSocket clients.
type Service struct {
	connectionManager *ConnectionManager
	registry          *Registry
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
	metrics           *metrics.Metrics
}

// Config holds configuration for the clock gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	RegistryConfig   RegistryConfig
}

// DefaultConfig returns default configuration for the clock gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		RegistryConfig: RegistryConfig{
			LowTime: 10000,
		},
	}
}

// ConfigFrom maps loaded settings onto the gateway configuration
func ConfigFrom(c config.Config) Config {
	cfg := DefaultConfig()

	cfg.JetStreamConfig.URL = c.NATS.URL
	cfg.JetStreamConfig.StreamName = c.NATS.StreamName
	cfg.JetStreamConfig.ConsumerName = c.NATS.ConsumerName
	cfg.JetStreamConfig.MaxDeliver = c.NATS.MaxDeliver
	cfg.JetStreamConfig.AckWait = c.NATS.AckWait
	cfg.JetStreamConfig.MaxAckPending = c.NATS.MaxAckPending
	cfg.JetStreamConfig.MaxReconnects = c.NATS.MaxReconnects
	cfg.JetStreamConfig.ReconnectWait = c.NATS.ReconnectWait

	cfg.RegistryConfig.LowTime = clock.Millis(c.Clock.LowTimeMillis)
	cfg.RegistryConfig.DefaultMaxOvertimeMinutes = c.Clock.DefaultMaxOvertimeMinutes

	return cfg
}

// NewService creates the gateway and connects its JetStream consumer
func NewService(config Config, clk clock.Clock, m *metrics.Metrics) (*Service, error) {
	s := newService(config, clk, m)

	eventConsumer, err := NewEventConsumer(s.registry, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}
	s.eventConsumer = eventConsumer

	return s, nil
}

func newService(config Config, clk clock.Clock, m *metrics.Metrics) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, m)
	registry := NewRegistry(clk, connectionManager, m, config.RegistryConfig)

	return &Service{
		connectionManager: connectionManager,
		registry:          registry,
		wsHandler:         NewWebSocketHandler(connectionManager, registry),
		stateHandler:      NewStateHandler(registry),
		metrics:           m,
	}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting clock gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("clock gateway service shutting down")
	return s.Stop()
}

// Stop closes the consumer and cancels every pending clock tick
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	s.registry.Close()

	log.Info().Msg("clock gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket, state, and metrics routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("GET /health", NewHealthChecker(s.eventConsumer, s.registry, s.connectionManager))
	log.Info().Msg("clock gateway routes registered")
}

// Registry exposes the per-game clocks
func (s *Service) Registry() *Registry {
	return s.registry
}
