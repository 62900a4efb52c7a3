package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// HealthStatus reports whether the gateway is keeping clocks in step with the stream
type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	NATSConnected   bool      `json:"nats_connected"`
	ConsumerActive  bool      `json:"consumer_active"`
	EventsProcessed uint64    `json:"events_processed"`
	LastEventTime   time.Time `json:"last_event_time,omitzero"`
	ActiveClocks    int       `json:"active_clocks"`
	Connections     int       `json:"connections"`
	Errors          []string  `json:"errors"`
}

// HealthChecker reports gateway health
type HealthChecker struct {
	consumer    *EventConsumer
	registry    *Registry
	connections *ConnectionManager
}

// NewHealthChecker creates a checker; consumer may be nil when the gateway runs without a stream
func NewHealthChecker(consumer *EventConsumer, registry *Registry, connections *ConnectionManager) *HealthChecker {
	return &HealthChecker{
		consumer:    consumer,
		registry:    registry,
		connections: connections,
	}
}

// Check gathers the current health status
func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Healthy:      true,
		ActiveClocks: h.registry.Len(),
		Connections:  h.connections.GetConnectionStats().TotalConnections,
		Errors:       []string{},
	}

	if h.consumer != nil {
		stats := h.consumer.Stats()
		status.NATSConnected = stats.Connected
		status.ConsumerActive = stats.Running
		status.EventsProcessed = stats.Processed
		status.LastEventTime = stats.LastEventTime

		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
		if !status.ConsumerActive {
			status.Healthy = false
			status.Errors = append(status.Errors, "consumer not active")
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
