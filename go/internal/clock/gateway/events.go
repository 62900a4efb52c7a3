package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/wordclock/go/internal/clock"
)

// ClockEvent is the structure of every message pushed to WebSocket clients
type ClockEvent struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of clock event
type EventType string

const (
	EventTypeClockTick    EventType = "ClockTick"
	EventTypeClockTimeout EventType = "ClockTimeout"
	EventTypeClockState   EventType = "ClockState"
)

// ClockTickPayload is sent on every scheduler tick for the active player
type ClockTickPayload struct {
	Player      string `json:"player"`
	RemainingMs int64  `json:"remaining_ms"`
	Display     string `json:"display"`
	LowTime     bool   `json:"low_time"`
}

// ClockTimeoutPayload is sent once when a player's time reaches the floor
type ClockTimeoutPayload struct {
	Player string `json:"player"`
}

// ClockState is the full point-in-time view of a game clock
type ClockState struct {
	GameID             string    `json:"game_id"`
	P0Ms               int64     `json:"p0_ms"`
	P1Ms               int64     `json:"p1_ms"`
	P0Display          string    `json:"p0_display"`
	P1Display          string    `json:"p1_display"`
	Active             string    `json:"active"`
	MaxOvertimeMinutes int       `json:"max_overtime_minutes"`
	Ended              bool      `json:"ended,omitempty"`
	AsOf               time.Time `json:"as_of"`
}

// NewClockState builds the view of ctrl's clock as of now
func NewClockState(gameID uuid.UUID, ctrl *clock.Controller) ClockState {
	snap := ctrl.Snapshot()
	return ClockState{
		GameID:             gameID.String(),
		P0Ms:               int64(snap.P0),
		P1Ms:               int64(snap.P1),
		P0Display:          clock.FormatMillis(snap.P0, true),
		P1Display:          clock.FormatMillis(snap.P1, true),
		Active:             snap.Active.String(),
		MaxOvertimeMinutes: ctrl.MaxOvertime(),
		AsOf:               snap.AsOf.UTC(),
	}
}

// newClockEvent wraps payload into a ClockEvent for gameID
func newClockEvent(gameID uuid.UUID, eventType EventType, payload any, at time.Time) (*ClockEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &ClockEvent{
		ID:        uuid.New().String(),
		GameID:    gameID.String(),
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}
