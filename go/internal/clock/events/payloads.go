package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/wordclock/go/internal/clock"
)

// Event types carried on the clock event stream.
const (
	TypeClockSnapshot  = "ClockSnapshot"
	TypeClockStopped   = "ClockStopped"
	TypeMaxOvertimeSet = "MaxOvertimeSet"
	TypeGameEnded      = "GameEnded"
)

const (
	StreamName    = "CLOCK_EVENTS"
	SubjectPrefix = "clock.events"
	SubjectFilter = SubjectPrefix + ".>"
)

// Subject returns the subject events for gameID are published on.
func Subject(gameID string) string {
	return SubjectPrefix + "." + gameID
}

// Envelope wraps every event published to the stream.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	GameID    string          `json:"gameId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ClockSnapshotPayload is the server's statement of both players' remaining time.
type ClockSnapshotPayload struct {
	P0Millis           int64  `json:"p0_ms"`
	P1Millis           int64  `json:"p1_ms"`
	Active             string `json:"active"`
	Status             string `json:"status"`
	DelayCentis        int64  `json:"delay_centis"`
	MaxOvertimeMinutes *int   `json:"max_overtime_minutes,omitempty"`
}

// Snapshot converts the payload into a clock.Snapshot observed at asOf.
func (p ClockSnapshotPayload) Snapshot(asOf time.Time) (clock.Snapshot, clock.GameStatus, error) {
	active, err := clock.ParsePlayer(p.Active)
	if err != nil {
		return clock.Snapshot{}, 0, fmt.Errorf("%w: %w", clock.ErrInvalidSnapshot, err)
	}
	status, err := clock.ParseGameStatus(p.Status)
	if err != nil {
		return clock.Snapshot{}, 0, fmt.Errorf("%w: %w", clock.ErrInvalidSnapshot, err)
	}

	return clock.Snapshot{
		P0:     clock.Millis(p.P0Millis),
		P1:     clock.Millis(p.P1Millis),
		Active: active,
		AsOf:   asOf,
	}, status, nil
}

// ClockStoppedPayload asks the gateway to freeze a game's clock.
type ClockStoppedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// MaxOvertimeSetPayload reconfigures a game's overtime allowance.
type MaxOvertimeSetPayload struct {
	Minutes int `json:"minutes"`
}

// GameEndedPayload tears a game's clock down.
type GameEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}
