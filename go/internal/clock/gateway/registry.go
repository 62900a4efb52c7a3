package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordclock/go/internal/clock"
	"github.com/mcdev12/wordclock/go/internal/clock/events"
	"github.com/mcdev12/wordclock/go/internal/metrics"
)

// ErrMalformedEvent marks events that can never be applied, however often they are redelivered.
var ErrMalformedEvent = errors.New("malformed clock event")

// Broadcaster delivers clock events to the clients watching a game
type Broadcaster interface {
	BroadcastToGame(gameID uuid.UUID, event *ClockEvent)
}

// RegistryConfig holds defaults applied to each game clock
type RegistryConfig struct {
	LowTime                   clock.Millis
	DefaultMaxOvertimeMinutes int
}

// Registry owns one clock.Controller per game and routes domain events to it
type Registry struct {
	clock       clock.Clock
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	config      RegistryConfig

	games map[uuid.UUID]*clock.Controller
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry(clk clock.Clock, b Broadcaster, m *metrics.Metrics, config RegistryConfig) *Registry {
	return &Registry{
		clock:       clk,
		broadcaster: b,
		metrics:     m,
		config:      config,
		games:       make(map[uuid.UUID]*clock.Controller),
	}
}

// HandleDomainEvent handles incoming domain events and routes them to appropriate handlers
func (r *Registry) HandleDomainEvent(ctx context.Context, eventType string, gameID uuid.UUID, payload []byte) error {
	log.Debug().
		Str("event_type", eventType).
		Str("game_id", gameID.String()).
		Msg("handling clock event")

	err := r.route(ctx, eventType, gameID, payload)
	switch {
	case err == nil:
		r.metrics.EventsTotal.WithLabelValues(eventType, "applied").Inc()
	case errors.Is(err, ErrMalformedEvent):
		r.metrics.EventsTotal.WithLabelValues(eventType, "rejected").Inc()
	default:
		r.metrics.EventsTotal.WithLabelValues(eventType, "failed").Inc()
	}
	return err
}

func (r *Registry) route(ctx context.Context, eventType string, gameID uuid.UUID, payload []byte) error {
	switch eventType {
	case events.TypeClockSnapshot:
		var p events.ClockSnapshotPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: unmarshal ClockSnapshot payload: %w", ErrMalformedEvent, err)
		}
		return r.handleSnapshot(ctx, gameID, p)

	case events.TypeClockStopped:
		var p events.ClockStoppedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: unmarshal ClockStopped payload: %w", ErrMalformedEvent, err)
		}
		return r.handleStopped(ctx, gameID, p)

	case events.TypeMaxOvertimeSet:
		var p events.MaxOvertimeSetPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: unmarshal MaxOvertimeSet payload: %w", ErrMalformedEvent, err)
		}
		return r.handleMaxOvertime(ctx, gameID, p)

	case events.TypeGameEnded:
		var p events.GameEndedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: unmarshal GameEnded payload: %w", ErrMalformedEvent, err)
		}
		return r.handleGameEnded(ctx, gameID, p)

	default:
		log.Warn().
			Str("event_type", eventType).
			Str("game_id", gameID.String()).
			Msg("unknown event type - ignoring")
		return nil
	}
}

func (r *Registry) handleSnapshot(_ context.Context, gameID uuid.UUID, p events.ClockSnapshotPayload) error {
	snap, status, err := p.Snapshot(r.clock.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if p.MaxOvertimeMinutes != nil && *p.MaxOvertimeMinutes < 0 {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, clock.ErrInvalidOvertime)
	}

	ctrl, err := r.getOrCreate(gameID)
	if err != nil {
		return err
	}
	if p.MaxOvertimeMinutes != nil {
		if err := ctrl.SetMaxOvertime(*p.MaxOvertimeMinutes); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
	}
	if err := ctrl.SetClock(status, snap, clock.Centis(p.DelayCentis)); err != nil {
		if errors.Is(err, clock.ErrInvalidSnapshot) {
			return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		return fmt.Errorf("set clock: %w", err)
	}

	log.Info().
		Str("game_id", gameID.String()).
		Int64("p0_ms", p.P0Millis).
		Int64("p1_ms", p.P1Millis).
		Str("active", snap.Active.String()).
		Str("status", status.String()).
		Msg("applied clock snapshot")

	r.broadcastState(gameID, ctrl, false)
	return nil
}

func (r *Registry) handleStopped(_ context.Context, gameID uuid.UUID, p events.ClockStoppedPayload) error {
	ctrl, ok := r.Get(gameID)
	if !ok {
		log.Debug().Str("game_id", gameID.String()).Msg("stop for unknown game - ignoring")
		return nil
	}

	if elapsed, stopped := ctrl.StopClock(); stopped {
		log.Info().
			Str("game_id", gameID.String()).
			Int64("elapsed_ms", int64(elapsed)).
			Str("reason", p.Reason).
			Msg("clock stopped")
	}

	r.broadcastState(gameID, ctrl, false)
	return nil
}

func (r *Registry) handleMaxOvertime(_ context.Context, gameID uuid.UUID, p events.MaxOvertimeSetPayload) error {
	ctrl, ok := r.Get(gameID)
	if !ok {
		log.Warn().Str("game_id", gameID.String()).Msg("max overtime for unknown game - ignoring")
		return nil
	}

	if err := ctrl.SetMaxOvertime(p.Minutes); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	r.broadcastState(gameID, ctrl, false)
	return nil
}

func (r *Registry) handleGameEnded(_ context.Context, gameID uuid.UUID, p events.GameEndedPayload) error {
	r.mu.Lock()
	ctrl, ok := r.games[gameID]
	if ok {
		delete(r.games, gameID)
		r.metrics.ActiveClocks.Set(float64(len(r.games)))
	}
	r.mu.Unlock()

	if !ok {
		log.Debug().Str("game_id", gameID.String()).Msg("end for unknown game - ignoring")
		return nil
	}

	ctrl.StopClock()
	ctrl.Close()

	log.Info().
		Str("game_id", gameID.String()).
		Str("reason", p.Reason).
		Msg("game ended - clock removed")

	r.broadcastState(gameID, ctrl, true)
	return nil
}

func (r *Registry) getOrCreate(gameID uuid.UUID) (*clock.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctrl, ok := r.games[gameID]; ok {
		return ctrl, nil
	}

	ctrl, err := clock.New(r.clock, clock.Snapshot{}, &gameListener{gameID: gameID, registry: r})
	if err != nil {
		return nil, fmt.Errorf("create clock: %w", err)
	}
	if err := ctrl.SetMaxOvertime(r.config.DefaultMaxOvertimeMinutes); err != nil {
		return nil, fmt.Errorf("create clock: %w", err)
	}

	r.games[gameID] = ctrl
	r.metrics.ActiveClocks.Set(float64(len(r.games)))

	log.Info().Str("game_id", gameID.String()).Msg("created game clock")
	return ctrl, nil
}

// Get returns the controller for gameID
func (r *Registry) Get(gameID uuid.UUID) (*clock.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctrl, ok := r.games[gameID]
	return ctrl, ok
}

// Len returns the number of games with a clock
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// State returns the current view of gameID's clock
func (r *Registry) State(gameID uuid.UUID) (ClockState, bool) {
	ctrl, ok := r.Get(gameID)
	if !ok {
		return ClockState{}, false
	}
	return NewClockState(gameID, ctrl), true
}

// States returns the current view of every clock, ordered by game ID
func (r *Registry) States() []ClockState {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.games))
	ctrls := make(map[uuid.UUID]*clock.Controller, len(r.games))
	for id, ctrl := range r.games {
		ids = append(ids, id)
		ctrls[id] = ctrl
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	states := make([]ClockState, 0, len(ids))
	for _, id := range ids {
		states = append(states, NewClockState(id, ctrls[id]))
	}
	return states
}

// Close cancels every pending tick and forgets all games
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for gameID, ctrl := range r.games {
		ctrl.Close()
		log.Debug().Str("game_id", gameID.String()).Msg("closed clock on shutdown")
	}
	r.games = make(map[uuid.UUID]*clock.Controller)
	r.metrics.ActiveClocks.Set(0)
}

func (r *Registry) broadcastState(gameID uuid.UUID, ctrl *clock.Controller, ended bool) {
	state := NewClockState(gameID, ctrl)
	state.Ended = ended
	r.broadcast(gameID, EventTypeClockState, state)
}

func (r *Registry) broadcast(gameID uuid.UUID, eventType EventType, payload any) {
	event, err := newClockEvent(gameID, eventType, payload, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to build clock event")
		return
	}
	r.broadcaster.BroadcastToGame(gameID, event)
}

// gameListener forwards one game's scheduler notifications to its watchers
type gameListener struct {
	gameID   uuid.UUID
	registry *Registry
}

func (l *gameListener) NotifyTick(p clock.Player, remaining clock.Millis) {
	l.registry.metrics.TicksTotal.WithLabelValues(p.String()).Inc()
	l.registry.broadcast(l.gameID, EventTypeClockTick, ClockTickPayload{
		Player:      p.String(),
		RemainingMs: int64(remaining),
		Display:     clock.FormatMillis(remaining, true),
		LowTime:     remaining < l.registry.config.LowTime,
	})
}

func (l *gameListener) NotifyTimeout(p clock.Player) {
	l.registry.metrics.TimeoutsTotal.WithLabelValues(p.String()).Inc()
	log.Info().
		Str("game_id", l.gameID.String()).
		Str("player", p.String()).
		Msg("player timed out")
	l.registry.broadcast(l.gameID, EventTypeClockTimeout, ClockTimeoutPayload{Player: p.String()})
}
