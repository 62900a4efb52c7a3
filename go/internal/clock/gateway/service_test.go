package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordclock/go/internal/clock/events"
	"github.com/mcdev12/wordclock/go/internal/config"
	"github.com/mcdev12/wordclock/go/internal/metrics"
)

type serviceFixture struct {
	service *Service
	clock   *clockwork.FakeClock
	server  *httptest.Server
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	fc := clockwork.NewFakeClock()
	s := newService(DefaultConfig(), fc, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	go s.connectionManager.Start(ctx)

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	server := httptest.NewServer(NewHTTPHandler(mux))

	t.Cleanup(func() {
		server.Close()
		cancel()
		s.Stop()
	})

	return &serviceFixture{service: s, clock: fc, server: server}
}

func (f *serviceFixture) snapshot(t *testing.T, gameID uuid.UUID, p events.ClockSnapshotPayload) {
	t.Helper()
	err := f.service.Registry().HandleDomainEvent(context.Background(), events.TypeClockSnapshot, gameID, mustJSON(t, p))
	require.NoError(t, err)
}

func (f *serviceFixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (f *serviceFixture) dial(t *testing.T, gameID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/clock?game_id=" + gameID.String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) ClockEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	var event ClockEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func readEventOfType(t *testing.T, conn *websocket.Conn, eventType EventType) ClockEvent {
	t.Helper()
	for {
		event := readEvent(t, conn)
		if event.Type == eventType {
			return event
		}
	}
}

func TestService_WebSocketReceivesStateThenTicks(t *testing.T) {
	f := newServiceFixture(t)
	gameID := uuid.New()
	f.snapshot(t, gameID, events.ClockSnapshotPayload{P0Millis: 30000, P1Millis: 12000, Active: "p1"})

	conn := f.dial(t, gameID)

	initial := readEvent(t, conn)
	require.Equal(t, EventTypeClockState, initial.Type)
	state := decodeData[ClockState](t, &initial)
	assert.Equal(t, int64(12000), state.P1Ms)
	assert.Equal(t, "p1", state.Active)

	f.clock.Advance(2001 * time.Millisecond)

	event := readEventOfType(t, conn, EventTypeClockTick)
	assert.Equal(t, gameID.String(), event.GameID)
	tick := decodeData[ClockTickPayload](t, &event)
	assert.Equal(t, int64(9999), tick.RemainingMs)
	assert.Equal(t, "00:10.0", tick.Display)

	stats := f.service.connectionManager.GetConnectionStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.GameConnections[gameID.String()])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.service.metrics.WebSocketConnections))
}

func TestService_WebSocketUnknownGameWaitsForSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	gameID := uuid.New()

	conn := f.dial(t, gameID)

	// No initial state exists, so the first frame is the snapshot broadcast.
	require.Eventually(t, func() bool {
		return f.service.connectionManager.GetConnectionStats().TotalConnections == 1
	}, waitTimeout, 10*time.Millisecond)

	f.snapshot(t, gameID, events.ClockSnapshotPayload{P0Millis: 1000, P1Millis: 2000})

	event := readEvent(t, conn)
	require.Equal(t, EventTypeClockState, event.Type)
	state := decodeData[ClockState](t, &event)
	assert.Equal(t, int64(2000), state.P1Ms)
}

func TestService_WebSocketBadRequests(t *testing.T) {
	f := newServiceFixture(t)

	resp, _ := f.get(t, "/ws/clock")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.get(t, "/ws/clock?game_id=not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestService_StateRoutes(t *testing.T) {
	f := newServiceFixture(t)
	gameID := uuid.New()
	f.snapshot(t, gameID, events.ClockSnapshotPayload{P0Millis: 65000, P1Millis: 9500})

	t.Run("get clock", func(t *testing.T) {
		resp, body := f.get(t, "/api/games/"+gameID.String()+"/clock")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var state ClockState
		require.NoError(t, json.Unmarshal(body, &state))
		assert.Equal(t, gameID.String(), state.GameID)
		assert.Equal(t, "01:05", state.P0Display)
		assert.Equal(t, "00:09.5", state.P1Display)
	})

	t.Run("unknown game", func(t *testing.T) {
		resp, _ := f.get(t, "/api/games/"+uuid.NewString()+"/clock")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := f.get(t, "/api/games/abc/clock")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list games", func(t *testing.T) {
		resp, body := f.get(t, "/api/games")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var states []ClockState
		require.NoError(t, json.Unmarshal(body, &states))
		require.Len(t, states, 1)
		assert.Equal(t, gameID.String(), states[0].GameID)
	})
}

func TestService_OperationalRoutes(t *testing.T) {
	f := newServiceFixture(t)
	f.snapshot(t, uuid.New(), events.ClockSnapshotPayload{P0Millis: 1000, P1Millis: 1000})

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthStatus
	require.NoError(t, json.Unmarshal(body, &health))
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.ActiveClocks)
	assert.Empty(t, health.Errors)

	resp, body = f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "wordclock_active_clocks 1")

	resp, body = f.get(t, "/ws/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var stats ConnectionStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 0, stats.TotalConnections)
}

func TestService_CORSPreflight(t *testing.T) {
	f := newServiceFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/games", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestConfigFrom(t *testing.T) {
	c := config.Default()
	c.NATS.URL = "nats://clock:4222"
	c.NATS.MaxDeliver = 9
	c.Clock.LowTimeMillis = 5000
	c.Clock.DefaultMaxOvertimeMinutes = 2

	cfg := ConfigFrom(c)
	assert.Equal(t, "nats://clock:4222", cfg.JetStreamConfig.URL)
	assert.Equal(t, events.StreamName, cfg.JetStreamConfig.StreamName)
	assert.Equal(t, events.SubjectFilter, cfg.JetStreamConfig.SubjectFilter)
	assert.Equal(t, 9, cfg.JetStreamConfig.MaxDeliver)
	assert.EqualValues(t, 5000, cfg.RegistryConfig.LowTime)
	assert.Equal(t, 2, cfg.RegistryConfig.DefaultMaxOvertimeMinutes)
}
