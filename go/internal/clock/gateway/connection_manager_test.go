package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordclock/go/internal/metrics"
)

func newTestConnection(cm *ConnectionManager, gameID uuid.UUID) *Connection {
	return &Connection{
		ID:          uuid.NewString(),
		GameID:      gameID,
		Send:        make(chan []byte, 1),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
}

func tickMessage(t *testing.T, gameID uuid.UUID) BroadcastMessage {
	t.Helper()
	event, err := newClockEvent(gameID, EventTypeClockTick, ClockTickPayload{Player: "p0", RemainingMs: 900}, testTime)
	require.NoError(t, err)
	return BroadcastMessage{GameID: gameID, Event: event}
}

func TestConnectionManager_BroadcastReachesGameOnly(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), metrics.New())
	gameID := uuid.New()

	watcher := newTestConnection(cm, gameID)
	other := newTestConnection(cm, uuid.New())
	cm.registerConnection(watcher)
	cm.registerConnection(other)

	cm.handleBroadcast(tickMessage(t, gameID))

	require.Len(t, watcher.Send, 1)
	assert.Contains(t, string(<-watcher.Send), `"remaining_ms":900`)
	assert.Empty(t, other.Send)
}

func TestConnectionManager_BroadcastAfterUnregister(t *testing.T) {
	m := metrics.New()
	cm := NewConnectionManager(DefaultConnectionConfig(), m)
	gameID := uuid.New()

	conn := newTestConnection(cm, gameID)
	cm.registerConnection(conn)
	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn)

	assert.NotPanics(t, func() { cm.handleBroadcast(tickMessage(t, gameID)) })
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WebSocketConnections))
}

func TestConnectionManager_BroadcastRacesDisconnect(t *testing.T) {
	m := metrics.New()
	cm := NewConnectionManager(DefaultConnectionConfig(), m)
	gameID := uuid.New()
	message := tickMessage(t, gameID)

	for round := 0; round < 200; round++ {
		conns := make([]*Connection, 20)
		for i := range conns {
			conns[i] = newTestConnection(cm, gameID)
			cm.registerConnection(conns[i])
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			cm.handleBroadcast(message)
		}()
		for _, conn := range conns {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cm.unregisterConnection(conn)
			}()
		}
		wg.Wait()
	}

	assert.Equal(t, 0, cm.GetConnectionStats().TotalConnections)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WebSocketConnections))
}
