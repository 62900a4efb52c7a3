package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordclock/go/internal/clock"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "clock.events.abc", Subject("abc"))
	assert.Equal(t, "clock.events.>", SubjectFilter)
}

func TestClockSnapshotPayload_Snapshot(t *testing.T) {
	asOf := time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)

	var p ClockSnapshotPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"p0_ms": 61000,
		"p1_ms": -2500,
		"active": "p1",
		"status": "waiting_for_final_pass",
		"delay_centis": 12,
		"max_overtime_minutes": 1
	}`), &p))

	snap, status, err := p.Snapshot(asOf)
	require.NoError(t, err)
	assert.Equal(t, clock.Snapshot{P0: 61000, P1: -2500, Active: clock.P1, AsOf: asOf}, snap)
	assert.Equal(t, clock.StatusWaitingForFinalPass, status)
	assert.Equal(t, int64(12), p.DelayCentis)
	require.NotNil(t, p.MaxOvertimeMinutes)
	assert.Equal(t, 1, *p.MaxOvertimeMinutes)
}

func TestClockSnapshotPayload_Defaults(t *testing.T) {
	var p ClockSnapshotPayload
	require.NoError(t, json.Unmarshal([]byte(`{"p0_ms": 1000, "p1_ms": 2000}`), &p))

	snap, status, err := p.Snapshot(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, clock.NoPlayer, snap.Active)
	assert.Equal(t, clock.StatusPlaying, status)
	assert.Nil(t, p.MaxOvertimeMinutes)
}

func TestClockSnapshotPayload_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    ClockSnapshotPayload
		want error
	}{
		{"unknown player", ClockSnapshotPayload{Active: "white"}, clock.ErrInvalidPlayer},
		{"unknown status", ClockSnapshotPayload{Status: "adjourned"}, clock.ErrInvalidSnapshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.p.Snapshot(time.Now())
			assert.ErrorIs(t, err, clock.ErrInvalidSnapshot)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
