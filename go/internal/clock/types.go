package clock

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSnapshot = errors.New("invalid clock snapshot")
	ErrInvalidPlayer   = errors.New("invalid player")
	ErrInvalidOvertime = errors.New("invalid max overtime")
	ErrClosed          = errors.New("clock controller closed")
)

// Millis is a signed count of milliseconds. Negative values are overtime.
type Millis int64

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// MillisFromDuration truncates d to whole milliseconds.
func MillisFromDuration(d time.Duration) Millis {
	return Millis(d / time.Millisecond)
}

// Centis is a count of hundredths of a second.
type Centis int64

// Millis converts c to milliseconds.
func (c Centis) Millis() Millis {
	return Millis(c) * 10
}

// Player identifies a seat at the table. The zero value is NoPlayer.
type Player int

const (
	NoPlayer Player = iota
	P0
	P1
)

// Valid reports whether p is P0 or P1.
func (p Player) Valid() bool {
	return p == P0 || p == P1
}

func (p Player) String() string {
	switch p {
	case P0:
		return "p0"
	case P1:
		return "p1"
	case NoPlayer:
		return ""
	default:
		return fmt.Sprintf("player(%d)", int(p))
	}
}

// ParsePlayer is the inverse of Player.String. The empty string maps to NoPlayer.
func ParsePlayer(s string) (Player, error) {
	switch s {
	case "p0":
		return P0, nil
	case "p1":
		return P1, nil
	case "":
		return NoPlayer, nil
	default:
		return NoPlayer, fmt.Errorf("%w: %q", ErrInvalidPlayer, s)
	}
}

// GameStatus is the play state of the game a clock belongs to.
type GameStatus int

const (
	StatusPlaying GameStatus = iota
	StatusWaitingForFinalPass
	StatusGameOver
)

func (s GameStatus) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusWaitingForFinalPass:
		return "waiting_for_final_pass"
	case StatusGameOver:
		return "game_over"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseGameStatus is the inverse of GameStatus.String. The empty string maps to StatusPlaying.
func ParseGameStatus(s string) (GameStatus, error) {
	switch s {
	case "playing", "":
		return StatusPlaying, nil
	case "waiting_for_final_pass":
		return StatusWaitingForFinalPass, nil
	case "game_over":
		return StatusGameOver, nil
	default:
		return StatusPlaying, fmt.Errorf("unknown game status %q", s)
	}
}

// Snapshot is an authoritative statement of both players' remaining time.
// At instant AsOf, P0 and P1 had the given time left and Active (if not
// NoPlayer) was spending it. A zero AsOf means "now".
type Snapshot struct {
	P0     Millis
	P1     Millis
	Active Player
	AsOf   time.Time
}

// Validate rejects snapshots whose active player is neither NoPlayer nor a seat.
func (s Snapshot) Validate() error {
	if s.Active != NoPlayer && !s.Active.Valid() {
		return fmt.Errorf("%w: active player %d", ErrInvalidSnapshot, int(s.Active))
	}
	return nil
}

// Of returns the stored duration for p.
func (s Snapshot) Of(p Player) Millis {
	if p == P1 {
		return s.P1
	}
	return s.P0
}

func (s *Snapshot) set(p Player, m Millis) {
	if p == P1 {
		s.P1 = m
		return
	}
	s.P0 = m
}

// Listener receives scheduler notifications. Implementations must not panic,
// and may read the controller but not call SetClock, StopClock or Close.
// A notification never arrives after the SetClock or StopClock that
// superseded it has returned.
type Listener interface {
	NotifyTick(p Player, remaining Millis)
	NotifyTimeout(p Player)
}

// ListenerFuncs adapts two plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnTick    func(p Player, remaining Millis)
	OnTimeout func(p Player)
}

func (l ListenerFuncs) NotifyTick(p Player, remaining Millis) {
	if l.OnTick != nil {
		l.OnTick(p, remaining)
	}
}

func (l ListenerFuncs) NotifyTimeout(p Player) {
	if l.OnTimeout != nil {
		l.OnTimeout(p)
	}
}
