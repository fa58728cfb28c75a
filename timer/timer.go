// timer/timer.go
package timer

import (
	"time"
)

// Turn is one describer's timed period.
type Turn struct {
	PlayerID          string
	RoundIndex        int
	StartedAt         time.Time
	LastResumeAt      time.Time
	AccumulatedActive time.Duration
	Paused            bool
	PointsDelta       int
	Guessed           int
	Passed            int
}

// ActiveMs is the turn's active time in whole milliseconds.
func (t *Turn) ActiveMs() int64 {
	return t.AccumulatedActive.Milliseconds()
}

// TurnClock measures active time of the open turn across pauses.
// It is not safe for concurrent use.
type TurnClock struct {
	now  func() time.Time
	turn *Turn
}

func NewTurnClock(now func() time.Time) *TurnClock {
	if now == nil {
		now = time.Now
	}
	return &TurnClock{now: now}
}

// Start opens a turn for playerID. An open turn is finished first and
// returned so the caller can record it.
func (c *TurnClock) Start(playerID string, roundIndex int) *Turn {
	prev := c.End()
	at := c.now()
	c.turn = &Turn{
		PlayerID:     playerID,
		RoundIndex:   roundIndex,
		StartedAt:    at,
		LastResumeAt: at,
	}
	return prev
}

// Pause folds the running interval into the accumulated time.
func (c *TurnClock) Pause() {
	if c.turn == nil || c.turn.Paused {
		return
	}
	c.fold()
	c.turn.Paused = true
}

func (c *TurnClock) Resume() {
	if c.turn == nil || !c.turn.Paused {
		return
	}
	c.turn.Paused = false
	c.turn.LastResumeAt = c.now()
}

// End closes the open turn and returns it, or nil when none is open.
func (c *TurnClock) End() *Turn {
	t := c.turn
	if t == nil {
		return nil
	}
	if !t.Paused {
		c.fold()
	}
	c.turn = nil
	return t
}

// AddPoints records a guess (+1) or a pass (-1) against the open turn.
func (c *TurnClock) AddPoints(delta int) {
	if c.turn == nil {
		return
	}
	c.turn.PointsDelta += delta
	if delta > 0 {
		c.turn.Guessed++
	} else if delta < 0 {
		c.turn.Passed++
	}
}

// Active returns the open turn, or nil.
func (c *TurnClock) Active() *Turn {
	return c.turn
}

func (c *TurnClock) fold() {
	at := c.now()
	if d := at.Sub(c.turn.LastResumeAt); d > 0 {
		c.turn.AccumulatedActive += d
	}
	c.turn.LastResumeAt = at
}
