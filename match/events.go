package match

import (
	"context"
	"time"

	"github.com/wfunc/hatgame/models"
)

// Event is a domain event recorded by a Match. The concrete types below form
// a closed set; consumers switch on them.
type Event interface {
	EventName() string
	EventMatchID() string
	OccurredAt() time.Time
}

// Subscriber receives events synchronously, in the order they were recorded.
type Subscriber interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

type MatchStarted struct {
	MatchID string          `json:"match_id"`
	Players []models.Player `json:"players"`
	Teams   []models.Team   `json:"teams"`
	At      time.Time       `json:"at"`
}

type TurnStarted struct {
	MatchID        string    `json:"match_id"`
	PlayerID       string    `json:"player_id"`
	RoundIndex     int       `json:"round_index"`
	CarriedSeconds int       `json:"carried_seconds"`
	Paused         bool      `json:"paused"`
	At             time.Time `json:"at"`
}

type WordShown struct {
	MatchID    string    `json:"match_id"`
	PlayerID   string    `json:"player_id"`
	Word       string    `json:"word"`
	RoundIndex int       `json:"round_index"`
	FromMissed bool      `json:"from_missed"`
	At         time.Time `json:"at"`
}

type WordGuessed struct {
	MatchID    string    `json:"match_id"`
	PlayerID   string    `json:"player_id"`
	TeamID     string    `json:"team_id"`
	Word       string    `json:"word"`
	RoundIndex int       `json:"round_index"`
	At         time.Time `json:"at"`
}

type WordPassed struct {
	MatchID    string    `json:"match_id"`
	PlayerID   string    `json:"player_id"`
	TeamID     string    `json:"team_id"`
	Word       string    `json:"word"`
	RoundIndex int       `json:"round_index"`
	At         time.Time `json:"at"`
}

// TurnEnded is recorded when a describer's turn stops. TimedOutRemaining is
// set only when the turn ended because the timer ran out; it carries the
// seconds the timer showed when the last word appeared.
type TurnEnded struct {
	MatchID           string    `json:"match_id"`
	PlayerID          string    `json:"player_id"`
	NextPlayerID      string    `json:"next_player_id"`
	RoundIndex        int       `json:"round_index"`
	TimedOutRemaining *float64  `json:"timed_out_remaining,omitempty"`
	At                time.Time `json:"at"`
}

type RoundEnded struct {
	MatchID     string         `json:"match_id"`
	RoundIndex  int            `json:"round_index"`
	RoundScores map[string]int `json:"round_scores"`
	Scores      map[string]int `json:"scores"`
	At          time.Time      `json:"at"`
}

type RoundStarted struct {
	MatchID    string    `json:"match_id"`
	RoundIndex int       `json:"round_index"`
	At         time.Time `json:"at"`
}

type MatchEnded struct {
	MatchID     string                 `json:"match_id"`
	Players     []models.Player        `json:"players"`
	Teams       []models.Team          `json:"teams"`
	RoundScores map[int]map[string]int `json:"round_scores"`
	Scores      map[string]int         `json:"scores"`
	At          time.Time              `json:"at"`
}

type Paused struct {
	MatchID string    `json:"match_id"`
	At      time.Time `json:"at"`
}

type Resumed struct {
	MatchID string    `json:"match_id"`
	At      time.Time `json:"at"`
}

func (e MatchStarted) EventName() string { return "match_started" }
func (e TurnStarted) EventName() string  { return "turn_started" }
func (e WordShown) EventName() string    { return "word_shown" }
func (e WordGuessed) EventName() string  { return "word_guessed" }
func (e WordPassed) EventName() string   { return "word_passed" }
func (e TurnEnded) EventName() string    { return "turn_ended" }
func (e RoundEnded) EventName() string   { return "round_ended" }
func (e RoundStarted) EventName() string { return "round_started" }
func (e MatchEnded) EventName() string   { return "match_ended" }
func (e Paused) EventName() string       { return "paused" }
func (e Resumed) EventName() string      { return "resumed" }

func (e MatchStarted) OccurredAt() time.Time { return e.At }
func (e TurnStarted) OccurredAt() time.Time  { return e.At }
func (e WordShown) OccurredAt() time.Time    { return e.At }
func (e WordGuessed) OccurredAt() time.Time  { return e.At }
func (e WordPassed) OccurredAt() time.Time   { return e.At }
func (e TurnEnded) OccurredAt() time.Time    { return e.At }
func (e RoundEnded) OccurredAt() time.Time   { return e.At }
func (e RoundStarted) OccurredAt() time.Time { return e.At }
func (e MatchEnded) OccurredAt() time.Time   { return e.At }
func (e Paused) OccurredAt() time.Time       { return e.At }
func (e Resumed) OccurredAt() time.Time      { return e.At }

func (e MatchStarted) EventMatchID() string { return e.MatchID }
func (e TurnStarted) EventMatchID() string  { return e.MatchID }
func (e WordShown) EventMatchID() string    { return e.MatchID }
func (e WordGuessed) EventMatchID() string  { return e.MatchID }
func (e WordPassed) EventMatchID() string   { return e.MatchID }
func (e TurnEnded) EventMatchID() string    { return e.MatchID }
func (e RoundEnded) EventMatchID() string   { return e.MatchID }
func (e RoundStarted) EventMatchID() string { return e.MatchID }
func (e MatchEnded) EventMatchID() string   { return e.MatchID }
func (e Paused) EventMatchID() string       { return e.MatchID }
func (e Resumed) EventMatchID() string      { return e.MatchID }
