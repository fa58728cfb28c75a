// models/models.go
package models

import (
	"errors"
	"time"
)

// SnapshotVersion is the schema version written into every MatchSnapshot.
const SnapshotVersion = 1

// AggregateVersion is the schema version of PlayerAggregate documents.
const AggregateVersion = 1

// DefaultLastRoundIndex is the last playable round index: rounds 0..3.
const DefaultLastRoundIndex = 3

var ErrUnsupportedSnapshotVersion = errors.New("unsupported snapshot version")

// Player is a match participant. Key merges lifetime stats across matches.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TeamID     string `json:"team_id"`
	Key        string `json:"key"`
	ExternalID string `json:"external_id,omitempty"`
}

// Team lists its members in turn order.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	PlayerIDs []string `json:"player_ids"`
}

// WordFilters restricts the dictionary sample.
type WordFilters struct {
	Categories []string `json:"categories,omitempty"`
	Levels     []string `json:"levels,omitempty"`
}

// MatchOptions are fixed at match start. A nil LastRoundIndex means
// DefaultLastRoundIndex; 0 plays a single round.
type MatchOptions struct {
	RoundDuration  int         `json:"round_duration"`
	WordsCount     int         `json:"words_count"`
	LastRoundIndex *int        `json:"last_round_index,omitempty"`
	Filters        WordFilters `json:"filters"`
}

// LastRound resolves LastRoundIndex.
func (o MatchOptions) LastRound() int {
	if o.LastRoundIndex == nil || *o.LastRoundIndex < 0 {
		return DefaultLastRoundIndex
	}
	return *o.LastRoundIndex
}

// Rounds returns a pointer to last, for MatchOptions.LastRoundIndex.
func Rounds(last int) *int {
	return &last
}

// PassedEntry is one audit record of a passed word.
type PassedEntry struct {
	Word      string    `json:"word"`
	PlayerID  string    `json:"player_id"`
	TeamID    string    `json:"team_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PlayerMatchStats are a player's counters within one match.
type PlayerMatchStats struct {
	Guessed  int `json:"guessed"`
	Passed   int `json:"passed"`
	NetScore int `json:"net_score"`
}

// MatchSnapshot is the serialized form of a match.
type MatchSnapshot struct {
	SchemaVersion         int                         `json:"schema_version"`
	ID                    string                      `json:"id"`
	Phase                 string                      `json:"phase"`
	Players               []Player                    `json:"players"`
	Teams                 []Team                      `json:"teams"`
	Options               MatchOptions                `json:"options"`
	RoundIndex            int                         `json:"round_index"`
	TurnTeamIndex         int                         `json:"turn_team_index"`
	TurnPlayerIndex       int                         `json:"turn_player_index"`
	CurrentPlayerID       string                      `json:"current_player_id,omitempty"`
	NextPlayerID          string                      `json:"next_player_id,omitempty"`
	CurrentWord           string                      `json:"current_word,omitempty"`
	CurrentWordFromMissed bool                        `json:"current_word_from_missed"`
	RoundExhausted        bool                        `json:"round_exhausted"`
	SelectedWords         []string                    `json:"selected_words"`
	AvailableWords        []string                    `json:"available_words"`
	UsedWords             []string                    `json:"used_words"`
	PassedLog             []PassedEntry               `json:"passed_log"`
	Scores                map[string]int              `json:"scores"`
	RoundScores           map[int]map[string]int      `json:"round_scores"`
	PlayerStats           map[string]PlayerMatchStats `json:"player_stats"`
	CarriedTime           map[string]int              `json:"carried_time"`
	MissedWords           map[string][]string         `json:"missed_words"`
	Paused                bool                        `json:"paused"`
	HandoffPending        bool                        `json:"handoff_pending"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}

// CheckVersion reports whether the snapshot can be read by this build.
func (s *MatchSnapshot) CheckVersion() error {
	if s.SchemaVersion != SnapshotVersion {
		return ErrUnsupportedSnapshotVersion
	}
	return nil
}

// AggregateTotals are running lifetime counters.
type AggregateTotals struct {
	GamesPlayed        int `json:"games_played"`
	Wins               int `json:"wins"`
	WordsGuessed       int `json:"words_guessed"`
	WordsPassed        int `json:"words_passed"`
	TotalScore         int `json:"total_score"`
	MaxPointsInOneGame int `json:"max_points_in_one_game"`
}

// PlayerAggregate is a player's durable lifetime record.
type PlayerAggregate struct {
	SchemaVersion      int               `json:"schema_version"`
	PlayerKey          string            `json:"player_key"`
	DisplayName        string            `json:"display_name"`
	Totals             AggregateTotals   `json:"totals"`
	SPWSamples         map[int][]float64 `json:"spw_samples"`
	MedianSPW          map[int]float64   `json:"median_spw"`
	BestSPW            map[int]float64   `json:"best_spw"`
	BestTurn           map[int]int       `json:"best_turn"`
	MaxPassedInOneGame int               `json:"max_passed_in_one_game"`
	CurrentWinStreak   int               `json:"current_win_streak"`
	BestWinStreak      int               `json:"best_win_streak"`
	LastPlayedAt       time.Time         `json:"last_played_at"`
}

// NewPlayerAggregate returns an empty aggregate for key.
func NewPlayerAggregate(key, displayName string) *PlayerAggregate {
	return &PlayerAggregate{
		SchemaVersion: AggregateVersion,
		PlayerKey:     key,
		DisplayName:   displayName,
		SPWSamples:    make(map[int][]float64),
		MedianSPW:     make(map[int]float64),
		BestSPW:       make(map[int]float64),
		BestTurn:      make(map[int]int),
	}
}

// EnsureMaps fills nil maps after decoding older or partial documents.
func (a *PlayerAggregate) EnsureMaps() {
	if a.SPWSamples == nil {
		a.SPWSamples = make(map[int][]float64)
	}
	if a.MedianSPW == nil {
		a.MedianSPW = make(map[int]float64)
	}
	if a.BestSPW == nil {
		a.BestSPW = make(map[int]float64)
	}
	if a.BestTurn == nil {
		a.BestTurn = make(map[int]int)
	}
}

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	PlayerKey    string  `json:"player_key"`
	DisplayName  string  `json:"display_name"`
	Value        float64 `json:"value"`
	WordsGuessed int     `json:"words_guessed,omitempty"`
}

// WordFact names a notable word of a session.
type WordFact struct {
	Word         string  `json:"word"`
	Count        int     `json:"count,omitempty"`
	TotalSeconds float64 `json:"total_seconds,omitempty"`
}

// PlayerSessionSummary is one player's contribution to a finished match.
type PlayerSessionSummary struct {
	PlayerID        string          `json:"player_id"`
	PlayerKey       string          `json:"player_key"`
	DisplayName     string          `json:"display_name"`
	TeamID          string          `json:"team_id"`
	ActiveMsByRound map[int]int64   `json:"active_ms_by_round"`
	GuessedByRound  map[int]int     `json:"guessed_by_round"`
	PassedByRound   map[int]int     `json:"passed_by_round"`
	SPWByRound      map[int]float64 `json:"spw_by_round"`
	BestTurnByRound map[int]int     `json:"best_turn_by_round"`
	NetScore        int             `json:"net_score"`
}

// WordsGuessed sums guesses over all rounds.
func (p *PlayerSessionSummary) WordsGuessed() int {
	total := 0
	for _, n := range p.GuessedByRound {
		total += n
	}
	return total
}

// WordsPassed sums passes over all rounds.
func (p *PlayerSessionSummary) WordsPassed() int {
	total := 0
	for _, n := range p.PassedByRound {
		total += n
	}
	return total
}

// SessionSummary is the durable record of a finished match.
type SessionSummary struct {
	MatchID              string                 `json:"match_id"`
	StartedAt            time.Time              `json:"started_at"`
	EndedAt              time.Time              `json:"ended_at"`
	RoundDurations       map[int]float64        `json:"round_durations"`
	MatchDurationSeconds float64                `json:"match_duration_seconds"`
	TeamTotals           map[string]int         `json:"team_totals"`
	Winners              []string               `json:"winners"`
	Players              []PlayerSessionSummary `json:"players"`
	MostPassedWord       *WordFact              `json:"most_passed_word,omitempty"`
	HardestWord          *WordFact              `json:"hardest_word,omitempty"`
}
