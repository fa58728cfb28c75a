package match

import (
	"time"

	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/state"
)

// turnOrder walks teams round-robin. The player index advances each time
// the team index wraps and resets once it reaches the largest roster, so
// a shorter team repeats its members modulo its size.
type turnOrder struct {
	teamIndex   int
	playerIndex int
	rosters     [][]string
	maxRoster   int
}

func (o *turnOrder) current() string {
	if len(o.rosters) == 0 {
		return ""
	}
	roster := o.rosters[o.teamIndex]
	return roster[o.playerIndex%len(roster)]
}

func (o *turnOrder) advance() string {
	if len(o.rosters) == 0 {
		return ""
	}
	o.teamIndex = (o.teamIndex + 1) % len(o.rosters)
	if o.teamIndex == 0 {
		o.playerIndex++
		if o.playerIndex >= o.maxRoster {
			o.playerIndex = 0
		}
	}
	return o.current()
}

// InitializeTurnOrder takes teams and members in declared order and makes
// the first member of the first team the current player.
func (m *Match) InitializeTurnOrder() error {
	if len(m.teams) == 0 {
		return &InvalidRosterError{Reason: "match not initialized"}
	}
	order := turnOrder{rosters: make([][]string, len(m.teams))}
	for i, t := range m.teams {
		order.rosters[i] = append([]string(nil), t.PlayerIDs...)
		if len(t.PlayerIDs) > order.maxRoster {
			order.maxRoster = len(t.PlayerIDs)
		}
	}
	m.order = order
	m.currentPlayerID = order.current()
	m.nextPlayerID = ""
	return nil
}

// SwitchToNextPlayer advances the turn order and stores the result as the
// next player. It returns that player's id.
func (m *Match) SwitchToNextPlayer() string {
	m.nextPlayerID = m.order.advance()
	return m.nextPlayerID
}

// Snapshot returns a deep, versioned copy of the match.
func (m *Match) Snapshot() models.MatchSnapshot {
	snap := models.MatchSnapshot{
		SchemaVersion:         models.SnapshotVersion,
		ID:                    m.id,
		Phase:                 string(m.phase.GetCurrentState()),
		Players:               m.Players(),
		Teams:                 m.Teams(),
		Options:               m.options,
		RoundIndex:            m.roundIndex,
		TurnTeamIndex:         m.order.teamIndex,
		TurnPlayerIndex:       m.order.playerIndex,
		CurrentPlayerID:       m.currentPlayerID,
		NextPlayerID:          m.nextPlayerID,
		CurrentWord:           m.currentWord,
		CurrentWordFromMissed: m.currentWordFromMissed,
		RoundExhausted:        m.roundExhausted,
		SelectedWords:         append([]string{}, m.selectedWords...),
		AvailableWords:        append([]string{}, m.availableWords...),
		UsedWords:             append([]string{}, m.usedWords...),
		PassedLog:             append([]models.PassedEntry{}, m.passedLog...),
		Scores:                copyScores(m.scores),
		RoundScores:           m.RoundScores(),
		PlayerStats:           m.PlayerStats(),
		CarriedTime:           copyScores(m.carriedTime),
		MissedWords:           make(map[string][]string, len(m.missedWords)),
		Paused:                m.paused,
		HandoffPending:        m.handoffPending,
		UpdatedAt:             m.now(),
	}
	snap.Options.Filters.Categories = append([]string(nil), m.options.Filters.Categories...)
	snap.Options.Filters.Levels = append([]string(nil), m.options.Filters.Levels...)
	for pid, words := range m.missedWords {
		snap.MissedWords[pid] = append([]string(nil), words...)
	}
	return snap
}

func (m *Match) ID() string { return m.id }

func (m *Match) Phase() state.Phase { return m.phase.GetCurrentState() }

func (m *Match) RoundIndex() int { return m.roundIndex }

func (m *Match) CurrentPlayerID() string { return m.currentPlayerID }

func (m *Match) NextPlayerID() string { return m.nextPlayerID }

func (m *Match) CurrentWord() string { return m.currentWord }

func (m *Match) IsPaused() bool { return m.paused }

func (m *Match) HandoffPending() bool { return m.handoffPending }

func (m *Match) Options() models.MatchOptions { return m.options }

// Completed reports whether the match reached MatchCompleted.
func (m *Match) Completed() bool {
	return m.phase.GetCurrentState() == state.MatchCompleted
}

func (m *Match) AvailableWords() []string {
	return append([]string(nil), m.availableWords...)
}

func (m *Match) Scores() map[string]int {
	return copyScores(m.scores)
}

func (m *Match) RoundScores() map[int]map[string]int {
	out := make(map[int]map[string]int, len(m.roundScores))
	for round, scores := range m.roundScores {
		out[round] = copyScores(scores)
	}
	return out
}

func (m *Match) PlayerStats() map[string]models.PlayerMatchStats {
	out := make(map[string]models.PlayerMatchStats, len(m.playerStats))
	for pid, ps := range m.playerStats {
		out[pid] = *ps
	}
	return out
}

func (m *Match) Players() []models.Player {
	return append([]models.Player(nil), m.players...)
}

func (m *Match) Teams() []models.Team {
	return cloneTeams(m.teams)
}

// Player looks a player up by id.
func (m *Match) Player(id string) (models.Player, bool) {
	idx, ok := m.byID[id]
	if !ok {
		return models.Player{}, false
	}
	return m.players[idx], true
}

// Now reads the match clock.
func (m *Match) Now() time.Time { return m.now() }
