package stats

import (
	"context"
	"time"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/timer"
)

// Recorder persists a finished session and folds it into lifetime stats.
type Recorder interface {
	RecordSession(ctx context.Context, summary *models.SessionSummary) error
}

type playerTrack struct {
	summary models.PlayerSessionSummary
}

func newPlayerTrack(p models.Player) *playerTrack {
	return &playerTrack{summary: models.PlayerSessionSummary{
		PlayerID:        p.ID,
		PlayerKey:       p.Key,
		DisplayName:     p.Name,
		TeamID:          p.TeamID,
		ActiveMsByRound: make(map[int]int64),
		GuessedByRound:  make(map[int]int),
		PassedByRound:   make(map[int]int),
		SPWByRound:      make(map[int]float64),
		BestTurnByRound: make(map[int]int),
	}}
}

// wordTally keeps counters in first-seen order so that ties resolve to the
// word that reached the maximum first.
type wordTally[V int | float64] struct {
	order  []string
	values map[string]V
}

func (t *wordTally[V]) add(word string, v V) {
	if t.values == nil {
		t.values = make(map[string]V)
	}
	if _, ok := t.values[word]; !ok {
		t.order = append(t.order, word)
	}
	t.values[word] += v
}

func (t *wordTally[V]) max() (string, V, bool) {
	var (
		best  string
		value V
	)
	for _, w := range t.order {
		if v := t.values[w]; v > value {
			best, value = w, v
		}
	}
	return best, value, best != ""
}

// Session tracks one match. It is driven by match events and, like the
// match itself, expects its caller to serialize access.
type Session struct {
	matchID  string
	now      func() time.Time
	clock    *timer.TurnClock
	recorder Recorder

	startedAt time.Time
	players   map[string]*playerTrack
	order     []string

	roundDurations map[int]float64
	passCounts     wordTally[int]
	displaySeconds wordTally[float64]
	currentWord    string
	wordShownAt    time.Time

	summary *models.SessionSummary
}

type SessionOption func(*Session)

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session for matchID. recorder may be nil, in which
// case the summary is only kept in memory.
func NewSession(matchID string, recorder Recorder, opts ...SessionOption) *Session {
	s := &Session{
		matchID:        matchID,
		now:            time.Now,
		recorder:       recorder,
		players:        make(map[string]*playerTrack),
		roundDurations: make(map[int]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = timer.NewTurnClock(s.now)
	return s
}

// HandleEvent implements match.Subscriber.
func (s *Session) HandleEvent(ctx context.Context, ev match.Event) error {
	switch e := ev.(type) {
	case match.MatchStarted:
		s.startedAt = s.now()
		for _, p := range e.Players {
			s.ensurePlayer(p)
		}
	case match.TurnStarted:
		s.recordTurn(s.clock.Start(e.PlayerID, e.RoundIndex), false)
		// 暂停中开始的回合从暂停态计时
		if e.Paused {
			s.clock.Pause()
		}
	case match.WordShown:
		s.currentWord = e.Word
		s.wordShownAt = s.now()
	case match.WordGuessed:
		p := s.player(e.PlayerID)
		p.summary.GuessedByRound[e.RoundIndex]++
		p.summary.NetScore++
		s.addPoints(e.PlayerID, e.RoundIndex, 1)
		s.closeWordDisplay()
	case match.WordPassed:
		p := s.player(e.PlayerID)
		p.summary.PassedByRound[e.RoundIndex]++
		p.summary.NetScore--
		s.addPoints(e.PlayerID, e.RoundIndex, -1)
		if s.currentWord != "" {
			s.passCounts.add(s.currentWord, 1)
		}
		s.closeWordDisplay()
	case match.Paused:
		s.clock.Pause()
	case match.Resumed:
		s.clock.Resume()
	case match.TurnEnded:
		s.recordTurn(s.clock.End(), true)
		if e.TimedOutRemaining != nil && s.currentWord != "" {
			s.displaySeconds.add(s.currentWord, max(0, *e.TimedOutRemaining))
			s.currentWord = ""
			s.wordShownAt = time.Time{}
		}
	case match.RoundEnded:
		var totalMs int64
		for _, id := range s.order {
			totalMs += s.players[id].summary.ActiveMsByRound[e.RoundIndex]
		}
		s.roundDurations[e.RoundIndex] = float64(totalMs) / 1000
	case match.MatchEnded:
		return s.finish(ctx, e)
	}
	return nil
}

func (s *Session) ensurePlayer(p models.Player) *playerTrack {
	if t, ok := s.players[p.ID]; ok {
		return t
	}
	t := newPlayerTrack(p)
	s.players[p.ID] = t
	s.order = append(s.order, p.ID)
	return t
}

func (s *Session) player(id string) *playerTrack {
	return s.ensurePlayer(models.Player{ID: id})
}

func (s *Session) addPoints(playerID string, round, delta int) {
	if t := s.clock.Active(); t != nil && t.PlayerID == playerID && t.RoundIndex == round {
		s.clock.AddPoints(delta)
	}
}

// recordTurn folds a finished turn into the player's round totals. Only
// explicitly ended turns count toward the best turn.
func (s *Session) recordTurn(t *timer.Turn, ended bool) {
	if t == nil {
		return
	}
	p := s.player(t.PlayerID)
	p.summary.ActiveMsByRound[t.RoundIndex] += t.ActiveMs()
	if ended && t.PointsDelta > p.summary.BestTurnByRound[t.RoundIndex] {
		p.summary.BestTurnByRound[t.RoundIndex] = t.PointsDelta
	}
}

func (s *Session) closeWordDisplay() {
	if s.currentWord != "" && !s.wordShownAt.IsZero() {
		secs := s.now().Sub(s.wordShownAt).Seconds()
		s.displaySeconds.add(s.currentWord, max(0, secs))
	}
	s.currentWord = ""
	s.wordShownAt = time.Time{}
}

func (s *Session) finish(ctx context.Context, e match.MatchEnded) error {
	s.recordTurn(s.clock.End(), false)

	summary := &models.SessionSummary{
		MatchID:        s.matchID,
		StartedAt:      s.startedAt,
		EndedAt:        s.now(),
		RoundDurations: make(map[int]float64, len(s.roundDurations)),
		TeamTotals:     make(map[string]int, len(e.Teams)),
		Winners:        Winners(e.Teams, e.RoundScores),
	}
	for round, secs := range s.roundDurations {
		summary.RoundDurations[round] = secs
		summary.MatchDurationSeconds += secs
	}
	for _, t := range e.Teams {
		for _, scores := range e.RoundScores {
			summary.TeamTotals[t.ID] += scores[t.ID]
		}
	}
	if word, count, ok := s.passCounts.max(); ok {
		summary.MostPassedWord = &models.WordFact{Word: word, Count: count}
	}
	if word, secs, ok := s.displaySeconds.max(); ok {
		summary.HardestWord = &models.WordFact{Word: word, TotalSeconds: secs}
	}

	for _, p := range e.Players {
		s.ensurePlayer(p)
	}
	for _, id := range s.order {
		t := s.players[id]
		// Identity comes from the final roster when the track was created
		// from an event before MatchStarted.
		for _, p := range e.Players {
			if p.ID == id {
				t.summary.PlayerKey, t.summary.DisplayName, t.summary.TeamID = p.Key, p.Name, p.TeamID
			}
		}
		for round, ms := range t.summary.ActiveMsByRound {
			if guessed := t.summary.GuessedByRound[round]; guessed > 0 {
				t.summary.SPWByRound[round] = SecondsPerWord(ms, guessed)
			}
		}
		summary.Players = append(summary.Players, t.summary)
	}
	s.summary = summary

	logger.Log.Infow("match session finished",
		"match_id", s.matchID,
		"winners", summary.Winners,
		"duration_seconds", summary.MatchDurationSeconds,
	)
	if s.recorder == nil {
		return nil
	}
	return s.recorder.RecordSession(ctx, summary)
}

// Summary returns the finished session, or nil while the match runs.
func (s *Session) Summary() *models.SessionSummary {
	return s.summary
}

// SecondsPerWord is active seconds divided by guessed words.
func SecondsPerWord(activeMs int64, guessed int) float64 {
	return float64(activeMs) / 1000 / float64(guessed)
}

// Winners returns every team whose total over all rounds equals the
// maximum, in team order.
func Winners(teams []models.Team, roundScores map[int]map[string]int) []string {
	if len(teams) == 0 {
		return nil
	}
	totals := make([]int, len(teams))
	for i, t := range teams {
		for _, scores := range roundScores {
			totals[i] += scores[t.ID]
		}
	}
	best := totals[0]
	for _, v := range totals[1:] {
		if v > best {
			best = v
		}
	}
	var winners []string
	for i, t := range teams {
		if totals[i] == best {
			winners = append(winners, t.ID)
		}
	}
	return winners
}
