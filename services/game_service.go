// services/game_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/persistence"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/session"
	"github.com/wfunc/hatgame/stats"
	"github.com/wfunc/hatgame/words"
)

// StartMatchParams describes a new match. MatchID is generated when empty;
// zero options fall back to the service defaults.
type StartMatchParams struct {
	MatchID string
	Players []models.Player
	Teams   []models.Team
	Options models.MatchOptions
}

// GameService 对外暴露的对局操作集合
//
// Every mutating operation runs inside the match's room, persists the
// resulting snapshot and returns it.
type GameService struct {
	*PlayerService

	rooms       *room.Manager
	matches     persistence.MatchRepository
	aggregator  *stats.Aggregator
	words       words.Source
	subscribers []match.Subscriber
	defaults    models.MatchOptions
	now         func() time.Time
	onAbandon   func(matchID string)
}

type Option func(*GameService)

// WithSubscribers adds subscribers that receive the events of every match,
// after the match's stats session.
func WithSubscribers(subs ...match.Subscriber) Option {
	return func(s *GameService) { s.subscribers = append(s.subscribers, subs...) }
}

func WithDefaults(opts models.MatchOptions) Option {
	return func(s *GameService) { s.defaults = opts }
}

// OnAbandon registers a callback run after a match is abandoned.
func OnAbandon(fn func(matchID string)) Option {
	return func(s *GameService) { s.onAbandon = fn }
}

// WithClock drives both the matches and their stats sessions.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

func NewGameService(rooms *room.Manager, matches persistence.MatchRepository, aggregator *stats.Aggregator, source words.Source, opts ...Option) *GameService {
	s := &GameService{
		PlayerService: NewPlayerService(aggregator),
		rooms:         rooms,
		matches:       matches,
		aggregator:    aggregator,
		words:         source,
		defaults:      models.MatchOptions{WordsCount: 100},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartMatch samples the words, opens a room for the match and starts
// round 0. A short sample is accepted with a warning.
func (s *GameService) StartMatch(ctx context.Context, p StartMatchParams) (*models.MatchSnapshot, error) {
	matchID := p.MatchID
	if matchID == "" {
		matchID = uuid.NewString()
	}
	if _, exists := s.rooms.GetRoom(matchID); exists {
		return nil, room.ErrRoomExists
	}

	opts := s.withDefaults(p.Options)
	m := match.New(matchID, match.WithClock(s.now))
	if err := m.Initialize(p.Players, p.Teams, opts); err != nil {
		return nil, err
	}

	list, err := s.words.SelectWords(ctx, words.ClampCount(opts.WordsCount), opts.Filters)
	var short *words.InsufficientWordsError
	switch {
	case errors.As(err, &short):
		logger.Log.Warnw("word source returned fewer words than requested",
			"match_id", matchID,
			"requested", short.Requested,
			"available", short.Available,
		)
	case err != nil:
		return nil, err
	}
	if err := m.SetSelectedWords(list); err != nil {
		return nil, err
	}

	subs := make([]match.Subscriber, 0, len(s.subscribers)+1)
	subs = append(subs, stats.NewSession(matchID, s.aggregator, stats.WithSessionClock(s.now)))
	subs = append(subs, s.subscribers...)
	r, err := s.rooms.CreateRoom(m, subs...)
	if err != nil {
		return nil, err
	}

	snap, err := s.apply(ctx, r, func(m *match.Match) error { return m.Start() })
	if snap == nil {
		s.rooms.RemoveRoom(matchID)
		return nil, err
	}
	logger.Log.Infow("match started",
		"match_id", matchID,
		"players", len(p.Players),
		"teams", len(p.Teams),
		"words", len(list),
	)
	return snap, err
}

func (s *GameService) withDefaults(opts models.MatchOptions) models.MatchOptions {
	if opts.RoundDuration <= 0 {
		opts.RoundDuration = s.defaults.RoundDuration
	}
	if opts.WordsCount <= 0 {
		opts.WordsCount = s.defaults.WordsCount
	}
	if opts.LastRoundIndex == nil {
		opts.LastRoundIndex = s.defaults.LastRoundIndex
	}
	return opts
}

func (s *GameService) RequestNextWord(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error {
		_, err := m.NextWord()
		return err
	})
}

func (s *GameService) WordGuessed(ctx context.Context, matchID, teamID string) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error {
		_, err := m.WordGuessed(teamID)
		return err
	})
}

func (s *GameService) WordPassed(ctx context.Context, matchID, teamID string) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error { return m.WordPassed(teamID) })
}

func (s *GameService) Pause(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error { return m.Pause() })
}

func (s *GameService) Resume(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error { return m.Resume() })
}

// EndRound closes the current round. carried is the describer's remaining
// seconds, nil when none are left.
func (s *GameService) EndRound(ctx context.Context, matchID string, carried *int) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error { return m.EndRound(carried) })
}

// ContinueToNextRound opens the next round. After the last round the match
// completes: lifetime stats are recorded, the room is closed and the final
// snapshot stays in the match repository.
func (s *GameService) ContinueToNextRound(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	var completed bool
	snap, err := s.do(ctx, matchID, func(m *match.Match) error {
		done, err := m.StartNextRound()
		completed = done
		return err
	})
	if snap != nil && completed {
		s.rooms.RemoveRoom(matchID)
		logger.Log.Infow("match completed", "match_id", matchID, "scores", snap.Scores)
	}
	return snap, err
}

func (s *GameService) EndPlayerTurn(ctx context.Context, matchID string, carried *int, timedOutRemaining *float64) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error { return m.EndPlayerTurn(carried, timedOutRemaining) })
}

func (s *GameService) StartNextPlayerTurn(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	return s.do(ctx, matchID, func(m *match.Match) error { return m.StartNextPlayerTurn() })
}

// ConsumeCarriedTime returns and clears the seconds playerID carries into
// their turn.
func (s *GameService) ConsumeCarriedTime(ctx context.Context, matchID, playerID string) (int, *models.MatchSnapshot, error) {
	var secs int
	snap, err := s.do(ctx, matchID, func(m *match.Match) error {
		if _, ok := m.Player(playerID); !ok {
			return &match.InvalidTransitionError{Op: "consume_carried_time", Phase: m.Phase(), Reason: "unknown player " + playerID}
		}
		secs = m.ConsumeCarriedTime(playerID)
		return nil
	})
	return secs, snap, err
}

// AbandonMatch drops a live match without touching lifetime stats.
func (s *GameService) AbandonMatch(ctx context.Context, matchID string) error {
	if _, ok := s.rooms.GetRoom(matchID); !ok {
		return &match.NoActiveMatchError{MatchID: matchID}
	}
	s.rooms.RemoveRoom(matchID)
	if err := s.matches.DeleteMatch(ctx, matchID); err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return err
	}
	if s.onAbandon != nil {
		s.onAbandon(matchID)
	}
	logger.Log.Infow("match abandoned", "match_id", matchID)
	return nil
}

// GetMatchSnapshot reads a live match from its room and a finished one from
// the match repository.
func (s *GameService) GetMatchSnapshot(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	if r, ok := s.rooms.GetRoom(matchID); ok {
		var snap models.MatchSnapshot
		r.View(func(m *match.Match) { snap = m.Snapshot() })
		return &snap, nil
	}
	snap, err := s.matches.LoadMatch(ctx, matchID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, &match.NoActiveMatchError{MatchID: matchID}
	}
	return snap, err
}

// JoinMatch subscribes a connection to the events of a live match.
func (s *GameService) JoinMatch(sess *session.Session, matchID, playerID string) (*models.MatchSnapshot, error) {
	r, ok := s.rooms.GetRoom(matchID)
	if !ok {
		return nil, &match.NoActiveMatchError{MatchID: matchID}
	}
	if prev := sess.Room(); prev != "" && prev != matchID {
		s.LeaveMatch(sess)
	}
	r.AddPlayer(sess, playerID)

	var snap models.MatchSnapshot
	r.View(func(m *match.Match) { snap = m.Snapshot() })
	return &snap, nil
}

// LeaveMatch detaches a connection from its match, if any.
func (s *GameService) LeaveMatch(sess *session.Session) {
	if r, ok := s.rooms.GetRoom(sess.Room()); ok {
		r.RemovePlayer(sess.ID)
	}
}

func (s *GameService) do(ctx context.Context, matchID string, fn func(m *match.Match) error) (*models.MatchSnapshot, error) {
	r, ok := s.rooms.GetRoom(matchID)
	if !ok {
		return nil, &match.NoActiveMatchError{MatchID: matchID}
	}
	return s.apply(ctx, r, fn)
}

// apply runs fn in the room and persists the result while the room is still
// held, so snapshots reach the repository in operation order. A nil snapshot
// means fn or the save failed. A snapshot with an error means the match moved
// on but a subscriber failed.
func (s *GameService) apply(ctx context.Context, r *room.Room, fn func(m *match.Match) error) (*models.MatchSnapshot, error) {
	var snap *models.MatchSnapshot
	err := r.Do(ctx, func(m *match.Match) error {
		if err := fn(m); err != nil {
			return err
		}
		taken := m.Snapshot()
		if err := s.matches.SaveMatch(ctx, &taken); err != nil {
			logger.Log.Errorw("save match failed", "match_id", taken.ID, "error", err)
			return err
		}
		snap = &taken
		return nil
	})
	if snap == nil {
		return nil, err
	}
	return snap, err
}
