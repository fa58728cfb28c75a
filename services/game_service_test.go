package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/persistence"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/state"
	"github.com/wfunc/hatgame/stats"
	"github.com/wfunc/hatgame/words"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) SelectWords(ctx context.Context, count int, filters models.WordFilters) ([]string, error) {
	args := m.Called(ctx, count, filters)
	list, _ := args.Get(0).([]string)
	return list, args.Error(1)
}

type failingMatches struct {
	*persistence.MemoryStore
	err error
}

func (f *failingMatches) SaveMatch(ctx context.Context, snap *models.MatchSnapshot) error {
	return f.err
}

// gatedMatches holds the first save made after arm until release closes.
type gatedMatches struct {
	*persistence.MemoryStore
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMatches) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *gatedMatches) SaveMatch(ctx context.Context, snap *models.MatchSnapshot) error {
	g.mu.Lock()
	hold := g.armed
	g.armed = false
	g.mu.Unlock()
	if hold {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.SaveMatch(ctx, snap)
}

var (
	players = []models.Player{
		{ID: "p1", Name: "Anna", Key: "name:anna"},
		{ID: "p2", Name: "Boris", Key: "name:boris"},
	}
	teams = []models.Team{
		{ID: "t1", Name: "Owls", PlayerIDs: []string{"p1"}},
		{ID: "t2", Name: "Foxes", PlayerIDs: []string{"p2"}},
	}
)

type fixture struct {
	svc   *GameService
	store *persistence.MemoryStore
	rooms *room.Manager
	src   *mockSource
	now   time.Time
}

func newFixture(t *testing.T, list []string, srcErr error) *fixture {
	t.Helper()
	f := &fixture{
		store: persistence.NewMemoryStore(),
		rooms: room.NewRoomManager(),
		src:   &mockSource{},
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.src.On("SelectWords", mock.Anything, 10, models.WordFilters{}).Return(list, srcErr)
	f.svc = NewGameService(f.rooms, f.store, stats.NewAggregator(f.store), f.src,
		WithDefaults(models.MatchOptions{RoundDuration: 45, WordsCount: 10}),
		WithClock(func() time.Time {
			f.now = f.now.Add(time.Second)
			return f.now
		}),
	)
	return f
}

func (f *fixture) start(t *testing.T, id string) *models.MatchSnapshot {
	t.Helper()
	snap, err := f.svc.StartMatch(context.Background(), StartMatchParams{MatchID: id, Players: players, Teams: teams})
	require.NoError(t, err)
	return snap
}

func TestStartMatch(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, nil)
	snap := f.start(t, "m1")

	assert.Equal(t, "m1", snap.ID)
	assert.Equal(t, string(state.RoundInProgress), snap.Phase)
	assert.Equal(t, 45, snap.Options.RoundDuration)
	assert.Equal(t, models.DefaultLastRoundIndex, snap.Options.LastRound())
	assert.Equal(t, "p1", snap.CurrentPlayerID)
	assert.NotEmpty(t, snap.CurrentWord)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, snap.SelectedWords)
	f.src.AssertExpectations(t)

	stored, err := f.store.LoadMatch(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, snap.CurrentWord, stored.CurrentWord)

	_, err = f.svc.StartMatch(context.Background(), StartMatchParams{MatchID: "m1", Players: players, Teams: teams})
	assert.ErrorIs(t, err, room.ErrRoomExists)
}

func TestStartMatchGeneratesID(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	snap, err := f.svc.StartMatch(context.Background(), StartMatchParams{Players: players, Teams: teams})
	require.NoError(t, err)
	assert.Len(t, snap.ID, 36)
	_, ok := f.rooms.GetRoom(snap.ID)
	assert.True(t, ok)
}

func TestStartMatchAcceptsShortSample(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, &words.InsufficientWordsError{Requested: 10, Available: 2})
	snap := f.start(t, "m1")
	assert.Len(t, snap.SelectedWords, 2)
}

func TestStartMatchFailures(t *testing.T) {
	t.Run("source error", func(t *testing.T) {
		boom := errors.New("dictionary offline")
		f := newFixture(t, nil, boom)
		_, err := f.svc.StartMatch(context.Background(), StartMatchParams{MatchID: "m1", Players: players, Teams: teams})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, f.rooms.Count())
	})

	t.Run("empty pool", func(t *testing.T) {
		f := newFixture(t, []string{}, nil)
		_, err := f.svc.StartMatch(context.Background(), StartMatchParams{MatchID: "m1", Players: players, Teams: teams})
		var empty *match.EmptyWordPoolError
		assert.ErrorAs(t, err, &empty)
		assert.Equal(t, 0, f.rooms.Count())
	})

	t.Run("bad roster", func(t *testing.T) {
		f := newFixture(t, []string{"A"}, nil)
		_, err := f.svc.StartMatch(context.Background(), StartMatchParams{MatchID: "m1", Players: players})
		var roster *match.InvalidRosterError
		assert.ErrorAs(t, err, &roster)
		f.src.AssertNotCalled(t, "SelectWords", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestUnknownMatch(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	ctx := context.Background()
	var missing *match.NoActiveMatchError

	_, err := f.svc.RequestNextWord(ctx, "nope")
	assert.ErrorAs(t, err, &missing)
	_, err = f.svc.WordGuessed(ctx, "nope", "t1")
	assert.ErrorAs(t, err, &missing)
	_, err = f.svc.GetMatchSnapshot(ctx, "nope")
	assert.ErrorAs(t, err, &missing)
	assert.ErrorAs(t, f.svc.AbandonMatch(ctx, "nope"), &missing)
}

func TestInvalidTransitionLeavesSnapshot(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, nil)
	before := f.start(t, "m1")

	_, err := f.svc.WordGuessed(context.Background(), "m1", "t9")
	var transition *match.InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	after, err := f.svc.GetMatchSnapshot(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, before.Scores, after.Scores)
	assert.Equal(t, before.CurrentWord, after.CurrentWord)
}

func TestTurnHandoffAndCarriedTime(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, nil)
	f.start(t, "m1")
	ctx := context.Background()

	carried := 12
	snap, err := f.svc.EndPlayerTurn(ctx, "m1", &carried, nil)
	require.NoError(t, err)
	assert.True(t, snap.HandoffPending)
	assert.Equal(t, "p2", snap.NextPlayerID)

	snap, err = f.svc.StartNextPlayerTurn(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "p2", snap.CurrentPlayerID)

	secs, snap, err := f.svc.ConsumeCarriedTime(ctx, "m1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 12, secs)
	assert.NotContains(t, snap.CarriedTime, "p1")

	_, _, err = f.svc.ConsumeCarriedTime(ctx, "m1", "ghost")
	var transition *match.InvalidTransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	f.start(t, "m1")

	snap, err := f.svc.Pause(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, snap.Paused)

	snap, err = f.svc.Resume(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, snap.Paused)
}

func TestFullMatchUpdatesLifetimeStats(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, nil)
	ctx := context.Background()
	f.start(t, "m1")

	for round := 0; round <= models.DefaultLastRoundIndex; round++ {
		snap, err := f.svc.RequestNextWord(ctx, "m1")
		require.NoError(t, err)
		require.NotEmpty(t, snap.CurrentWord, "round %d", round)

		_, err = f.svc.WordGuessed(ctx, "m1", "t1")
		require.NoError(t, err)
		snap, err = f.svc.WordGuessed(ctx, "m1", "t1")
		require.NoError(t, err)
		require.True(t, snap.RoundExhausted)

		_, err = f.svc.EndRound(ctx, "m1", nil)
		require.NoError(t, err)
		snap, err = f.svc.ContinueToNextRound(ctx, "m1")
		require.NoError(t, err)
		if round < models.DefaultLastRoundIndex {
			assert.Equal(t, round+1, snap.RoundIndex)
		}
	}

	_, live := f.rooms.GetRoom("m1")
	assert.False(t, live, "room closes once the match completes")

	final, err := f.svc.GetMatchSnapshot(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, string(state.MatchCompleted), final.Phase)
	assert.Equal(t, 8, final.Scores["t1"])

	summaries := f.store.SessionSummaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, []string{"t1"}, summaries[0].Winners)

	anna, err := f.svc.GetPlayerLifetimeStats(ctx, "name:anna")
	require.NoError(t, err)
	assert.Equal(t, 1, anna.Totals.GamesPlayed)
	assert.Equal(t, 1, anna.Totals.Wins)
	assert.Equal(t, 8, anna.Totals.WordsGuessed)

	boris, err := f.svc.GetPlayerLifetimeStats(ctx, "name:boris")
	require.NoError(t, err)
	assert.Equal(t, 0, boris.Totals.Wins)

	rows, err := f.svc.GetLeaderboard(ctx, stats.MetricMaxPoints)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "name:anna", rows[0].PlayerKey)
	assert.Equal(t, 8.0, rows[0].Value)

	profile, err := f.svc.GetPlayerWithStats(ctx, "name:anna")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Ranks[stats.MetricMaxPoints])

	_, err = f.svc.RequestNextWord(ctx, "m1")
	var missing *match.NoActiveMatchError
	assert.ErrorAs(t, err, &missing)
}

func TestSingleRoundMatch(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	ctx := context.Background()
	snap, err := f.svc.StartMatch(ctx, StartMatchParams{
		MatchID: "m1",
		Players: players,
		Teams:   teams,
		Options: models.MatchOptions{LastRoundIndex: models.Rounds(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Options.LastRound())

	_, err = f.svc.WordGuessed(ctx, "m1", "t1")
	require.NoError(t, err)
	_, err = f.svc.EndRound(ctx, "m1", nil)
	require.NoError(t, err)
	snap, err = f.svc.ContinueToNextRound(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, string(state.MatchCompleted), snap.Phase)
	assert.Equal(t, 0, f.rooms.Count())
}

func TestAbandonMatchSkipsStats(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, nil)
	ctx := context.Background()
	f.start(t, "m1")
	_, err := f.svc.WordGuessed(ctx, "m1", "t1")
	require.NoError(t, err)

	require.NoError(t, f.svc.AbandonMatch(ctx, "m1"))
	assert.Equal(t, 0, f.rooms.Count())
	_, err = f.store.LoadMatch(ctx, "m1")
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)
	assert.Empty(t, f.store.SessionSummaries())

	_, err = f.svc.GetPlayerLifetimeStats(ctx, "name:anna")
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)
}

func TestRepositoryErrorSurfaces(t *testing.T) {
	boom := errors.New("disk full")
	store := persistence.NewMemoryStore()
	src := &mockSource{}
	src.On("SelectWords", mock.Anything, mock.Anything, mock.Anything).Return([]string{"A"}, nil)
	svc := NewGameService(room.NewRoomManager(), &failingMatches{MemoryStore: store, err: boom}, stats.NewAggregator(store), src)

	_, err := svc.StartMatch(context.Background(), StartMatchParams{MatchID: "m1", Players: players, Teams: teams})
	assert.ErrorIs(t, err, boom)
}

func TestSnapshotsSavedInOperationOrder(t *testing.T) {
	store := persistence.NewMemoryStore()
	gated := &gatedMatches{MemoryStore: store, entered: make(chan struct{}), release: make(chan struct{})}
	src := &mockSource{}
	src.On("SelectWords", mock.Anything, mock.Anything, mock.Anything).Return([]string{"A", "B", "C"}, nil)
	svc := NewGameService(room.NewRoomManager(), gated, stats.NewAggregator(store), src)
	ctx := context.Background()

	_, err := svc.StartMatch(ctx, StartMatchParams{MatchID: "m1", Players: players, Teams: teams})
	require.NoError(t, err)

	gated.arm()
	first := make(chan error, 1)
	go func() {
		_, err := svc.WordGuessed(ctx, "m1", "t1")
		first <- err
	}()
	<-gated.entered

	second := make(chan error, 1)
	go func() {
		_, err := svc.WordGuessed(ctx, "m1", "t1")
		second <- err
	}()
	assert.Never(t, func() bool { return len(second) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"second operation must wait for the first save")

	close(gated.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	live, err := svc.GetMatchSnapshot(ctx, "m1")
	require.NoError(t, err)
	stored, err := store.LoadMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, live.Scores["t1"])
	assert.Equal(t, live.Scores, stored.Scores)
	assert.Equal(t, live.CurrentWord, stored.CurrentWord)
}

func TestUnknownLeaderboard(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.GetLeaderboard(context.Background(), "fastest_typist")
	assert.ErrorIs(t, err, stats.ErrUnknownMetric)

	rows, err := f.svc.GetLeaderboard(context.Background(), stats.MetricSPWAll)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
