package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/persistence"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time          { return c.t }
func (c *stepClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var (
	testPlayers = []models.Player{
		{ID: "p1", Name: "Anna", TeamID: "t1", Key: "name:anna"},
		{ID: "p2", Name: "Boris", TeamID: "t2", Key: "name:boris"},
	}
	testTeams = []models.Team{
		{ID: "t1", PlayerIDs: []string{"p1"}},
		{ID: "t2", PlayerIDs: []string{"p2"}},
	}
)

type sessionDriver struct {
	t     *testing.T
	s     *Session
	clock *stepClock
}

func newDriver(t *testing.T, recorder Recorder) *sessionDriver {
	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	d := &sessionDriver{t: t, clock: clock, s: NewSession("m1", recorder, WithSessionClock(clock.Now))}
	d.send(match.MatchStarted{MatchID: "m1", Players: testPlayers, Teams: testTeams})
	return d
}

func (d *sessionDriver) send(ev match.Event) {
	d.t.Helper()
	require.NoError(d.t, d.s.HandleEvent(context.Background(), ev))
}

func (d *sessionDriver) end(roundScores map[int]map[string]int) *models.SessionSummary {
	d.t.Helper()
	d.send(match.MatchEnded{MatchID: "m1", Players: testPlayers, Teams: testTeams, RoundScores: roundScores})
	summary := d.s.Summary()
	require.NotNil(d.t, summary)
	return summary
}

func playerSummary(t *testing.T, summary *models.SessionSummary, id string) models.PlayerSessionSummary {
	t.Helper()
	for _, p := range summary.Players {
		if p.PlayerID == id {
			return p
		}
	}
	t.Fatalf("player %s missing from summary", id)
	return models.PlayerSessionSummary{}
}

func TestSessionSecondsPerWord(t *testing.T) {
	d := newDriver(t, nil)
	d.send(match.TurnStarted{PlayerID: "p1", RoundIndex: 0})
	d.send(match.WordShown{PlayerID: "p1", Word: "A", RoundIndex: 0})
	d.clock.Advance(3 * time.Second)
	d.send(match.WordGuessed{PlayerID: "p1", TeamID: "t1", Word: "A", RoundIndex: 0})
	d.send(match.WordShown{PlayerID: "p1", Word: "B", RoundIndex: 0})
	d.send(match.Paused{})
	d.clock.Advance(time.Minute)
	d.send(match.Resumed{})
	d.clock.Advance(5 * time.Second)
	d.send(match.WordGuessed{PlayerID: "p1", TeamID: "t1", Word: "B", RoundIndex: 0})
	d.send(match.TurnEnded{PlayerID: "p1", RoundIndex: 0})
	d.send(match.RoundEnded{RoundIndex: 0})

	summary := d.end(map[int]map[string]int{0: {"t1": 2, "t2": 0}})
	p1 := playerSummary(t, summary, "p1")
	assert.Equal(t, int64(8000), p1.ActiveMsByRound[0])
	assert.InDelta(t, 4.0, p1.SPWByRound[0], 1e-9)
	assert.Equal(t, 2, p1.BestTurnByRound[0])
	assert.Equal(t, 8.0, summary.RoundDurations[0])
	assert.Equal(t, 8.0, summary.MatchDurationSeconds)
	assert.Equal(t, []string{"t1"}, summary.Winners)

	p2 := playerSummary(t, summary, "p2")
	assert.Empty(t, p2.SPWByRound)
}

func TestSessionTurnStartedWhilePaused(t *testing.T) {
	d := newDriver(t, nil)
	d.send(match.TurnStarted{PlayerID: "p1", RoundIndex: 0})
	d.clock.Advance(3 * time.Second)
	d.send(match.TurnEnded{PlayerID: "p1", RoundIndex: 0})
	d.send(match.Paused{})

	d.send(match.TurnStarted{PlayerID: "p2", RoundIndex: 0, Paused: true})
	d.clock.Advance(100 * time.Second)
	d.send(match.Resumed{})
	d.send(match.WordShown{PlayerID: "p2", Word: "A", RoundIndex: 0})
	d.clock.Advance(2 * time.Second)
	d.send(match.WordGuessed{PlayerID: "p2", TeamID: "t2", Word: "A", RoundIndex: 0})
	d.send(match.TurnEnded{PlayerID: "p2", RoundIndex: 0})
	d.send(match.RoundEnded{RoundIndex: 0})

	summary := d.end(map[int]map[string]int{0: {"t1": 0, "t2": 1}})
	p2 := playerSummary(t, summary, "p2")
	assert.Equal(t, int64(2000), p2.ActiveMsByRound[0])
	assert.InDelta(t, 2.0, p2.SPWByRound[0], 1e-9)
	assert.Equal(t, 5.0, summary.RoundDurations[0])
}

func TestSessionFacts(t *testing.T) {
	d := newDriver(t, nil)
	d.send(match.TurnStarted{PlayerID: "p1", RoundIndex: 0})
	for _, w := range []string{"hard", "easy", "hard", "easy"} {
		d.send(match.WordShown{PlayerID: "p1", Word: w})
		d.clock.Advance(time.Second)
		d.send(match.WordPassed{PlayerID: "p1", TeamID: "t1", Word: w})
	}
	d.send(match.WordShown{PlayerID: "p1", Word: "slow"})
	d.clock.Advance(2 * time.Second)
	remaining := 4.5
	d.send(match.TurnEnded{PlayerID: "p1", TimedOutRemaining: &remaining})

	summary := d.end(map[int]map[string]int{0: {"t1": -4, "t2": 0}})
	require.NotNil(t, summary.MostPassedWord)
	assert.Equal(t, models.WordFact{Word: "hard", Count: 2}, *summary.MostPassedWord)
	require.NotNil(t, summary.HardestWord)
	assert.Equal(t, "slow", summary.HardestWord.Word)
	assert.InDelta(t, 4.5, summary.HardestWord.TotalSeconds, 1e-9)

	p1 := playerSummary(t, summary, "p1")
	assert.Equal(t, 4, p1.WordsPassed())
	assert.Equal(t, -4, p1.NetScore)
	assert.Equal(t, 0, p1.BestTurnByRound[0])
}

func TestSessionWithoutFacts(t *testing.T) {
	d := newDriver(t, nil)
	summary := d.end(map[int]map[string]int{0: {}})
	assert.Nil(t, summary.MostPassedWord)
	assert.Nil(t, summary.HardestWord)
}

func TestSessionFinalizesOpenTurn(t *testing.T) {
	d := newDriver(t, nil)
	d.send(match.TurnStarted{PlayerID: "p2", RoundIndex: 1})
	d.clock.Advance(6 * time.Second)
	d.send(match.WordGuessed{PlayerID: "p2", TeamID: "t2", RoundIndex: 1})

	summary := d.end(map[int]map[string]int{1: {"t2": 1}})
	p2 := playerSummary(t, summary, "p2")
	assert.Equal(t, int64(6000), p2.ActiveMsByRound[1])
	assert.InDelta(t, 6.0, p2.SPWByRound[1], 1e-9)
}

func TestWinnersTie(t *testing.T) {
	winners := Winners(testTeams, map[int]map[string]int{
		0: {"t1": 3, "t2": 1},
		1: {"t1": 0, "t2": 2},
	})
	assert.Equal(t, []string{"t1", "t2"}, winners)
	assert.Nil(t, Winners(nil, nil))
}

func TestSessionRecordsThroughAggregator(t *testing.T) {
	store := persistence.NewMemoryStore()
	agg := NewAggregator(store)
	d := newDriver(t, agg)
	d.send(match.TurnStarted{PlayerID: "p1", RoundIndex: 0})
	d.clock.Advance(4 * time.Second)
	d.send(match.WordGuessed{PlayerID: "p1", TeamID: "t1", RoundIndex: 0})
	d.send(match.TurnEnded{PlayerID: "p1", RoundIndex: 0})

	d.end(map[int]map[string]int{0: {"t1": 1, "t2": 0}})
	require.Len(t, store.SessionSummaries(), 1)

	a, err := agg.PlayerStats(context.Background(), "name:anna")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Totals.Wins)
	assert.Equal(t, []float64{4}, a.SPWSamples[0])
}
