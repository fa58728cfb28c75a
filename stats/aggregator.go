package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/persistence"
)

// Aggregator folds finished sessions into lifetime aggregates and keeps the
// leaderboards current.
type Aggregator struct {
	repo      persistence.StatsRepository
	now       func() time.Time
	keys      keyLock
	rebuildMu sync.Mutex
	publisher Publisher
}

// Publisher is told about every recorded session and every rebuilt set of
// leaderboards. Calls run on the goroutine that finished the match.
type Publisher interface {
	SessionRecorded(summary *models.SessionSummary)
	LeaderboardsRebuilt(boards map[string][]models.LeaderboardEntry)
}

type AggregatorOption func(*Aggregator)

func WithPublisher(p Publisher) AggregatorOption {
	return func(a *Aggregator) { a.publisher = p }
}

func NewAggregator(repo persistence.StatsRepository, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		repo: repo,
		now:  time.Now,
		keys: keyLock{locks: make(map[string]*refMutex)},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordSession stores the summary and, when the match produced winners,
// updates every player's aggregate and rebuilds all leaderboards.
func (a *Aggregator) RecordSession(ctx context.Context, summary *models.SessionSummary) error {
	if err := a.repo.SaveSessionSummary(ctx, summary); err != nil {
		return fmt.Errorf("save session summary: %w", err)
	}
	if a.publisher != nil {
		a.publisher.SessionRecorded(summary)
	}
	if len(summary.Winners) == 0 {
		logger.Log.Warnw("match finished without winners, lifetime stats untouched", "match_id", summary.MatchID)
		return nil
	}
	for i := range summary.Players {
		if err := a.Apply(ctx, &summary.Players[i], summary.Winners); err != nil {
			return err
		}
	}
	return a.RebuildLeaderboards(ctx)
}

// Apply folds one player's session into their aggregate.
func (a *Aggregator) Apply(ctx context.Context, p *models.PlayerSessionSummary, winners []string) error {
	key := p.PlayerKey
	if key == "" {
		key = models.PlayerKey("", p.DisplayName)
	}
	unlock := a.keys.lock(key)
	defer unlock()

	at := a.now()
	err := a.repo.UpdatePlayerAggregate(ctx, key, func(agg *models.PlayerAggregate) error {
		foldSession(agg, p, winners, at)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update aggregate %s: %w", key, err)
	}
	return nil
}

func foldSession(agg *models.PlayerAggregate, p *models.PlayerSessionSummary, winners []string, at time.Time) {
	agg.EnsureMaps()
	if agg.SchemaVersion == 0 {
		agg.SchemaVersion = models.AggregateVersion
	}
	if p.DisplayName != "" {
		agg.DisplayName = p.DisplayName
	}

	passed := p.WordsPassed()
	agg.Totals.GamesPlayed++
	agg.Totals.WordsGuessed += p.WordsGuessed()
	agg.Totals.WordsPassed += passed
	agg.Totals.TotalScore += p.NetScore
	if p.NetScore > agg.Totals.MaxPointsInOneGame {
		agg.Totals.MaxPointsInOneGame = p.NetScore
	}
	if passed > agg.MaxPassedInOneGame {
		agg.MaxPassedInOneGame = passed
	}

	won := false
	for _, id := range winners {
		if id == p.TeamID {
			won = true
			break
		}
	}
	if won {
		agg.Totals.Wins++
		agg.CurrentWinStreak++
		if agg.CurrentWinStreak > agg.BestWinStreak {
			agg.BestWinStreak = agg.CurrentWinStreak
		}
	} else {
		agg.CurrentWinStreak = 0
	}

	for round, spw := range p.SPWByRound {
		agg.SPWSamples[round] = append(agg.SPWSamples[round], spw)
		agg.MedianSPW[round] = Median(agg.SPWSamples[round])
		if best, ok := agg.BestSPW[round]; !ok || spw < best {
			agg.BestSPW[round] = spw
		}
	}
	for round, points := range p.BestTurnByRound {
		if best, ok := agg.BestTurn[round]; !ok || points > best {
			agg.BestTurn[round] = points
		}
	}
	agg.LastPlayedAt = at
}

// RebuildLeaderboards recomputes every leaderboard from all aggregates.
func (a *Aggregator) RebuildLeaderboards(ctx context.Context) error {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	aggs, err := a.repo.ListPlayerAggregates(ctx)
	if err != nil {
		return fmt.Errorf("list aggregates: %w", err)
	}
	boards := BuildLeaderboards(aggs)
	metrics := make([]string, 0, len(boards))
	for metric := range boards {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	for _, metric := range metrics {
		if err := a.repo.WriteLeaderboard(ctx, metric, boards[metric]); err != nil {
			return fmt.Errorf("write leaderboard %s: %w", metric, err)
		}
	}
	logger.Log.Debugw("leaderboards rebuilt", "players", len(aggs))
	if a.publisher != nil {
		a.publisher.LeaderboardsRebuilt(boards)
	}
	return nil
}

// PlayerStats returns the lifetime aggregate of key.
func (a *Aggregator) PlayerStats(ctx context.Context, key string) (*models.PlayerAggregate, error) {
	return a.repo.ReadPlayerAggregate(ctx, key)
}

// Leaderboard returns the stored rows of metric. A known metric that was
// never built yields an empty board.
func (a *Aggregator) Leaderboard(ctx context.Context, metric string) ([]models.LeaderboardEntry, error) {
	if !IsMetric(metric) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	rows, err := a.repo.ReadLeaderboard(ctx, metric)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return []models.LeaderboardEntry{}, nil
	}
	return rows, err
}

// Median of values; the mean of the two middle values for even counts.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// keyLock hands out one mutex per key and forgets it when unused.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func (k *keyLock) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
