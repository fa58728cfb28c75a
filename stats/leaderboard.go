package stats

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wfunc/hatgame/models"
)

var ErrUnknownMetric = errors.New("unknown leaderboard metric")

const (
	MetricSPWAll        = "spw_all"
	MetricBestStreak    = "best_streak"
	MetricMaxPoints     = "max_points_per_game"
	MetricMaxPassed     = "max_passed_per_game"
	defaultBoardRounds  = models.DefaultLastRoundIndex + 1
	spwRoundPrefix      = "spw_r"
	bestRoundSPWPrefix  = "best_round_spw_r"
	bestTurnRoundPrefix = "best_turn_r"
)

// SPWRoundMetric names the per-round median board of round index r.
func SPWRoundMetric(r int) string { return fmt.Sprintf("%s%d", spwRoundPrefix, r+1) }

// BestRoundSPWMetric names the per-round best SPW board of round index r.
func BestRoundSPWMetric(r int) string { return fmt.Sprintf("%s%d", bestRoundSPWPrefix, r+1) }

// BestTurnMetric names the per-round best turn board of round index r.
func BestTurnMetric(r int) string { return fmt.Sprintf("%s%d", bestTurnRoundPrefix, r+1) }

// Metrics lists the leaderboards of the default rounds. Matches configured
// with more rounds add per-round boards beyond these.
func Metrics() []string {
	return metricsFor(defaultBoardRounds)
}

func metricsFor(rounds int) []string {
	names := []string{MetricSPWAll, MetricBestStreak, MetricMaxPoints, MetricMaxPassed}
	for r := 0; r < rounds; r++ {
		names = append(names, SPWRoundMetric(r), BestRoundSPWMetric(r), BestTurnMetric(r))
	}
	return names
}

func IsMetric(name string) bool {
	switch name {
	case MetricSPWAll, MetricBestStreak, MetricMaxPoints, MetricMaxPassed:
		return true
	}
	for _, prefix := range []string{spwRoundPrefix, bestRoundSPWPrefix, bestTurnRoundPrefix} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			n, err := strconv.Atoi(rest)
			return err == nil && n >= 1 && strconv.Itoa(n) == rest
		}
	}
	return false
}

// boardRounds covers the default rounds and every round an aggregate holds
// samples for.
func boardRounds(aggs []*models.PlayerAggregate) int {
	n := defaultBoardRounds
	for _, a := range aggs {
		for r := range a.SPWSamples {
			n = max(n, r+1)
		}
		for r := range a.BestTurn {
			n = max(n, r+1)
		}
	}
	return n
}

type row struct {
	agg     *models.PlayerAggregate
	value   float64
	guessed int
}

// BuildLeaderboards ranks aggregates for every metric. Ties resolve by
// player key ascending; the overall SPW board first prefers more words
// guessed.
func BuildLeaderboards(aggs []*models.PlayerAggregate) map[string][]models.LeaderboardEntry {
	rounds := boardRounds(aggs)
	boards := make(map[string][]models.LeaderboardEntry, len(metricsFor(rounds)))

	var spwAll []row
	for _, a := range aggs {
		var medians []float64
		for r := 0; r < rounds; r++ {
			if len(a.SPWSamples[r]) > 0 {
				medians = append(medians, a.MedianSPW[r])
			}
		}
		if len(medians) > 0 {
			spwAll = append(spwAll, row{agg: a, value: Median(medians), guessed: a.Totals.WordsGuessed})
		}
	}
	sort.Slice(spwAll, func(i, j int) bool {
		x, y := spwAll[i], spwAll[j]
		if x.value != y.value {
			return x.value < y.value
		}
		if x.guessed != y.guessed {
			return x.guessed > y.guessed
		}
		return x.agg.PlayerKey < y.agg.PlayerKey
	})
	boards[MetricSPWAll] = rank(spwAll, true)

	boards[MetricBestStreak] = rankBy(aggs, false, func(a *models.PlayerAggregate) (float64, bool) {
		return float64(a.BestWinStreak), true
	})
	boards[MetricMaxPoints] = rankBy(aggs, false, func(a *models.PlayerAggregate) (float64, bool) {
		return float64(a.Totals.MaxPointsInOneGame), true
	})
	boards[MetricMaxPassed] = rankBy(aggs, false, func(a *models.PlayerAggregate) (float64, bool) {
		return float64(a.MaxPassedInOneGame), true
	})

	for r := 0; r < rounds; r++ {
		round := r
		boards[SPWRoundMetric(r)] = rankBy(aggs, true, func(a *models.PlayerAggregate) (float64, bool) {
			if len(a.SPWSamples[round]) == 0 {
				return 0, false
			}
			return a.MedianSPW[round], true
		})
		boards[BestRoundSPWMetric(r)] = rankBy(aggs, true, func(a *models.PlayerAggregate) (float64, bool) {
			v, ok := a.BestSPW[round]
			return v, ok
		})
		boards[BestTurnMetric(r)] = rankBy(aggs, false, func(a *models.PlayerAggregate) (float64, bool) {
			return float64(a.BestTurn[round]), true
		})
	}
	return boards
}

func rankBy(aggs []*models.PlayerAggregate, ascending bool, value func(*models.PlayerAggregate) (float64, bool)) []models.LeaderboardEntry {
	rows := make([]row, 0, len(aggs))
	for _, a := range aggs {
		if v, ok := value(a); ok {
			rows = append(rows, row{agg: a, value: v})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		x, y := rows[i], rows[j]
		if x.value != y.value {
			if ascending {
				return x.value < y.value
			}
			return x.value > y.value
		}
		return x.agg.PlayerKey < y.agg.PlayerKey
	})
	return rank(rows, false)
}

func rank(rows []row, withGuessed bool) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = models.LeaderboardEntry{
			Rank:        i + 1,
			PlayerKey:   r.agg.PlayerKey,
			DisplayName: r.agg.DisplayName,
			Value:       r.value,
		}
		if withGuessed {
			entries[i].WordsGuessed = r.guessed
		}
	}
	return entries
}
