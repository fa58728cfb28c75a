package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/hatgame/models"
)

func sampleSnapshot(id string) *models.MatchSnapshot {
	return &models.MatchSnapshot{
		SchemaVersion:  models.SnapshotVersion,
		ID:             id,
		Phase:          "round_in_progress",
		Players:        []models.Player{{ID: "p1", Name: "Anna", TeamID: "t1", Key: "ext:1"}},
		Teams:          []models.Team{{ID: "t1", PlayerIDs: []string{"p1"}}},
		SelectedWords:  []string{"A", "B"},
		AvailableWords: []string{"B"},
		UsedWords:      []string{"A"},
		PassedLog:      []models.PassedEntry{},
		Scores:         map[string]int{"t1": 1},
		RoundScores:    map[int]map[string]int{0: {"t1": 1}},
		PlayerStats:    map[string]models.PlayerMatchStats{"p1": {Guessed: 1, NetScore: 1}},
		CarriedTime:    map[string]int{"p1": 7},
		MissedWords:    map[string][]string{},
		UpdatedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// exerciseRepository runs the shared contract checks against any Database.
func exerciseRepository(t *testing.T, db Database) {
	ctx := context.Background()

	t.Run("MatchRoundTrip", func(t *testing.T) {
		snap := sampleSnapshot("m-roundtrip")
		require.NoError(t, db.SaveMatch(ctx, snap))
		snap.Scores["t1"] = 2
		require.NoError(t, db.SaveMatch(ctx, snap))

		got, err := db.LoadMatch(ctx, snap.ID)
		require.NoError(t, err)
		if diff := cmp.Diff(snap, got); diff != "" {
			t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
		}

		require.NoError(t, db.DeleteMatch(ctx, snap.ID))
		_, err = db.LoadMatch(ctx, snap.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("RejectsUnknownSnapshotVersion", func(t *testing.T) {
		snap := sampleSnapshot("m-future")
		snap.SchemaVersion = 99
		require.NoError(t, db.SaveMatch(ctx, snap))
		_, err := db.LoadMatch(ctx, snap.ID)
		assert.ErrorIs(t, err, models.ErrUnsupportedSnapshotVersion)
	})

	t.Run("AggregateUpdate", func(t *testing.T) {
		_, err := db.ReadPlayerAggregate(ctx, "ext:7")
		assert.ErrorIs(t, err, ErrRecordNotFound)

		for i := 0; i < 3; i++ {
			err := db.UpdatePlayerAggregate(ctx, "ext:7", func(agg *models.PlayerAggregate) error {
				agg.DisplayName = "Seven"
				agg.Totals.GamesPlayed++
				agg.SPWSamples[0] = append(agg.SPWSamples[0], float64(i))
				return nil
			})
			require.NoError(t, err)
		}
		agg, err := db.ReadPlayerAggregate(ctx, "ext:7")
		require.NoError(t, err)
		assert.Equal(t, 3, agg.Totals.GamesPlayed)
		assert.Equal(t, []float64{0, 1, 2}, agg.SPWSamples[0])
		assert.Equal(t, "ext:7", agg.PlayerKey)

		other := models.NewPlayerAggregate("ext:1", "One")
		require.NoError(t, db.WritePlayerAggregate(ctx, other))
		all, err := db.ListPlayerAggregates(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "ext:1", all[0].PlayerKey)
	})

	t.Run("Leaderboard", func(t *testing.T) {
		_, err := db.ReadLeaderboard(ctx, "best_streak")
		assert.ErrorIs(t, err, ErrRecordNotFound)

		rows := []models.LeaderboardEntry{{Rank: 1, PlayerKey: "ext:7", DisplayName: "Seven", Value: 3}}
		require.NoError(t, db.WriteLeaderboard(ctx, "best_streak", rows))
		require.NoError(t, db.WriteLeaderboard(ctx, "spw_r4", nil))

		got, err := db.ReadLeaderboard(ctx, "best_streak")
		require.NoError(t, err)
		assert.Equal(t, rows, got)
		got, err = db.ReadLeaderboard(ctx, "spw_r4")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SessionSummary", func(t *testing.T) {
		err := db.SaveSessionSummary(ctx, &models.SessionSummary{MatchID: "m1", Winners: []string{"t1"}})
		assert.NoError(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseRepository(t, store)
	assert.Len(t, store.SessionSummaries(), 1)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	snap := sampleSnapshot("m1")
	require.NoError(t, store.SaveMatch(ctx, snap))

	snap.Scores["t1"] = 100
	got, err := store.LoadMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Scores["t1"])
}
