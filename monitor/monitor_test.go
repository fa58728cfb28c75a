package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/hatgame/match"
)

func TestMonitorCountsMatchEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	mon := NewMonitor("hat_test", reg)
	ctx := context.Background()
	at := time.Now()

	events := []match.Event{
		match.MatchStarted{MatchID: "m1", At: at},
		match.WordShown{MatchID: "m1", Word: "A", At: at},
		match.WordGuessed{MatchID: "m1", Word: "A", TeamID: "t1", At: at},
		match.WordPassed{MatchID: "m1", Word: "B", TeamID: "t1", At: at},
		match.WordGuessed{MatchID: "m1", Word: "B", TeamID: "t2", At: at},
	}
	for _, ev := range events {
		require.NoError(t, mon.HandleEvent(ctx, ev))
	}

	m := mon.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveMatches))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WordsGuessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WordsPassed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("word_guessed")))

	require.NoError(t, mon.HandleEvent(ctx, match.MatchEnded{MatchID: "m1", At: at}))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveMatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchesCompleted))
}

func TestMonitorSessionsAndMessages(t *testing.T) {
	reg := prometheus.NewRegistry()
	mon := NewMonitor("hat_test", reg)

	mon.IncOnlinePlayers()
	mon.IncOnlinePlayers()
	mon.DecOnlinePlayers()
	mon.IncMessagesReceived()
	mon.IncMessagesLimited()
	mon.ObserveMessageLatency(3 * time.Millisecond)

	m := mon.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OnlinePlayers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesLimited))

	count, err := testutil.GatherAndCount(reg, "hat_test_message_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMonitorAbandon(t *testing.T) {
	mon := NewMonitor("hat_test", prometheus.NewRegistry())
	require.NoError(t, mon.HandleEvent(context.Background(), match.MatchStarted{MatchID: "m1"}))
	mon.MatchAbandoned()
	assert.Equal(t, 0.0, testutil.ToFloat64(mon.Metrics().ActiveMatches))
}
