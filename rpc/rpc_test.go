package rpc

import (
	"context"
	netrpc "net/rpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/persistence"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/services"
	"github.com/wfunc/hatgame/stats"
	"github.com/wfunc/hatgame/words"
)

func newGame(t *testing.T) *services.GameService {
	t.Helper()
	store := persistence.NewMemoryStore()
	return services.NewGameService(room.NewRoomManager(), store, stats.NewAggregator(store), words.NewMemorySourceWords("A", "B"))
}

func TestRPCGameService(t *testing.T) {
	game := newGame(t)
	_, err := game.StartMatch(context.Background(), services.StartMatchParams{
		MatchID: "m1",
		Players: []models.Player{{ID: "p1", Name: "Anna"}, {ID: "p2", Name: "Boris"}},
		Teams: []models.Team{
			{ID: "t1", PlayerIDs: []string{"p1"}},
			{ID: "t2", PlayerIDs: []string{"p2"}},
		},
	})
	require.NoError(t, err)

	srv, err := NewServer("127.0.0.1:0", game)
	require.NoError(t, err)
	go srv.Start()
	defer srv.Stop()

	client, err := netrpc.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer client.Close()

	var snap GetMatchSnapshotReply
	require.NoError(t, client.Call("GameService.GetMatchSnapshot", &GetMatchSnapshotArgs{MatchID: "m1"}, &snap))
	require.NotNil(t, snap.Snapshot)
	assert.Equal(t, "m1", snap.Snapshot.ID)

	var board GetLeaderboardReply
	require.NoError(t, client.Call("GameService.GetLeaderboard", &GetLeaderboardArgs{Metric: stats.MetricSPWAll}, &board))
	assert.Empty(t, board.Rows)

	err = client.Call("GameService.GetLeaderboard", &GetLeaderboardArgs{Metric: "nope"}, &board)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown leaderboard metric")

	var profile GetPlayerStatsReply
	err = client.Call("GameService.GetPlayerStats", &GetPlayerStatsArgs{PlayerKey: "ext:ghost"}, &profile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
}

func TestHealthServer(t *testing.T) {
	hs, err := NewHealthServer("127.0.0.1:0")
	require.NoError(t, err)
	go hs.Start()
	defer hs.Stop()

	conn, err := grpc.NewClient(hs.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	hs.SetServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
