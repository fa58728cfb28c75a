package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/network"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/session"
)

type recordingConn struct {
	mu   sync.Mutex
	sent []uint16
	fail bool
}

func (c *recordingConn) Send(msgID uint16, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("closed")
	}
	c.sent = append(c.sent, msgID)
	return nil
}
func (c *recordingConn) Close() error                         { return nil }
func (c *recordingConn) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (c *recordingConn) SetHeartbeat(interval time.Duration)  {}
func (c *recordingConn) ReadPacket() (*network.Packet, error) { return nil, nil }

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestRoomBroadcaster(t *testing.T) {
	rooms := room.NewRoomManager()
	sessions := session.NewManager()
	b := NewRoomBroadcaster(rooms, sessions)

	m := match.New("m1")
	err := m.Initialize(
		[]models.Player{{ID: "p1"}, {ID: "p2"}},
		[]models.Team{{ID: "t1", PlayerIDs: []string{"p1"}}, {ID: "t2", PlayerIDs: []string{"p2"}}},
		models.MatchOptions{},
	)
	if err != nil {
		t.Fatal(err)
	}
	r, err := rooms.CreateRoom(m)
	if err != nil {
		t.Fatal(err)
	}

	inRoom := &recordingConn{}
	broken := &recordingConn{fail: true}
	outside := &recordingConn{}
	s1 := session.NewSession("s1", inRoom)
	s2 := session.NewSession("s2", broken)
	s3 := session.NewSession("s3", outside)
	for _, s := range []*session.Session{s1, s2, s3} {
		sessions.Add(s)
	}
	r.AddPlayer(s1, "p1")
	r.AddPlayer(s2, "p2")

	if err := b.BroadcastToRoom("m1", network.MsgTypeMatchEvent, []byte("{}")); err != nil {
		t.Fatalf("BroadcastToRoom failed: %v", err)
	}
	if inRoom.count() != 1 || outside.count() != 0 {
		t.Errorf("Room broadcast reached wrong sessions: in=%d out=%d", inRoom.count(), outside.count())
	}

	if err := b.BroadcastToRoom("missing", network.MsgTypeMatchEvent, nil); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	b.BroadcastToAll(network.MsgTypeLeaderboard, []byte("[]"))
	if inRoom.count() != 2 || outside.count() != 1 {
		t.Errorf("Broadcast to all missed sessions: in=%d out=%d", inRoom.count(), outside.count())
	}
}

func (c *recordingConn) last() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return 0
	}
	return c.sent[len(c.sent)-1]
}

func TestStatsPublisher(t *testing.T) {
	rooms := room.NewRoomManager()
	sessions := session.NewManager()
	pub := NewStatsPublisher(NewRoomBroadcaster(rooms, sessions))

	m := match.New("m1")
	err := m.Initialize(
		[]models.Player{{ID: "p1"}, {ID: "p2"}},
		[]models.Team{{ID: "t1", PlayerIDs: []string{"p1"}}, {ID: "t2", PlayerIDs: []string{"p2"}}},
		models.MatchOptions{},
	)
	if err != nil {
		t.Fatal(err)
	}
	r, err := rooms.CreateRoom(m)
	if err != nil {
		t.Fatal(err)
	}

	player := &recordingConn{}
	watcher := &recordingConn{}
	s1 := session.NewSession("s1", player)
	s2 := session.NewSession("s2", watcher)
	sessions.Add(s1)
	sessions.Add(s2)
	r.AddPlayer(s1, "p1")

	pub.SessionRecorded(&models.SessionSummary{MatchID: "m1"})
	if player.last() != network.MsgTypeSessionSummary || watcher.count() != 0 {
		t.Errorf("Session summary should reach the match only: player=%d watcher=%d", player.last(), watcher.count())
	}

	// 房间已关闭时只记录日志
	pub.SessionRecorded(&models.SessionSummary{MatchID: "gone"})

	pub.LeaderboardsRebuilt(map[string][]models.LeaderboardEntry{"max_points": {{PlayerKey: "name:anna", Rank: 1, Value: 8}}})
	if player.last() != network.MsgTypeLeaderboardsUpdated || watcher.last() != network.MsgTypeLeaderboardsUpdated {
		t.Errorf("Leaderboards should reach every session: player=%d watcher=%d", player.last(), watcher.last())
	}
}
