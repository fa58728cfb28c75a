// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/network"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToAll(msgID uint16, data []byte) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	room, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	// Get a thread-safe copy of the sessions
	sessions := room.GetSessions()

	for _, s := range sessions {
		send(s, msgID, data)
	}

	return nil
}

// BroadcastToAll 向所有连接广播, 例如排行榜更新
func (b *RoomBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.All() {
		send(s, msgID, data)
	}
	return nil
}

// 发送失败只记录日志, 连接的读循环负责清理断开的会话
func send(s *session.Session, msgID uint16, data []byte) {
	if err := s.Send(msgID, data); err != nil {
		logger.Log.Debugw("send failed", "session_id", s.ID, "msg_id", msgID, "error", err)
	}
}

// StatsPublisher pushes finished-match stats: the session summary to the
// match's room and the rebuilt leaderboards to every connection.
type StatsPublisher struct {
	broadcaster Broadcaster
}

func NewStatsPublisher(b Broadcaster) *StatsPublisher {
	return &StatsPublisher{broadcaster: b}
}

func (p *StatsPublisher) SessionRecorded(summary *models.SessionSummary) {
	data, err := json.Marshal(summary)
	if err != nil {
		logger.Log.Errorw("encode session summary failed", "match_id", summary.MatchID, "error", err)
		return
	}
	if err := p.broadcaster.BroadcastToRoom(summary.MatchID, network.MsgTypeSessionSummary, data); err != nil {
		logger.Log.Debugw("session summary not pushed", "match_id", summary.MatchID, "error", err)
	}
}

func (p *StatsPublisher) LeaderboardsRebuilt(boards map[string][]models.LeaderboardEntry) {
	data, err := json.Marshal(network.LeaderboardsUpdate{Boards: boards})
	if err != nil {
		logger.Log.Errorw("encode leaderboards failed", "error", err)
		return
	}
	if err := p.broadcaster.BroadcastToAll(network.MsgTypeLeaderboardsUpdated, data); err != nil {
		logger.Log.Warnw("push leaderboards failed", "error", err)
	}
}
