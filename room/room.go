// room/room.go
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/session"
)

// Room 是对局的容器: 串行化对局操作并同步分发领域事件
type Room struct {
	ID          string
	Players     map[string]*session.Session // sessionID -> session
	CreatedAt   time.Time
	match       *match.Match
	subscribers []match.Subscriber
	opMutex     sync.Mutex
	playerMutex sync.RWMutex
}

// NewRoom 创建一个新房间
func NewRoom(m *match.Match, subscribers ...match.Subscriber) *Room {
	return &Room{
		ID:          m.ID(),
		Players:     make(map[string]*session.Session),
		CreatedAt:   time.Now(),
		match:       m,
		subscribers: subscribers,
	}
}

// Subscribe adds a subscriber for subsequent events.
func (r *Room) Subscribe(s match.Subscriber) {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()
	r.subscribers = append(r.subscribers, s)
}

// Do runs fn with exclusive access to the match, then dispatches the events
// fn produced to every subscriber in order. fn's error wins; otherwise the
// subscriber errors are joined.
func (r *Room) Do(ctx context.Context, fn func(m *match.Match) error) error {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()

	opErr := fn(r.match)
	events := r.match.DrainEvents()

	var errs []error
	for _, ev := range events {
		for _, sub := range r.subscribers {
			if err := sub.HandleEvent(ctx, ev); err != nil {
				logger.Log.Errorw("event subscriber failed",
					"match_id", r.ID,
					"event", ev.EventName(),
					"error", err,
				)
				errs = append(errs, err)
			}
		}
	}
	if opErr != nil {
		return opErr
	}
	return errors.Join(errs...)
}

// View runs fn with exclusive access to the match without dispatching.
func (r *Room) View(fn func(m *match.Match)) {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()
	fn(r.match)
}

// --- 房间核心逻辑 ---

// AddPlayer 添加一个连接到房间
func (r *Room) AddPlayer(s *session.Session, playerID string) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	r.Players[s.ID] = s
	s.Bind(r.ID, playerID)
}

// RemovePlayer 从房间移除一个连接
func (r *Room) RemovePlayer(sessionID string) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	if player, exists := r.Players[sessionID]; exists {
		player.Bind("", "")
		delete(r.Players, sessionID)
	}
}

// GetPlayer 获取单个连接
func (r *Room) GetPlayer(sessionID string) (*session.Session, bool) {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	player, exists := r.Players[sessionID]
	return player, exists
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.Players))
	for _, s := range r.Players {
		sessions = append(sessions, s)
	}
	return sessions
}

// --- 房间管理器 ---

var ErrRoomExists = errors.New("room already exists")

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// CreateRoom 创建一个新房间并添加到管理器
func (m *Manager) CreateRoom(mt *match.Match, subscribers ...match.Subscriber) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.rooms[mt.ID()]; exists {
		return nil, ErrRoomExists
	}
	room := NewRoom(mt, subscribers...)
	m.rooms[room.ID] = room
	return room, nil
}

// RemoveRoom 从管理器中移除一个房间并解绑其连接
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	delete(m.rooms, id)
	m.mutex.Unlock()

	if exists {
		for _, s := range room.GetSessions() {
			room.RemovePlayer(s.ID)
		}
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// IDs lists the live room ids.
func (m *Manager) IDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	return ids
}
