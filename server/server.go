package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/hatgame/config"
	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/monitor"
	"github.com/wfunc/hatgame/network"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/services"
	"github.com/wfunc/hatgame/session"
)

type GameServer struct {
	cfg            config.ServerConfig
	engine         *gin.Engine
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	game           *services.GameService
	monitor        *monitor.Monitor
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(
	cfg config.ServerConfig,
	rooms *room.Manager,
	sessions *session.Manager,
	game *services.GameService,
	mon *monitor.Monitor,
	gatherer prometheus.Gatherer,
) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		roomManager:    rooms,
		sessionManager: sessions,
		game:           game,
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	s.engine = s.setupRouter(gatherer)
	s.httpServer = &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: s.engine,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *GameServer) Handler() http.Handler {
	return s.engine
}

func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and ends every WebSocket read loop.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	sess.SetRateLimit(s.cfg.MaxMessagesPerSecond, s.cfg.MessageBurst)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infow("new connection", "remote_addr", wsConn.RemoteAddr().String(), "session_id", sess.GetID())

	done := make(chan struct{})
	if s.cfg.HeartbeatInterval > 0 {
		wsConn.SetHeartbeat(s.cfg.HeartbeatInterval)
		go s.keepAlive(wsConn, done)
	}

	defer func() {
		close(done)
		logger.Log.Infow("connection closed", "remote_addr", wsConn.RemoteAddr().String(), "session_id", sess.GetID())
		s.game.LeaveMatch(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

// 定时发送 ping, 对端的 pong 会延长读超时
func (s *GameServer) keepAlive(conn *network.WSConnection, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
