package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/services"
)

const callTimeout = 10 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the read service.
func NewServer(addr string, game *services.GameService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("GameService", NewGameService(game)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// GameService is the struct that exposes RPC methods.
type GameService struct {
	game *services.GameService
}

// NewGameService creates a new GameService.
func NewGameService(game *services.GameService) *GameService {
	return &GameService{game: game}
}

// RPC methods follow the net/rpc signature: exported method, exported
// arguments, pointer reply, error result.
type GetPlayerStatsArgs struct {
	PlayerKey string
}

type GetPlayerStatsReply struct {
	Profile *services.PlayerProfile
}

type GetLeaderboardArgs struct {
	Metric string
}

type GetLeaderboardReply struct {
	Rows []models.LeaderboardEntry
}

type GetMatchSnapshotArgs struct {
	MatchID string
}

type GetMatchSnapshotReply struct {
	Snapshot *models.MatchSnapshot
}

func (gs *GameService) GetPlayerStats(args *GetPlayerStatsArgs, reply *GetPlayerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	profile, err := gs.game.GetPlayerWithStats(ctx, args.PlayerKey)
	if err != nil {
		return err
	}
	reply.Profile = profile
	return nil
}

func (gs *GameService) GetLeaderboard(args *GetLeaderboardArgs, reply *GetLeaderboardReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	rows, err := gs.game.GetLeaderboard(ctx, args.Metric)
	if err != nil {
		return err
	}
	reply.Rows = rows
	return nil
}

func (gs *GameService) GetMatchSnapshot(args *GetMatchSnapshotArgs, reply *GetMatchSnapshotReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	snap, err := gs.game.GetMatchSnapshot(ctx, args.MatchID)
	if err != nil {
		return err
	}
	reply.Snapshot = snap
	return nil
}
