package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/network"
	"github.com/wfunc/hatgame/services"
	"github.com/wfunc/hatgame/session"
)

const requestTimeout = 10 * time.Second

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	s.monitor.IncMessagesReceived()
	if !sess.Allow() {
		s.monitor.IncMessagesLimited()
		s.sendError(sess, packet.MsgID, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	start := time.Now()
	defer func() { s.monitor.ObserveMessageLatency(time.Since(start)) }()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
		sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeStartMatch:
		s.handleStartMatch(ctx, sess, packet)
	case network.MsgTypeJoinMatch:
		s.handleJoinMatch(sess, packet)
	case network.MsgTypeLeaveMatch:
		s.game.LeaveMatch(sess)
		s.send(sess, network.MsgTypeLeaveMatch, struct{}{})
	case network.MsgTypeNextWord:
		s.handleMatchOp(sess, packet, func(req network.MatchRequest) (*models.MatchSnapshot, error) {
			return s.game.RequestNextWord(ctx, req.MatchID)
		})
	case network.MsgTypeWordGuessed:
		s.handleTeamOp(sess, packet, func(req network.TeamRequest) (*models.MatchSnapshot, error) {
			return s.game.WordGuessed(ctx, req.MatchID, req.TeamID)
		})
	case network.MsgTypeWordPassed:
		s.handleTeamOp(sess, packet, func(req network.TeamRequest) (*models.MatchSnapshot, error) {
			return s.game.WordPassed(ctx, req.MatchID, req.TeamID)
		})
	case network.MsgTypePause:
		s.handleMatchOp(sess, packet, func(req network.MatchRequest) (*models.MatchSnapshot, error) {
			return s.game.Pause(ctx, req.MatchID)
		})
	case network.MsgTypeResume:
		s.handleMatchOp(sess, packet, func(req network.MatchRequest) (*models.MatchSnapshot, error) {
			return s.game.Resume(ctx, req.MatchID)
		})
	case network.MsgTypeEndPlayerTurn:
		var req network.EndPlayerTurnRequest
		if s.decode(sess, packet, &req) {
			snap, err := s.game.EndPlayerTurn(ctx, req.MatchID, req.CarriedSeconds, req.TimedOutRemaining)
			s.replyState(sess, packet.MsgID, snap, err)
		}
	case network.MsgTypeStartNextPlayerTurn:
		s.handleMatchOp(sess, packet, func(req network.MatchRequest) (*models.MatchSnapshot, error) {
			return s.game.StartNextPlayerTurn(ctx, req.MatchID)
		})
	case network.MsgTypeEndRound:
		var req network.EndRoundRequest
		if s.decode(sess, packet, &req) {
			snap, err := s.game.EndRound(ctx, req.MatchID, req.CarriedSeconds)
			s.replyState(sess, packet.MsgID, snap, err)
		}
	case network.MsgTypeNextRound:
		s.handleMatchOp(sess, packet, func(req network.MatchRequest) (*models.MatchSnapshot, error) {
			return s.game.ContinueToNextRound(ctx, req.MatchID)
		})
	case network.MsgTypeConsumeCarriedTime:
		s.handleConsumeCarriedTime(ctx, sess, packet)
	case network.MsgTypeAbandonMatch:
		var req network.MatchRequest
		if s.decode(sess, packet, &req) {
			if err := s.game.AbandonMatch(ctx, req.MatchID); err != nil {
				s.replyError(sess, packet.MsgID, err)
				return
			}
			s.send(sess, network.MsgTypeAbandonMatch, req)
		}
	case network.MsgTypeGetMatch:
		s.handleMatchOp(sess, packet, func(req network.MatchRequest) (*models.MatchSnapshot, error) {
			return s.game.GetMatchSnapshot(ctx, req.MatchID)
		})
	case network.MsgTypeGetPlayerStats:
		var req network.PlayerStatsRequest
		if s.decode(sess, packet, &req) {
			profile, err := s.game.GetPlayerWithStats(ctx, req.PlayerKey)
			if err != nil {
				s.replyError(sess, packet.MsgID, err)
				return
			}
			s.send(sess, network.MsgTypePlayerStats, profile)
		}
	case network.MsgTypeGetLeaderboard:
		var req network.LeaderboardRequest
		if s.decode(sess, packet, &req) {
			rows, err := s.game.GetLeaderboard(ctx, req.Metric)
			if err != nil {
				s.replyError(sess, packet.MsgID, err)
				return
			}
			s.send(sess, network.MsgTypeLeaderboard, network.LeaderboardResponse{Metric: req.Metric, Rows: rows})
		}
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		s.sendError(sess, packet.MsgID, http.StatusBadRequest, fmt.Sprintf("unknown message type %d", packet.MsgID))
	}
}

func (s *GameServer) handleStartMatch(ctx context.Context, sess *session.Session, packet *network.Packet) {
	var req network.StartMatchRequest
	if !s.decode(sess, packet, &req) {
		return
	}
	snap, err := s.game.StartMatch(ctx, services.StartMatchParams{
		MatchID: req.MatchID,
		Players: req.Players,
		Teams:   req.Teams,
		Options: req.Options,
	})
	if snap != nil {
		// 创建者自动订阅对局事件
		if _, joinErr := s.game.JoinMatch(sess, snap.ID, sess.Player()); joinErr != nil {
			logger.Log.Warnw("join after start failed", "match_id", snap.ID, "error", joinErr)
		}
	}
	s.replyState(sess, packet.MsgID, snap, err)
}

func (s *GameServer) handleJoinMatch(sess *session.Session, packet *network.Packet) {
	var req network.JoinMatchRequest
	if !s.decode(sess, packet, &req) {
		return
	}
	snap, err := s.game.JoinMatch(sess, req.MatchID, req.PlayerID)
	if err == nil {
		logger.Log.Infow("session joined match", "session_id", sess.GetID(), "match_id", req.MatchID, "player_id", req.PlayerID)
	}
	s.replyState(sess, packet.MsgID, snap, err)
}

func (s *GameServer) handleConsumeCarriedTime(ctx context.Context, sess *session.Session, packet *network.Packet) {
	var req network.ConsumeCarriedTimeRequest
	if !s.decode(sess, packet, &req) {
		return
	}
	secs, _, err := s.game.ConsumeCarriedTime(ctx, req.MatchID, req.PlayerID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	s.send(sess, network.MsgTypeCarriedTime, network.CarriedTimeResponse{
		MatchID:  req.MatchID,
		PlayerID: req.PlayerID,
		Seconds:  secs,
	})
}

func (s *GameServer) handleMatchOp(sess *session.Session, packet *network.Packet, op func(network.MatchRequest) (*models.MatchSnapshot, error)) {
	var req network.MatchRequest
	if s.decode(sess, packet, &req) {
		snap, err := op(req)
		s.replyState(sess, packet.MsgID, snap, err)
	}
}

func (s *GameServer) handleTeamOp(sess *session.Session, packet *network.Packet, op func(network.TeamRequest) (*models.MatchSnapshot, error)) {
	var req network.TeamRequest
	if s.decode(sess, packet, &req) {
		snap, err := op(req)
		s.replyState(sess, packet.MsgID, snap, err)
	}
}

func (s *GameServer) decode(sess *session.Session, packet *network.Packet, v any) bool {
	if err := json.Unmarshal(packet.Data, v); err != nil {
		s.sendError(sess, packet.MsgID, http.StatusBadRequest, "malformed request: "+err.Error())
		return false
	}
	return true
}

// replyState sends the snapshot when the operation went through, even if a
// subscriber failed afterwards; that failure is only logged.
func (s *GameServer) replyState(sess *session.Session, requestID uint16, snap *models.MatchSnapshot, err error) {
	if snap == nil {
		s.replyError(sess, requestID, err)
		return
	}
	if err != nil {
		logger.Log.Errorw("match operation side effect failed", "match_id", snap.ID, "msg_id", requestID, "error", err)
	}
	s.send(sess, network.MsgTypeMatchState, snap)
}

func (s *GameServer) replyError(sess *session.Session, requestID uint16, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "session_id", sess.GetID(), "msg_id", requestID, "error", err)
	}
	s.sendError(sess, requestID, code, err.Error())
}

func (s *GameServer) sendError(sess *session.Session, requestID uint16, code int, message string) {
	s.send(sess, network.MsgTypeError, network.ErrorResponse{
		RequestID: requestID,
		Code:      code,
		Message:   message,
	})
}

func (s *GameServer) send(sess *session.Session, msgID uint16, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorw("encode reply failed", "msg_id", msgID, "error", err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugw("send reply failed", "session_id", sess.GetID(), "msg_id", msgID, "error", err)
	}
}
