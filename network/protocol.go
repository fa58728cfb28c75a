package network

import (
	"github.com/wfunc/hatgame/models"
)

const (
	MsgTypeHeartbeat = 1
	MsgTypeError     = 2

	// 对局请求
	MsgTypeStartMatch          = 101
	MsgTypeJoinMatch           = 102
	MsgTypeLeaveMatch          = 103
	MsgTypeNextWord            = 104
	MsgTypeWordGuessed         = 105
	MsgTypeWordPassed          = 106
	MsgTypePause               = 107
	MsgTypeResume              = 108
	MsgTypeEndPlayerTurn       = 109
	MsgTypeStartNextPlayerTurn = 110
	MsgTypeEndRound            = 111
	MsgTypeNextRound           = 112
	MsgTypeConsumeCarriedTime  = 113
	MsgTypeAbandonMatch        = 114
	MsgTypeGetMatch            = 115

	// 统计请求
	MsgTypeGetPlayerStats = 201
	MsgTypeGetLeaderboard = 202

	// 服务端推送
	MsgTypeMatchState  = 301
	MsgTypeMatchEvent  = 302
	MsgTypePlayerStats = 303
	MsgTypeLeaderboard = 304
	MsgTypeCarriedTime = 305

	// 对局结束后的统计推送
	MsgTypeSessionSummary      = 306
	MsgTypeLeaderboardsUpdated = 307
)

// StartMatchRequest opens a new match. MatchID is generated when empty.
type StartMatchRequest struct {
	MatchID string              `json:"match_id,omitempty"`
	Players []models.Player     `json:"players"`
	Teams   []models.Team       `json:"teams"`
	Options models.MatchOptions `json:"options"`
}

// MatchRequest addresses an existing match.
type MatchRequest struct {
	MatchID string `json:"match_id"`
}

// JoinMatchRequest subscribes the session to a match's events.
type JoinMatchRequest struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id,omitempty"`
}

type TeamRequest struct {
	MatchID string `json:"match_id"`
	TeamID  string `json:"team_id"`
}

type EndPlayerTurnRequest struct {
	MatchID           string   `json:"match_id"`
	CarriedSeconds    *int     `json:"carried_seconds,omitempty"`
	TimedOutRemaining *float64 `json:"timed_out_remaining,omitempty"`
}

type EndRoundRequest struct {
	MatchID        string `json:"match_id"`
	CarriedSeconds *int   `json:"carried_seconds,omitempty"`
}

type ConsumeCarriedTimeRequest struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
}

type PlayerStatsRequest struct {
	PlayerKey string `json:"player_key"`
}

type LeaderboardRequest struct {
	Metric string `json:"metric"`
}

// ErrorResponse is sent with MsgTypeError. Code mirrors the HTTP status the
// same failure maps to.
type ErrorResponse struct {
	RequestID uint16 `json:"request_id"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

// EventMessage carries one domain event to every session of a match.
type EventMessage struct {
	MatchID string `json:"match_id"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
}

type CarriedTimeResponse struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
	Seconds  int    `json:"seconds"`
}

type LeaderboardResponse struct {
	Metric string                    `json:"metric"`
	Rows   []models.LeaderboardEntry `json:"rows"`
}

// LeaderboardsUpdate is pushed to every connection after the boards are
// rebuilt.
type LeaderboardsUpdate struct {
	Boards map[string][]models.LeaderboardEntry `json:"boards"`
}
