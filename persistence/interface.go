// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/hatgame/models"
)

// MatchRepository 对局快照存储
type MatchRepository interface {
	SaveMatch(ctx context.Context, snap *models.MatchSnapshot) error
	LoadMatch(ctx context.Context, matchID string) (*models.MatchSnapshot, error)
	DeleteMatch(ctx context.Context, matchID string) error
}

// AggregateUpdateFunc mutates a player aggregate inside a read-modify-write.
// A missing aggregate is passed as a fresh one.
type AggregateUpdateFunc func(agg *models.PlayerAggregate) error

// StatsRepository 统计数据存储
type StatsRepository interface {
	ReadPlayerAggregate(ctx context.Context, key string) (*models.PlayerAggregate, error)
	WritePlayerAggregate(ctx context.Context, agg *models.PlayerAggregate) error
	// UpdatePlayerAggregate applies fn atomically with respect to other
	// updates of the same key.
	UpdatePlayerAggregate(ctx context.Context, key string, fn AggregateUpdateFunc) error
	ListPlayerAggregates(ctx context.Context) ([]*models.PlayerAggregate, error)
	ReadLeaderboard(ctx context.Context, metric string) ([]models.LeaderboardEntry, error)
	WriteLeaderboard(ctx context.Context, metric string, rows []models.LeaderboardEntry) error
	SaveSessionSummary(ctx context.Context, summary *models.SessionSummary) error
}

// Database bundles both repositories behind one connection.
type Database interface {
	MatchRepository
	StatsRepository
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
