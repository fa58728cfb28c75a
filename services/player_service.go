// services/player_service.go
package services

import (
	"context"
	"fmt"

	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/stats"
)

// PlayerService 玩家终身统计与排行榜的只读访问
type PlayerService struct {
	aggregator *stats.Aggregator
}

func NewPlayerService(aggregator *stats.Aggregator) *PlayerService {
	return &PlayerService{aggregator: aggregator}
}

// PlayerProfile is a lifetime aggregate together with the player's position
// on every leaderboard they appear on.
type PlayerProfile struct {
	Stats *models.PlayerAggregate `json:"stats"`
	Ranks map[string]int          `json:"ranks"`
}

// GetPlayerLifetimeStats returns persistence.ErrRecordNotFound for a key that
// never finished a match.
func (s *PlayerService) GetPlayerLifetimeStats(ctx context.Context, key string) (*models.PlayerAggregate, error) {
	return s.aggregator.PlayerStats(ctx, key)
}

func (s *PlayerService) GetLeaderboard(ctx context.Context, metric string) ([]models.LeaderboardEntry, error) {
	return s.aggregator.Leaderboard(ctx, metric)
}

// GetPlayerWithStats 获取玩家统计和排名
func (s *PlayerService) GetPlayerWithStats(ctx context.Context, key string) (*PlayerProfile, error) {
	agg, err := s.aggregator.PlayerStats(ctx, key)
	if err != nil {
		return nil, err
	}

	profile := &PlayerProfile{Stats: agg, Ranks: make(map[string]int)}
	for _, metric := range stats.Metrics() {
		rows, err := s.aggregator.Leaderboard(ctx, metric)
		if err != nil {
			return nil, fmt.Errorf("leaderboard %s: %w", metric, err)
		}
		for _, row := range rows {
			if row.PlayerKey == key {
				profile.Ranks[metric] = row.Rank
				break
			}
		}
	}
	return profile, nil
}
