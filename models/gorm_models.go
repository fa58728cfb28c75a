// models/gorm_models.go
package models

import (
	"time"
)

// GormMatchSnapshot stores the latest snapshot of a match.
type GormMatchSnapshot struct {
	ID        uint          `gorm:"primaryKey"`
	MatchID   string        `gorm:"uniqueIndex;not null"`
	Version   int           `gorm:"not null"`
	Phase     string        `gorm:"index;not null"`
	Data      MatchSnapshot `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GormMatchSnapshot) TableName() string { return "match_snapshots" }

// GormPlayerAggregate stores one lifetime aggregate per player key.
type GormPlayerAggregate struct {
	ID        uint            `gorm:"primaryKey"`
	PlayerKey string          `gorm:"uniqueIndex;not null"`
	Data      PlayerAggregate `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GormPlayerAggregate) TableName() string { return "player_aggregates" }

// GormLeaderboard stores the ranked rows of one metric.
type GormLeaderboard struct {
	ID        uint               `gorm:"primaryKey"`
	Metric    string             `gorm:"uniqueIndex;not null"`
	Rows      []LeaderboardEntry `gorm:"serializer:json;type:jsonb;not null"`
	UpdatedAt time.Time
}

func (GormLeaderboard) TableName() string { return "leaderboards" }

// GormSessionSummary 游戏记录模型
type GormSessionSummary struct {
	ID        uint           `gorm:"primaryKey"`
	MatchID   string         `gorm:"index;not null"`
	Data      SessionSummary `gorm:"serializer:json;type:jsonb;not null"`
	Duration  int            `gorm:"default:0"` // 游戏时长(秒)
	CreatedAt time.Time
}

func (GormSessionSummary) TableName() string { return "session_summaries" }

// GormWord is one dictionary entry.
type GormWord struct {
	ID       uint   `gorm:"primaryKey"`
	Word     string `gorm:"uniqueIndex;not null"`
	Category string `gorm:"index"`
	Level    string `gorm:"index"`
}

func (GormWord) TableName() string { return "words" }
