// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/hatgame/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return NewGormPostgreSQLFromDSN(dsn)
}

// NewGormPostgreSQLFromDSN opens, tunes and migrates a connection.
func NewGormPostgreSQLFromDSN(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormMatchSnapshot{},
		&models.GormPlayerAggregate{},
		&models.GormLeaderboard{},
		&models.GormSessionSummary{},
		&models.GormWord{},
	)
}

// DB exposes the connection for components sharing it, such as the
// database word source.
func (p *GormPostgreSQL) DB() *gorm.DB {
	return p.db
}

// SaveMatch upserts the latest snapshot of a match.
func (p *GormPostgreSQL) SaveMatch(ctx context.Context, snap *models.MatchSnapshot) error {
	row := models.GormMatchSnapshot{
		MatchID: snap.ID,
		Version: snap.SchemaVersion,
		Phase:   snap.Phase,
		Data:    *snap,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "phase", "data", "updated_at"}),
	}).Create(&row).Error
}

func (p *GormPostgreSQL) LoadMatch(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	var row models.GormMatchSnapshot
	if err := p.db.WithContext(ctx).Where("match_id = ?", matchID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	if err := row.Data.CheckVersion(); err != nil {
		return nil, err
	}
	return &row.Data, nil
}

func (p *GormPostgreSQL) DeleteMatch(ctx context.Context, matchID string) error {
	return p.db.WithContext(ctx).Where("match_id = ?", matchID).Delete(&models.GormMatchSnapshot{}).Error
}

func (p *GormPostgreSQL) ReadPlayerAggregate(ctx context.Context, key string) (*models.PlayerAggregate, error) {
	var row models.GormPlayerAggregate
	if err := p.db.WithContext(ctx).Where("player_key = ?", key).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	row.Data.EnsureMaps()
	return &row.Data, nil
}

func (p *GormPostgreSQL) WritePlayerAggregate(ctx context.Context, agg *models.PlayerAggregate) error {
	return upsertAggregate(p.db.WithContext(ctx), agg)
}

func upsertAggregate(tx *gorm.DB, agg *models.PlayerAggregate) error {
	row := models.GormPlayerAggregate{PlayerKey: agg.PlayerKey, Data: *agg}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
}

// UpdatePlayerAggregate locks the aggregate row for the duration of fn. A
// missing row is inserted first, so first-time writers of the same key
// block on the row lock like everyone else.
func (p *GormPostgreSQL) UpdatePlayerAggregate(ctx context.Context, key string, fn AggregateUpdateFunc) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.GormPlayerAggregate{PlayerKey: key, Data: *models.NewPlayerAggregate(key, "")}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_key"}},
			DoNothing: true,
		}).Create(&seed).Error
		if err != nil {
			return err
		}

		var row models.GormPlayerAggregate
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("player_key = ?", key).
			First(&row).Error
		if err != nil {
			return err
		}
		agg := &row.Data
		agg.EnsureMaps()
		if err := fn(agg); err != nil {
			return err
		}
		agg.PlayerKey = key
		return upsertAggregate(tx, agg)
	})
}

func (p *GormPostgreSQL) ListPlayerAggregates(ctx context.Context) ([]*models.PlayerAggregate, error) {
	var rows []models.GormPlayerAggregate
	if err := p.db.WithContext(ctx).Order("player_key").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.PlayerAggregate, len(rows))
	for i := range rows {
		rows[i].Data.EnsureMaps()
		out[i] = &rows[i].Data
	}
	return out, nil
}

func (p *GormPostgreSQL) ReadLeaderboard(ctx context.Context, metric string) ([]models.LeaderboardEntry, error) {
	var row models.GormLeaderboard
	if err := p.db.WithContext(ctx).Where("metric = ?", metric).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.Rows, nil
}

func (p *GormPostgreSQL) WriteLeaderboard(ctx context.Context, metric string, rows []models.LeaderboardEntry) error {
	if rows == nil {
		rows = []models.LeaderboardEntry{}
	}
	row := models.GormLeaderboard{Metric: metric, Rows: rows}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "metric"}},
		DoUpdates: clause.AssignmentColumns([]string{"rows", "updated_at"}),
	}).Create(&row).Error
}

func (p *GormPostgreSQL) SaveSessionSummary(ctx context.Context, summary *models.SessionSummary) error {
	row := models.GormSessionSummary{
		MatchID:  summary.MatchID,
		Data:     *summary,
		Duration: int(summary.MatchDurationSeconds),
	}
	return p.db.WithContext(ctx).Create(&row).Error
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
