// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/hatgame/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return NewPostgreSQLFromDSN(connStr)
}

func NewPostgreSQLFromDSN(connStr string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS hat_matches (
            match_id VARCHAR(64) PRIMARY KEY,
            version INT NOT NULL,
            phase VARCHAR(32) NOT NULL,
            data JSONB NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS hat_player_aggregates (
            player_key VARCHAR(255) PRIMARY KEY,
            data JSONB NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS hat_leaderboards (
            metric VARCHAR(64) PRIMARY KEY,
            rows JSONB NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS hat_session_summaries (
            id SERIAL PRIMARY KEY,
            match_id VARCHAR(64) NOT NULL,
            data JSONB NOT NULL,
            duration INT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_hat_matches_phase ON hat_matches(phase);
        CREATE INDEX IF NOT EXISTS idx_hat_session_summaries_match_id ON hat_session_summaries(match_id);
    `)

	return err
}

// SaveMatch 保存对局快照
func (p *PostgreSQL) SaveMatch(ctx context.Context, snap *models.MatchSnapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	// 使用 UPSERT 操作 (PostgreSQL 9.5+)
	query := `
        INSERT INTO hat_matches (match_id, version, phase, data, updated_at)
        VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
        ON CONFLICT (match_id)
        DO UPDATE SET version = $2, phase = $3, data = $4, updated_at = CURRENT_TIMESTAMP
    `
	_, err = p.db.ExecContext(ctx, query, snap.ID, snap.SchemaVersion, snap.Phase, jsonData)
	return err
}

// LoadMatch 加载对局快照
func (p *PostgreSQL) LoadMatch(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	var jsonData []byte
	err := p.db.QueryRowContext(ctx, "SELECT data FROM hat_matches WHERE match_id = $1", matchID).Scan(&jsonData)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return decodeSnapshot(jsonData)
}

func (p *PostgreSQL) DeleteMatch(ctx context.Context, matchID string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM hat_matches WHERE match_id = $1", matchID)
	return err
}

func (p *PostgreSQL) ReadPlayerAggregate(ctx context.Context, key string) (*models.PlayerAggregate, error) {
	var jsonData []byte
	err := p.db.QueryRowContext(ctx, "SELECT data FROM hat_player_aggregates WHERE player_key = $1", key).Scan(&jsonData)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return decodeAggregate(jsonData)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeAggregate(ctx context.Context, db execer, agg *models.PlayerAggregate) error {
	jsonData, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO hat_player_aggregates (player_key, data, updated_at)
        VALUES ($1, $2, CURRENT_TIMESTAMP)
        ON CONFLICT (player_key)
        DO UPDATE SET data = $2, updated_at = CURRENT_TIMESTAMP
    `
	_, err = db.ExecContext(ctx, query, agg.PlayerKey, jsonData)
	return err
}

func (p *PostgreSQL) WritePlayerAggregate(ctx context.Context, agg *models.PlayerAggregate) error {
	return writeAggregate(ctx, p.db, agg)
}

// UpdatePlayerAggregate 在事务中以 SELECT ... FOR UPDATE 锁定玩家聚合
//
// A missing row is created first so that first-time writers of the same key
// also serialize on the row lock.
func (p *PostgreSQL) UpdatePlayerAggregate(ctx context.Context, key string, fn AggregateUpdateFunc) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	empty, err := json.Marshal(models.NewPlayerAggregate(key, ""))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO hat_player_aggregates (player_key, data, updated_at)
        VALUES ($1, $2, CURRENT_TIMESTAMP)
        ON CONFLICT (player_key) DO NOTHING
    `, key, empty)
	if err != nil {
		return err
	}

	var jsonData []byte
	err = tx.QueryRowContext(ctx, "SELECT data FROM hat_player_aggregates WHERE player_key = $1 FOR UPDATE", key).Scan(&jsonData)
	if err != nil {
		return err
	}
	agg, err := decodeAggregate(jsonData)
	if err != nil {
		return err
	}

	if err = fn(agg); err != nil {
		return err
	}
	agg.PlayerKey = key
	if err = writeAggregate(ctx, tx, agg); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgreSQL) ListPlayerAggregates(ctx context.Context) ([]*models.PlayerAggregate, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT data FROM hat_player_aggregates ORDER BY player_key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PlayerAggregate
	for rows.Next() {
		var jsonData []byte
		if err := rows.Scan(&jsonData); err != nil {
			return nil, err
		}
		agg, err := decodeAggregate(jsonData)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

func (p *PostgreSQL) ReadLeaderboard(ctx context.Context, metric string) ([]models.LeaderboardEntry, error) {
	var jsonData []byte
	err := p.db.QueryRowContext(ctx, "SELECT rows FROM hat_leaderboards WHERE metric = $1", metric).Scan(&jsonData)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(jsonData, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *PostgreSQL) WriteLeaderboard(ctx context.Context, metric string, entries []models.LeaderboardEntry) error {
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	jsonData, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO hat_leaderboards (metric, rows, updated_at)
        VALUES ($1, $2, CURRENT_TIMESTAMP)
        ON CONFLICT (metric)
        DO UPDATE SET rows = $2, updated_at = CURRENT_TIMESTAMP
    `
	_, err = p.db.ExecContext(ctx, query, metric, jsonData)
	return err
}

// SaveSessionSummary 保存对局总结
func (p *PostgreSQL) SaveSessionSummary(ctx context.Context, summary *models.SessionSummary) error {
	jsonData, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		"INSERT INTO hat_session_summaries (match_id, data, duration) VALUES ($1, $2, $3)",
		summary.MatchID, jsonData, int(summary.MatchDurationSeconds),
	)
	return err
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

func sqlNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	return err
}
