// persistence/redis.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/hatgame/models"
)

const matchKeyPrefix = "hat:match:"

// RedisMatchRepository keeps live match snapshots in Redis with a TTL, so
// abandoned matches expire on their own.
type RedisMatchRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisMatchRepository(client *redis.Client, ttl time.Duration) *RedisMatchRepository {
	return &RedisMatchRepository{client: client, ttl: ttl}
}

func matchKey(matchID string) string {
	return matchKeyPrefix + matchID
}

func (r *RedisMatchRepository) SaveMatch(ctx context.Context, snap *models.MatchSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", snap.ID, err)
	}
	return r.client.Set(ctx, matchKey(snap.ID), data, r.ttl).Err()
}

func (r *RedisMatchRepository) LoadMatch(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	data, err := r.client.Get(ctx, matchKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func (r *RedisMatchRepository) DeleteMatch(ctx context.Context, matchID string) error {
	return r.client.Del(ctx, matchKey(matchID)).Err()
}

func (r *RedisMatchRepository) Close() error {
	return r.client.Close()
}
