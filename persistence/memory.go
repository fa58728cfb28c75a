// persistence/memory.go
package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/wfunc/hatgame/models"
)

// MemoryStore keeps everything in process memory. Values are stored as
// JSON so callers never share maps with the store.
type MemoryStore struct {
	mu           sync.Mutex
	matches      map[string][]byte
	aggregates   map[string][]byte
	leaderboards map[string][]byte
	sessions     []models.SessionSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches:      make(map[string][]byte),
		aggregates:   make(map[string][]byte),
		leaderboards: make(map[string][]byte),
	}
}

func (m *MemoryStore) SaveMatch(ctx context.Context, snap *models.MatchSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[snap.ID] = data
	return nil
}

func (m *MemoryStore) LoadMatch(ctx context.Context, matchID string) (*models.MatchSnapshot, error) {
	m.mu.Lock()
	data, ok := m.matches[matchID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	return decodeSnapshot(data)
}

func (m *MemoryStore) DeleteMatch(ctx context.Context, matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, matchID)
	return nil
}

func (m *MemoryStore) ReadPlayerAggregate(ctx context.Context, key string) (*models.PlayerAggregate, error) {
	m.mu.Lock()
	data, ok := m.aggregates[key]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	return decodeAggregate(data)
}

func (m *MemoryStore) WritePlayerAggregate(ctx context.Context, agg *models.PlayerAggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregates[agg.PlayerKey] = data
	return nil
}

// UpdatePlayerAggregate holds the store lock for the whole read-modify-write.
func (m *MemoryStore) UpdatePlayerAggregate(ctx context.Context, key string, fn AggregateUpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := models.NewPlayerAggregate(key, "")
	if data, ok := m.aggregates[key]; ok {
		var err error
		if agg, err = decodeAggregate(data); err != nil {
			return err
		}
	}
	if err := fn(agg); err != nil {
		return err
	}
	agg.PlayerKey = key
	data, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	m.aggregates[key] = data
	return nil
}

func (m *MemoryStore) ListPlayerAggregates(ctx context.Context) ([]*models.PlayerAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.aggregates))
	for k := range m.aggregates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*models.PlayerAggregate, 0, len(keys))
	for _, k := range keys {
		agg, err := decodeAggregate(m.aggregates[k])
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func (m *MemoryStore) ReadLeaderboard(ctx context.Context, metric string) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	data, ok := m.leaderboards[metric]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	var rows []models.LeaderboardEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *MemoryStore) WriteLeaderboard(ctx context.Context, metric string, rows []models.LeaderboardEntry) error {
	if rows == nil {
		rows = []models.LeaderboardEntry{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaderboards[metric] = data
	return nil
}

func (m *MemoryStore) SaveSessionSummary(ctx context.Context, summary *models.SessionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, *summary)
	return nil
}

// SessionSummaries returns every saved summary in save order.
func (m *MemoryStore) SessionSummaries() []models.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SessionSummary(nil), m.sessions...)
}

func (m *MemoryStore) Close() error { return nil }

func decodeSnapshot(data []byte) (*models.MatchSnapshot, error) {
	var snap models.MatchSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if err := snap.CheckVersion(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func decodeAggregate(data []byte) (*models.PlayerAggregate, error) {
	var agg models.PlayerAggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, err
	}
	agg.EnsureMaps()
	return &agg, nil
}
