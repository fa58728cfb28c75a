package words

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/hatgame/models"
)

// DBSource samples words from the words table.
type DBSource struct {
	db *gorm.DB
}

func NewDBSource(db *gorm.DB) *DBSource {
	return &DBSource{db: db}
}

func (s *DBSource) query(ctx context.Context, filters models.WordFilters) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.GormWord{})
	if cats := lowerList(filters.Categories); len(cats) > 0 {
		q = q.Where("LOWER(category) IN ?", cats)
	}
	if levels := lowerList(filters.Levels); len(levels) > 0 {
		q = q.Where("LOWER(level) IN ?", levels)
	}
	return q
}

func (s *DBSource) SelectWords(ctx context.Context, count int, filters models.WordFilters) ([]string, error) {
	count = ClampCount(count)

	var total int64
	if err := s.query(ctx, filters).Count(&total).Error; err != nil {
		return nil, err
	}
	if total == 0 {
		filters = models.WordFilters{}
		if err := s.query(ctx, filters).Count(&total).Error; err != nil {
			return nil, err
		}
	}

	var words []string
	err := s.query(ctx, filters).
		Order("RANDOM()").
		Limit(count).
		Pluck("word", &words).Error
	if err != nil {
		return nil, err
	}
	if int(total) < count {
		return words, &InsufficientWordsError{Requested: count, Available: len(words)}
	}
	return words, nil
}

// Import inserts entries, skipping words already present.
func (s *DBSource) Import(ctx context.Context, entries []Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([]models.GormWord, len(entries))
	for i, e := range entries {
		rows[i] = models.GormWord{Word: e.Word, Category: e.Category, Level: normalizeLevel(e.Level)}
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "word"}}, DoNothing: true}).
		CreateInBatches(rows, 500)
	return res.RowsAffected, res.Error
}

func lowerList(values []string) []string {
	var out []string
	for v := range lowerSet(values) {
		out = append(out, v)
	}
	return out
}

// normalizeLevel matches the level casing used by ParseDictionary.
func normalizeLevel(level string) string {
	return strings.ToLower(strings.TrimSpace(level))
}
