package words

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/wfunc/hatgame/models"
)

// MaxWords caps a single sample.
const MaxWords = 200

// Entry is one dictionary word with optional tags.
type Entry struct {
	Word     string
	Category string
	Level    string
}

// Source samples words for a match.
type Source interface {
	// SelectWords returns up to count distinct words matching filters. When
	// fewer are available it returns all of them together with an
	// *InsufficientWordsError.
	SelectWords(ctx context.Context, count int, filters models.WordFilters) ([]string, error)
}

// InsufficientWordsError reports a sample shorter than requested.
type InsufficientWordsError struct {
	Requested int
	Available int
}

func (e *InsufficientWordsError) Error() string {
	return fmt.Sprintf("requested %d words, only %d available", e.Requested, e.Available)
}

// ClampCount applies MaxWords.
func ClampCount(count int) int {
	if count > MaxWords {
		return MaxWords
	}
	return count
}

// Filter returns the entries matching filters, case-insensitively. An empty
// result falls back to the whole dictionary.
func Filter(entries []Entry, filters models.WordFilters) []Entry {
	categories := lowerSet(filters.Categories)
	levels := lowerSet(filters.Levels)
	if len(categories) == 0 && len(levels) == 0 {
		return entries
	}

	var pool []Entry
	for _, e := range entries {
		if len(categories) > 0 && !categories[strings.ToLower(e.Category)] {
			continue
		}
		if len(levels) > 0 && !levels[strings.ToLower(e.Level)] {
			continue
		}
		pool = append(pool, e)
	}
	if len(pool) == 0 {
		return entries
	}
	return pool
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}

// MemorySource samples from a fixed dictionary.
type MemorySource struct {
	entries []Entry

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

func NewMemorySource(entries []Entry) *MemorySource {
	return &MemorySource{entries: dedupe(entries), rng: rand.New(rand.NewSource(rand.Int63()))}
}

// NewMemorySourceWords is NewMemorySource for untagged words.
func NewMemorySourceWords(words ...string) *MemorySource {
	entries := make([]Entry, len(words))
	for i, w := range words {
		entries[i] = Entry{Word: w}
	}
	return NewMemorySource(entries)
}

func (s *MemorySource) Len() int { return len(s.entries) }

func (s *MemorySource) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

func (s *MemorySource) SelectWords(ctx context.Context, count int, filters models.WordFilters) ([]string, error) {
	count = ClampCount(count)
	pool := Filter(s.entries, filters)
	words := make([]string, len(pool))
	for i, e := range pool {
		words[i] = e.Word
	}
	if count > len(words) {
		return words, &InsufficientWordsError{Requested: count, Available: len(words)}
	}
	s.mu.Lock()
	s.rng.Shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })
	s.mu.Unlock()
	return words[:count], nil
}

func dedupe(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Word == "" || seen[e.Word] {
			continue
		}
		seen[e.Word] = true
		out = append(out, e)
	}
	return out
}
