package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ascendly-scoring/internal/domain"
)

type boardEntry struct {
	score       int
	lastUpdated time.Time
}

// Leaderboard is an in-memory implementation of app.Leaderboard.
type Leaderboard struct {
	now     func() time.Time
	mu      sync.RWMutex
	classes map[string]map[string]*boardEntry
}

func NewLeaderboard() *Leaderboard {
	return NewLeaderboardWithClock(time.Now)
}

// NewLeaderboardWithClock allows deterministic tie-breaks in tests.
func NewLeaderboardWithClock(now func() time.Time) *Leaderboard {
	return &Leaderboard{
		now:     now,
		classes: make(map[string]map[string]*boardEntry),
	}
}

func (l *Leaderboard) SetScore(_ context.Context, class, accountID string, score int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, ok := l.classes[class]
	if !ok {
		entries = make(map[string]*boardEntry)
		l.classes[class] = entries
	}
	if e, ok := entries[accountID]; ok && e.score == score {
		return nil
	}
	entries[accountID] = &boardEntry{score: score, lastUpdated: l.now()}
	return nil
}

// Top orders by score desc, then by who reached the score earlier, then by ID.
func (l *Leaderboard) Top(_ context.Context, class string, limit int) (domain.Leaderboard, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.classes[class]
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ei, ej := entries[ids[i]], entries[ids[j]]
		if ei.score != ej.score {
			return ei.score > ej.score
		}
		if !ei.lastUpdated.Equal(ej.lastUpdated) {
			return ei.lastUpdated.Before(ej.lastUpdated)
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]domain.LeaderboardEntry, len(ids))
	for i, id := range ids {
		out[i] = domain.LeaderboardEntry{AccountID: id, Score: entries[id].score, Rank: i + 1}
	}
	return domain.Leaderboard{Class: class, Entries: out, UpdatedAt: l.now()}, nil
}
