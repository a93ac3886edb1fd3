package redis

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"ascendly-scoring/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Leaderboard keeps one sorted set per class plus a hash of the time each
// member last changed score, used to break ties in favour of whoever got there first.
//
//	ZADD leaderboard:{class} {score} {accountID}
//	HSET leaderboard:{class}:updated {accountID} {unixNano}
type Leaderboard struct {
	client *redis.Client
	now    func() time.Time
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return NewLeaderboardWithClock(client, time.Now)
}

func NewLeaderboardWithClock(client *redis.Client, now func() time.Time) *Leaderboard {
	return &Leaderboard{client: client, now: now}
}

func (l *Leaderboard) SetScore(ctx context.Context, class, accountID string, score int) error {
	key := scoreKey(class)
	current, err := l.client.ZScore(ctx, key, accountID).Result()
	switch {
	case err == nil && int(current) == score:
		return nil
	case err != nil && !errors.Is(err, redis.Nil):
		return err
	}

	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: accountID})
		pipe.HSet(ctx, updatedKey(class), accountID, l.now().UnixNano())
		return nil
	})
	return err
}

func (l *Leaderboard) Top(ctx context.Context, class string, limit int) (domain.Leaderboard, error) {
	key := scoreKey(class)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	results, err := l.client.ZRevRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return domain.Leaderboard{}, err
	}

	// Members tied with the last row may sit outside the range; pull them in
	// so the time-based tie-break sees every candidate.
	if limit > 0 && len(results) == limit {
		edge := strconv.FormatFloat(results[len(results)-1].Score, 'f', -1, 64)
		ties, err := l.client.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: edge, Max: edge}).Result()
		if err != nil {
			return domain.Leaderboard{}, err
		}
		seen := make(map[string]bool, len(results))
		for _, z := range results {
			seen[z.Member.(string)] = true
		}
		for _, z := range ties {
			if !seen[z.Member.(string)] {
				results = append(results, z)
			}
		}
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	members := make([]string, len(results))
	for i, z := range results {
		members[i] = z.Member.(string)
		entries[i] = domain.LeaderboardEntry{AccountID: members[i], Score: int(z.Score)}
	}

	updated := make(map[string]int64, len(members))
	if len(members) > 0 {
		vals, err := l.client.HMGet(ctx, updatedKey(class), members...).Result()
		if err != nil {
			return domain.Leaderboard{}, err
		}
		for i, v := range vals {
			if s, ok := v.(string); ok {
				updated[members[i]], _ = strconv.ParseInt(s, 10, 64)
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ei, ej := entries[i], entries[j]
		if ei.Score != ej.Score {
			return ei.Score > ej.Score
		}
		if ui, uj := updated[ei.AccountID], updated[ej.AccountID]; ui != uj {
			return ui < uj
		}
		return ei.AccountID < ej.AccountID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return domain.Leaderboard{Class: class, Entries: entries, UpdatedAt: l.now()}, nil
}

func scoreKey(class string) string {
	return "leaderboard:" + class
}

func updatedKey(class string) string {
	return "leaderboard:" + class + ":updated"
}
