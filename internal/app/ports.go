package app

import (
	"context"

	"ascendly-scoring/internal/domain"
)

// AttemptStore persists per-question attempt history.
type AttemptStore interface {
	GetAttemptRecord(ctx context.Context, accountID, questionID string) (domain.AttemptRecord, error)
	UpsertAttemptRecord(ctx context.Context, rec domain.AttemptRecord) error
}

// ProgressStore persists resumable quiz state.
type ProgressStore interface {
	GetQuizProgress(ctx context.Context, key domain.ProgressKey) (domain.QuizProgress, error)
	UpsertQuizProgress(ctx context.Context, p domain.QuizProgress) error
	DeleteQuizProgress(ctx context.Context, key domain.ProgressKey) error
}

// AccountStore persists account scores, streaks and day buckets.
type AccountStore interface {
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
	UpdateAccountScoreAndDailyPoints(ctx context.Context, acct domain.Account) error
}

// ResultStore keeps the append-only session history.
type ResultStore interface {
	AppendQuizResult(ctx context.Context, r domain.QuizResult) error
	ListQuizResults(ctx context.Context, accountID string) ([]domain.QuizResult, error)
}

// Store abstracts the persistence provider (in-memory, SQLite, Postgres, or a failover pair).
type Store interface {
	AttemptStore
	ProgressStore
	AccountStore
	ResultStore
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Leaderboard is a ranked projection of per-class account scores.
type Leaderboard interface {
	SetScore(ctx context.Context, class, accountID string, score int) error
	Top(ctx context.Context, class string, limit int) (domain.Leaderboard, error)
}
