package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ascendly-scoring/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store is the remote, durable implementation of app.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var (
		acct                  domain.Account
		role                  string
		classes, scores, days []byte
		lastDecay             *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT id, role, classes, scores, streak, last_quiz_date, last_decay_at, daily_points
		FROM accounts WHERE id=$1`, accountID).
		Scan(&acct.ID, &role, &classes, &scores, &acct.Streak, &acct.LastQuizDate, &lastDecay, &days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	acct.Role = domain.Role(role)
	if err := unmarshalAll(classes, &acct.Classes, scores, &acct.Scores, days, &acct.DailyPoints); err != nil {
		return domain.Account{}, fmt.Errorf("decode account: %w", err)
	}
	if lastDecay != nil {
		acct.LastDecayTimestamp = *lastDecay
	}
	return acct, nil
}

func (s *Store) UpdateAccountScoreAndDailyPoints(ctx context.Context, acct domain.Account) error {
	classes, err := json.Marshal(orEmpty(acct.Classes))
	if err != nil {
		return err
	}
	scores, err := json.Marshal(orEmptyMap(acct.Scores))
	if err != nil {
		return err
	}
	days, err := json.Marshal(orEmptyMap(acct.DailyPoints))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO accounts (id, role, classes, scores, streak, last_quiz_date, last_decay_at, daily_points)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8::jsonb)
		ON CONFLICT (id) DO UPDATE SET role=EXCLUDED.role, classes=EXCLUDED.classes, scores=EXCLUDED.scores,
		streak=EXCLUDED.streak, last_quiz_date=EXCLUDED.last_quiz_date, last_decay_at=EXCLUDED.last_decay_at,
		daily_points=EXCLUDED.daily_points`,
		acct.ID, string(acct.Role), string(classes), string(scores), acct.Streak, acct.LastQuizDate, nullTime(acct.LastDecayTimestamp), string(days))
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (s *Store) GetAttemptRecord(ctx context.Context, accountID, questionID string) (domain.AttemptRecord, error) {
	rec := domain.AttemptRecord{AccountID: accountID, QuestionID: questionID}
	var (
		stamps []byte
		last   *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT attempts, correct_attempts, streak, correct_timestamps, last_attempt_at
		FROM attempt_records WHERE account_id=$1 AND question_id=$2`, accountID, questionID).
		Scan(&rec.Attempts, &rec.CorrectAttempts, &rec.Streak, &stamps, &last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AttemptRecord{}, domain.ErrAttemptNotFound
		}
		return domain.AttemptRecord{}, fmt.Errorf("get attempt record: %w", err)
	}
	if err := json.Unmarshal(stamps, &rec.CorrectTimestamps); err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("decode attempt record: %w", err)
	}
	if last != nil {
		rec.LastAttemptTimestamp = *last
	}
	return rec, nil
}

func (s *Store) UpsertAttemptRecord(ctx context.Context, rec domain.AttemptRecord) error {
	stamps := rec.CorrectTimestamps
	if stamps == nil {
		stamps = []time.Time{}
	}
	raw, err := json.Marshal(stamps)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO attempt_records (account_id, question_id, attempts, correct_attempts, streak, correct_timestamps, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		ON CONFLICT (account_id, question_id) DO UPDATE SET attempts=EXCLUDED.attempts, correct_attempts=EXCLUDED.correct_attempts,
		streak=EXCLUDED.streak, correct_timestamps=EXCLUDED.correct_timestamps, last_attempt_at=EXCLUDED.last_attempt_at`,
		rec.AccountID, rec.QuestionID, rec.Attempts, rec.CorrectAttempts, rec.Streak, string(raw), nullTime(rec.LastAttemptTimestamp))
	if err != nil {
		return fmt.Errorf("upsert attempt record: %w", err)
	}
	return nil
}

func (s *Store) GetQuizProgress(ctx context.Context, key domain.ProgressKey) (domain.QuizProgress, error) {
	p := domain.QuizProgress{ProgressKey: key}
	var (
		state    string
		answered []byte
		updated  *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT state, current_index, correct_answers, answered, points_earned, session_correct, session_total, committed_points, updated_at
		FROM quiz_progress WHERE account_id=$1 AND class=$2 AND unit=$3`, key.AccountID, key.Class, key.Unit).
		Scan(&state, &p.CurrentIndex, &p.CorrectAnswers, &answered, &p.PointsEarned, &p.SessionCorrectAnswers, &p.SessionTotalAnswered, &p.CommittedPoints, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.QuizProgress{}, domain.ErrProgressNotFound
		}
		return domain.QuizProgress{}, fmt.Errorf("get quiz progress: %w", err)
	}
	p.State = domain.ProgressState(state)

	var idx []int
	if err := json.Unmarshal(answered, &idx); err != nil {
		return domain.QuizProgress{}, fmt.Errorf("decode quiz progress: %w", err)
	}
	p.AnsweredQuestions = make(map[int]bool, len(idx))
	for _, i := range idx {
		p.AnsweredQuestions[i] = true
	}
	if updated != nil {
		p.UpdatedAt = *updated
	}
	return p, nil
}

func (s *Store) UpsertQuizProgress(ctx context.Context, p domain.QuizProgress) error {
	answered, err := json.Marshal(p.Answered())
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quiz_progress (account_id, class, unit, state, current_index, correct_answers, answered, points_earned, session_correct, session_total, committed_points, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, class, unit) DO UPDATE SET state=EXCLUDED.state, current_index=EXCLUDED.current_index,
		correct_answers=EXCLUDED.correct_answers, answered=EXCLUDED.answered, points_earned=EXCLUDED.points_earned,
		session_correct=EXCLUDED.session_correct, session_total=EXCLUDED.session_total, committed_points=EXCLUDED.committed_points, updated_at=EXCLUDED.updated_at`,
		p.AccountID, p.Class, p.Unit, string(p.State), p.CurrentIndex, p.CorrectAnswers, string(answered),
		p.PointsEarned, p.SessionCorrectAnswers, p.SessionTotalAnswered, p.CommittedPoints, nullTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert quiz progress: %w", err)
	}
	return nil
}

func (s *Store) DeleteQuizProgress(ctx context.Context, key domain.ProgressKey) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM quiz_progress WHERE account_id=$1 AND class=$2 AND unit=$3`, key.AccountID, key.Class, key.Unit)
	if err != nil {
		return fmt.Errorf("delete quiz progress: %w", err)
	}
	return nil
}

func (s *Store) AppendQuizResult(ctx context.Context, r domain.QuizResult) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO quiz_results (id, account_id, class, unit, score, total_questions, points_earned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
		r.ID, r.AccountID, r.Class, r.Unit, r.Score, r.TotalQuestions, r.PointsEarned, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("append quiz result: %w", err)
	}
	return nil
}

func (s *Store) ListQuizResults(ctx context.Context, accountID string) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, class, unit, score, total_questions, points_earned, created_at
		FROM quiz_results WHERE account_id=$1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizResult
	for rows.Next() {
		r := domain.QuizResult{AccountID: accountID}
		if err := rows.Scan(&r.ID, &r.Class, &r.Unit, &r.Score, &r.TotalQuestions, &r.PointsEarned, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// unmarshalAll decodes (raw, dst) pairs.
func unmarshalAll(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		raw, _ := pairs[i].([]byte)
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyMap(v map[string]int) map[string]int {
	if v == nil {
		return map[string]int{}
	}
	return v
}
