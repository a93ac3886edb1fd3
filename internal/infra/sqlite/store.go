// Package sqlite is the local, lower-durability tier of the score store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ascendly-scoring/internal/domain"
	_ "modernc.org/sqlite" // driver: sqlite
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  role TEXT NOT NULL DEFAULT 'student',
  classes_json TEXT NOT NULL DEFAULT '[]',
  scores_json TEXT NOT NULL DEFAULT '{}',
  streak INTEGER NOT NULL DEFAULT 0,
  last_quiz_date TEXT NOT NULL DEFAULT '',
  last_decay_at TEXT NOT NULL DEFAULT '',
  daily_points_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS attempt_records (
  account_id TEXT NOT NULL,
  question_id TEXT NOT NULL,
  attempts INTEGER NOT NULL,
  correct_attempts INTEGER NOT NULL,
  streak INTEGER NOT NULL,
  correct_timestamps_json TEXT NOT NULL DEFAULT '[]',
  last_attempt_at TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (account_id, question_id)
);

CREATE TABLE IF NOT EXISTS quiz_progress (
  account_id TEXT NOT NULL,
  class TEXT NOT NULL,
  unit TEXT NOT NULL,
  state TEXT NOT NULL,
  current_index INTEGER NOT NULL,
  correct_answers INTEGER NOT NULL,
  answered_json TEXT NOT NULL DEFAULT '[]',
  points_earned INTEGER NOT NULL,
  session_correct INTEGER NOT NULL,
  session_total INTEGER NOT NULL,
  committed_points INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (account_id, class, unit)
);

CREATE TABLE IF NOT EXISTS quiz_results (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  class TEXT NOT NULL,
  unit TEXT NOT NULL,
  score INTEGER NOT NULL,
  total_questions INTEGER NOT NULL,
  points_earned INTEGER NOT NULL,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS quiz_results_account ON quiz_results (account_id, created_at);
`

// Store implements app.Store on a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite file at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite from reporting SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, role, classes_json, scores_json, streak, last_quiz_date, last_decay_at, daily_points_json
		FROM accounts WHERE id = ?`, accountID)

	var (
		acct                  domain.Account
		role, lastDecay       string
		classes, scores, days string
	)
	if err := row.Scan(&acct.ID, &role, &classes, &scores, &acct.Streak, &acct.LastQuizDate, &lastDecay, &days); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	acct.Role = domain.Role(role)
	if err := decodeAll(
		field{classes, &acct.Classes},
		field{scores, &acct.Scores},
		field{days, &acct.DailyPoints},
	); err != nil {
		return domain.Account{}, fmt.Errorf("decode account: %w", err)
	}
	acct.LastDecayTimestamp = parseTime(lastDecay)
	return acct, nil
}

// UpdateAccountScoreAndDailyPoints upserts so the local tier can take writes for
// accounts it has not mirrored yet.
func (s *Store) UpdateAccountScoreAndDailyPoints(ctx context.Context, acct domain.Account) error {
	classes, scores, days, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO accounts (id, role, classes_json, scores_json, streak, last_quiz_date, last_decay_at, daily_points_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET role=excluded.role, classes_json=excluded.classes_json, scores_json=excluded.scores_json,
		streak=excluded.streak, last_quiz_date=excluded.last_quiz_date, last_decay_at=excluded.last_decay_at,
		daily_points_json=excluded.daily_points_json`,
		acct.ID, string(acct.Role), classes, scores, acct.Streak, acct.LastQuizDate, formatTime(acct.LastDecayTimestamp), days)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (s *Store) GetAttemptRecord(ctx context.Context, accountID, questionID string) (domain.AttemptRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT attempts, correct_attempts, streak, correct_timestamps_json, last_attempt_at
		FROM attempt_records WHERE account_id = ? AND question_id = ?`, accountID, questionID)

	rec := domain.AttemptRecord{AccountID: accountID, QuestionID: questionID}
	var stamps, last string
	if err := row.Scan(&rec.Attempts, &rec.CorrectAttempts, &rec.Streak, &stamps, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AttemptRecord{}, domain.ErrAttemptNotFound
		}
		return domain.AttemptRecord{}, fmt.Errorf("get attempt record: %w", err)
	}
	if err := json.Unmarshal([]byte(stamps), &rec.CorrectTimestamps); err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("decode attempt record: %w", err)
	}
	rec.LastAttemptTimestamp = parseTime(last)
	return rec, nil
}

func (s *Store) UpsertAttemptRecord(ctx context.Context, rec domain.AttemptRecord) error {
	stamps, err := json.Marshal(nonNilTimes(rec.CorrectTimestamps))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempt_records (account_id, question_id, attempts, correct_attempts, streak, correct_timestamps_json, last_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, question_id) DO UPDATE SET attempts=excluded.attempts, correct_attempts=excluded.correct_attempts,
		streak=excluded.streak, correct_timestamps_json=excluded.correct_timestamps_json, last_attempt_at=excluded.last_attempt_at`,
		rec.AccountID, rec.QuestionID, rec.Attempts, rec.CorrectAttempts, rec.Streak, string(stamps), formatTime(rec.LastAttemptTimestamp))
	if err != nil {
		return fmt.Errorf("upsert attempt record: %w", err)
	}
	return nil
}

func (s *Store) GetQuizProgress(ctx context.Context, key domain.ProgressKey) (domain.QuizProgress, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state, current_index, correct_answers, answered_json, points_earned, session_correct, session_total, committed_points, updated_at
		FROM quiz_progress WHERE account_id = ? AND class = ? AND unit = ?`, key.AccountID, key.Class, key.Unit)

	p := domain.QuizProgress{ProgressKey: key}
	var state, answered, updated string
	if err := row.Scan(&state, &p.CurrentIndex, &p.CorrectAnswers, &answered, &p.PointsEarned, &p.SessionCorrectAnswers, &p.SessionTotalAnswered, &p.CommittedPoints, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QuizProgress{}, domain.ErrProgressNotFound
		}
		return domain.QuizProgress{}, fmt.Errorf("get quiz progress: %w", err)
	}
	p.State = domain.ProgressState(state)
	set, err := decodeAnswered(answered)
	if err != nil {
		return domain.QuizProgress{}, fmt.Errorf("decode quiz progress: %w", err)
	}
	p.AnsweredQuestions = set
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func (s *Store) UpsertQuizProgress(ctx context.Context, p domain.QuizProgress) error {
	answered, err := json.Marshal(p.Answered())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quiz_progress (account_id, class, unit, state, current_index, correct_answers, answered_json, points_earned, session_correct, session_total, committed_points, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, class, unit) DO UPDATE SET state=excluded.state, current_index=excluded.current_index,
		correct_answers=excluded.correct_answers, answered_json=excluded.answered_json, points_earned=excluded.points_earned,
		session_correct=excluded.session_correct, session_total=excluded.session_total, committed_points=excluded.committed_points, updated_at=excluded.updated_at`,
		p.AccountID, p.Class, p.Unit, string(p.State), p.CurrentIndex, p.CorrectAnswers, string(answered),
		p.PointsEarned, p.SessionCorrectAnswers, p.SessionTotalAnswered, p.CommittedPoints, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert quiz progress: %w", err)
	}
	return nil
}

func (s *Store) DeleteQuizProgress(ctx context.Context, key domain.ProgressKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quiz_progress WHERE account_id = ? AND class = ? AND unit = ?`, key.AccountID, key.Class, key.Unit)
	if err != nil {
		return fmt.Errorf("delete quiz progress: %w", err)
	}
	return nil
}

// AppendQuizResult ignores a repeated ID so mirrored writes stay append-only.
func (s *Store) AppendQuizResult(ctx context.Context, r domain.QuizResult) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO quiz_results (id, account_id, class, unit, score, total_questions, points_earned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		r.ID, r.AccountID, r.Class, r.Unit, r.Score, r.TotalQuestions, r.PointsEarned, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("append quiz result: %w", err)
	}
	return nil
}

func (s *Store) ListQuizResults(ctx context.Context, accountID string) ([]domain.QuizResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, class, unit, score, total_questions, points_earned, created_at
		FROM quiz_results WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizResult
	for rows.Next() {
		r := domain.QuizResult{AccountID: accountID}
		var created string
		if err := rows.Scan(&r.ID, &r.Class, &r.Unit, &r.Score, &r.TotalQuestions, &r.PointsEarned, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

type field struct {
	raw string
	dst any
}

func decodeAll(fields ...field) error {
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return err
		}
	}
	return nil
}

func encodeAccount(acct domain.Account) (classes, scores, days string, err error) {
	c, err := json.Marshal(nonNilStrings(acct.Classes))
	if err != nil {
		return "", "", "", err
	}
	sc, err := json.Marshal(nonNilMap(acct.Scores))
	if err != nil {
		return "", "", "", err
	}
	d, err := json.Marshal(nonNilMap(acct.DailyPoints))
	if err != nil {
		return "", "", "", err
	}
	return string(c), string(sc), string(d), nil
}

func decodeAnswered(raw string) (map[int]bool, error) {
	var idx []int
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &idx); err != nil {
			return nil, err
		}
	}
	set := make(map[int]bool, len(idx))
	for _, i := range idx {
		set[i] = true
	}
	return set, nil
}

// timeLayout is fixed-width RFC 3339 so stored text sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// The empty string is the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilTimes(v []time.Time) []time.Time {
	if v == nil {
		return []time.Time{}
	}
	return v
}

func nonNilMap(v map[string]int) map[string]int {
	if v == nil {
		return map[string]int{}
	}
	return v
}
