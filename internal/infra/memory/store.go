package memory

import (
	"context"
	"sort"
	"sync"

	"ascendly-scoring/internal/domain"
)

type attemptKey struct {
	accountID  string
	questionID string
}

// Store is an in-memory implementation of app.Store. Values are copied on the
// way in and out so callers never alias stored maps.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	attempts map[attemptKey]domain.AttemptRecord
	progress map[domain.ProgressKey]domain.QuizProgress
	results  map[string][]domain.QuizResult
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]domain.Account),
		attempts: make(map[attemptKey]domain.AttemptRecord),
		progress: make(map[domain.ProgressKey]domain.QuizProgress),
		results:  make(map[string][]domain.QuizResult),
	}
}

// PutAccount seeds or replaces an account.
func (s *Store) PutAccount(acct domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct.Clone()
}

func (s *Store) GetAccount(_ context.Context, accountID string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (s *Store) UpdateAccountScoreAndDailyPoints(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct.Clone()
	return nil
}

func (s *Store) GetAttemptRecord(_ context.Context, accountID, questionID string) (domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.attempts[attemptKey{accountID, questionID}]
	if !ok {
		return domain.AttemptRecord{}, domain.ErrAttemptNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) UpsertAttemptRecord(_ context.Context, rec domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attemptKey{rec.AccountID, rec.QuestionID}] = rec.Clone()
	return nil
}

func (s *Store) GetQuizProgress(_ context.Context, key domain.ProgressKey) (domain.QuizProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[key]
	if !ok {
		return domain.QuizProgress{}, domain.ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (s *Store) UpsertQuizProgress(_ context.Context, p domain.QuizProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[p.ProgressKey] = p.Clone()
	return nil
}

func (s *Store) DeleteQuizProgress(_ context.Context, key domain.ProgressKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, key)
	return nil
}

// AppendQuizResult ignores a result whose ID is already stored.
func (s *Store) AppendQuizResult(_ context.Context, r domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.results[r.AccountID] {
		if existing.ID == r.ID {
			return nil
		}
	}
	s.results[r.AccountID] = append(s.results[r.AccountID], r)
	return nil
}

// ListQuizResults returns the account's results, oldest first.
func (s *Store) ListQuizResults(_ context.Context, accountID string) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.QuizResult(nil), s.results[accountID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
