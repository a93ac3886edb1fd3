package failover

import (
	"context"
	"errors"
	"sync"

	"ascendly-scoring/internal/app"
	"ascendly-scoring/internal/domain"
	"ascendly-scoring/internal/metrics"
	"go.uber.org/zap"
)

// Store routes every call to the remote store and degrades to the local one
// when the remote fails. Remote writes are mirrored locally so fallback reads
// see the latest known state.
//
// Writes that only reached the local store are remembered as pending. Pending
// keys are read from the local store, and they are replayed to the remote in
// write order before the remote serves anything again.
type Store struct {
	remote  app.Store
	local   app.Store
	breaker *Breaker
	log     *zap.Logger
	metrics *metrics.Collectors

	mu      sync.Mutex
	order   []string
	pending map[string]replayFunc
}

// replayFunc copies one locally written entry to the remote store.
type replayFunc func(ctx context.Context) error

func NewStore(remote, local app.Store, breaker *Breaker, log *zap.Logger, m *metrics.Collectors) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if breaker == nil {
		breaker = NewBreaker(3, 0, nil)
	}
	return &Store{
		remote:  remote,
		local:   local,
		breaker: breaker,
		log:     log,
		metrics: m,
		pending: make(map[string]replayFunc),
	}
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	return read(ctx, s, "get_account", func(st app.Store) (domain.Account, error) {
		return st.GetAccount(ctx, accountID)
	})
}

func (s *Store) UpdateAccountScoreAndDailyPoints(ctx context.Context, acct domain.Account) error {
	return s.write(ctx, "update_account", accountKey(acct.ID), func(st app.Store) error {
		return st.UpdateAccountScoreAndDailyPoints(ctx, acct)
	}, func(ctx context.Context) error {
		latest, err := s.local.GetAccount(ctx, acct.ID)
		if err != nil {
			return err
		}
		return s.remote.UpdateAccountScoreAndDailyPoints(ctx, latest)
	})
}

func (s *Store) GetAttemptRecord(ctx context.Context, accountID, questionID string) (domain.AttemptRecord, error) {
	return read(ctx, s, "get_attempt", func(st app.Store) (domain.AttemptRecord, error) {
		return st.GetAttemptRecord(ctx, accountID, questionID)
	})
}

func (s *Store) UpsertAttemptRecord(ctx context.Context, rec domain.AttemptRecord) error {
	return s.write(ctx, "upsert_attempt", attemptKey(rec.AccountID, rec.QuestionID), func(st app.Store) error {
		return st.UpsertAttemptRecord(ctx, rec)
	}, func(ctx context.Context) error {
		latest, err := s.local.GetAttemptRecord(ctx, rec.AccountID, rec.QuestionID)
		if err != nil {
			return err
		}
		return s.remote.UpsertAttemptRecord(ctx, latest)
	})
}

func (s *Store) GetQuizProgress(ctx context.Context, key domain.ProgressKey) (domain.QuizProgress, error) {
	return read(ctx, s, "get_progress", func(st app.Store) (domain.QuizProgress, error) {
		return st.GetQuizProgress(ctx, key)
	})
}

func (s *Store) UpsertQuizProgress(ctx context.Context, p domain.QuizProgress) error {
	return s.write(ctx, "upsert_progress", progressKey(p.ProgressKey), func(st app.Store) error {
		return st.UpsertQuizProgress(ctx, p)
	}, s.replayProgress(p.ProgressKey))
}

func (s *Store) DeleteQuizProgress(ctx context.Context, key domain.ProgressKey) error {
	return s.write(ctx, "delete_progress", progressKey(key), func(st app.Store) error {
		return st.DeleteQuizProgress(ctx, key)
	}, s.replayProgress(key))
}

func (s *Store) AppendQuizResult(ctx context.Context, r domain.QuizResult) error {
	return s.write(ctx, "append_result", resultKey(r.ID), func(st app.Store) error {
		return st.AppendQuizResult(ctx, r)
	}, func(ctx context.Context) error {
		return s.remote.AppendQuizResult(ctx, r)
	})
}

func (s *Store) ListQuizResults(ctx context.Context, accountID string) ([]domain.QuizResult, error) {
	return read(ctx, s, "list_results", func(st app.Store) ([]domain.QuizResult, error) {
		return st.ListQuizResults(ctx, accountID)
	})
}

// Pending reports how many locally written entries still await replay.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// replayProgress mirrors whatever the local store now holds for key, including its absence.
func (s *Store) replayProgress(key domain.ProgressKey) replayFunc {
	return func(ctx context.Context) error {
		latest, err := s.local.GetQuizProgress(ctx, key)
		if errors.Is(err, domain.ErrProgressNotFound) {
			return s.remote.DeleteQuizProgress(ctx, key)
		}
		if err != nil {
			return err
		}
		return s.remote.UpsertQuizProgress(ctx, latest)
	}
}

// read serves from the remote only once pending writes are replayed, so a
// pending key is never answered with the remote's stale copy.
func read[T any](ctx context.Context, s *Store, op string, call func(app.Store) (T, error)) (T, error) {
	if !s.remoteReady(ctx, op) {
		return call(s.local)
	}

	v, err := call(s.remote)
	if err == nil || isNotFound(err) {
		s.breaker.Success()
		return v, err
	}
	if ctx.Err() != nil {
		return v, err
	}
	s.degrade(op, err)
	return call(s.local)
}

func (s *Store) write(ctx context.Context, op, key string, call func(app.Store) error, replay replayFunc) error {
	if s.remoteReady(ctx, op) {
		err := call(s.remote)
		if err == nil {
			s.breaker.Success()
			if s.isPending(key) {
				// a concurrent degraded write owns the local entry; leave it for replay
				return nil
			}
			if lerr := call(s.local); lerr != nil {
				s.log.Debug("local mirror write failed", zap.String("op", op), zap.Error(lerr))
			}
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		s.degrade(op, err)
	}

	if err := call(s.local); err != nil {
		return err
	}
	s.markPending(key, replay)
	return nil
}

// remoteReady reports whether the remote may serve op: the breaker allows it
// and every pending local write has been replayed.
func (s *Store) remoteReady(ctx context.Context, op string) bool {
	if !s.breaker.Allow() {
		s.metrics.ObserveFallback(op)
		return false
	}
	if err := s.reconcile(ctx); err != nil {
		if ctx.Err() == nil {
			s.degrade(op, err)
		}
		return false
	}
	return true
}

// reconcile replays pending entries in write order, stopping at the first failure.
func (s *Store) reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil
	}

	replayed := 0
	for _, key := range s.order {
		if err := s.pending[key](ctx); err != nil {
			s.order = s.order[replayed:]
			return err
		}
		delete(s.pending, key)
		replayed++
	}
	s.order = s.order[:0]
	s.breaker.Success()
	s.log.Info("local writes replayed to remote store", zap.Int("entries", replayed))
	return nil
}

func (s *Store) markPending(key string, replay replayFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok {
		// keep the first position; the replay reads the latest local value
		return
	}
	s.pending[key] = replay
	s.order = append(s.order, key)
}

func (s *Store) isPending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

func (s *Store) degrade(op string, err error) {
	s.breaker.Failure()
	s.metrics.ObserveFallback(op)
	s.log.Warn("remote store failed, using local store",
		zap.String("op", op),
		zap.Bool("breaker_open", s.breaker.Open()),
		zap.Error(err),
	)
}

func accountKey(id string) string { return "account:" + id }

func attemptKey(accountID, questionID string) string {
	return "attempt:" + accountID + "|" + questionID
}

func progressKey(k domain.ProgressKey) string {
	return "progress:" + k.AccountID + "|" + k.Class + "|" + k.Unit
}

func resultKey(id string) string { return "result:" + id }

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrAttemptNotFound) ||
		errors.Is(err, domain.ErrProgressNotFound)
}
