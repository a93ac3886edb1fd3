package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	"ascendly-scoring/internal/domain"
	"ascendly-scoring/internal/infra/memory"
	"ascendly-scoring/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

// flakyStore fails every call while down is set.
type flakyStore struct {
	*memory.Store
	down  bool
	calls int
}

func (f *flakyStore) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	f.calls++
	if f.down {
		return domain.Account{}, errDown
	}
	return f.Store.GetAccount(ctx, id)
}

func (f *flakyStore) UpdateAccountScoreAndDailyPoints(ctx context.Context, acct domain.Account) error {
	f.calls++
	if f.down {
		return errDown
	}
	return f.Store.UpdateAccountScoreAndDailyPoints(ctx, acct)
}

func (f *flakyStore) GetAttemptRecord(ctx context.Context, accountID, questionID string) (domain.AttemptRecord, error) {
	f.calls++
	if f.down {
		return domain.AttemptRecord{}, errDown
	}
	return f.Store.GetAttemptRecord(ctx, accountID, questionID)
}

func (f *flakyStore) UpsertAttemptRecord(ctx context.Context, rec domain.AttemptRecord) error {
	f.calls++
	if f.down {
		return errDown
	}
	return f.Store.UpsertAttemptRecord(ctx, rec)
}

type fixture struct {
	remote  *flakyStore
	local   *memory.Store
	store   *Store
	metrics *metrics.Collectors
	now     *time.Time
}

func newFixture(threshold int, cooldown time.Duration) fixture {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	remote := &flakyStore{Store: memory.NewStore()}
	local := memory.NewStore()
	m := metrics.New(prometheus.NewRegistry())
	breaker := NewBreaker(threshold, cooldown, func() time.Time { return now })
	return fixture{
		remote:  remote,
		local:   local,
		store:   NewStore(remote, local, breaker, nil, m),
		metrics: m,
		now:     &now,
	}
}

func TestWritesMirrorToLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(3, time.Minute)

	acct := domain.Account{ID: "a1", Classes: []string{"algebra"}, Scores: map[string]int{"algebra": 40}}
	require.NoError(t, f.store.UpdateAccountScoreAndDailyPoints(ctx, acct))

	remote, err := f.remote.Store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 40, remote.Scores["algebra"])
	local, err := f.local.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 40, local.Scores["algebra"])
}

func TestRemoteFailureFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(3, time.Minute)
	f.local.PutAccount(domain.Account{ID: "a1", Scores: map[string]int{"algebra": 7}})
	f.remote.down = true

	got, err := f.store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Scores["algebra"])

	require.NoError(t, f.store.UpdateAccountScoreAndDailyPoints(ctx, domain.Account{ID: "a1", Scores: map[string]int{"algebra": 9}}))
	local, err := f.local.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 9, local.Scores["algebra"])

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.StoreFallback.WithLabelValues("get_account")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.StoreFallback.WithLabelValues("update_account")))
}

func TestNotFoundDoesNotFallBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(3, time.Minute)
	f.local.PutAccount(domain.Account{ID: "ghost"})

	_, err := f.store.GetAccount(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Zero(t, testutil.ToFloat64(f.metrics.StoreFallback.WithLabelValues("get_account")))
}

func TestBreakerSkipsRemoteUntilCooldown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(2, 30*time.Second)
	f.local.PutAccount(domain.Account{ID: "a1"})
	f.remote.down = true

	for i := 0; i < 2; i++ {
		_, err := f.store.GetAccount(ctx, "a1")
		require.NoError(t, err)
	}
	require.Equal(t, 2, f.remote.calls)

	// open: remote not consulted
	_, err := f.store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.remote.calls)
	assert.True(t, f.store.breaker.Open())

	// after cooldown a trial call reaches the recovered remote and closes the breaker
	f.remote.down = false
	f.remote.PutAccount(domain.Account{ID: "a1", Scores: map[string]int{"algebra": 100}})
	*f.now = f.now.Add(31 * time.Second)
	got, err := f.store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, f.remote.calls)
	assert.Equal(t, 100, got.Scores["algebra"])
	assert.False(t, f.store.breaker.Open())
}

func TestCanceledContextIsNotAFailure(t *testing.T) {
	f := newFixture(1, time.Minute)
	f.remote.down = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.store.GetAccount(ctx, "a1")
	assert.ErrorIs(t, err, errDown)
	assert.False(t, f.store.breaker.Open())
}

func TestOutageWriteThenRecoveryWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1, 30*time.Second)
	seed := domain.Account{ID: "a1", Classes: []string{"algebra"}, Scores: map[string]int{"algebra": 0}}
	f.remote.PutAccount(seed)
	f.local.PutAccount(seed)

	// outage: +100 lands only in the local store
	f.remote.down = true
	acct, err := f.store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	acct.Scores["algebra"] += 100
	require.NoError(t, f.store.UpdateAccountScoreAndDailyPoints(ctx, acct))
	assert.Equal(t, 1, f.store.Pending())

	// recovery: the read replays the outage write before the remote answers
	f.remote.down = false
	*f.now = f.now.Add(31 * time.Second)
	acct, err = f.store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 100, acct.Scores["algebra"])
	assert.Zero(t, f.store.Pending())

	acct.Scores["algebra"] += 50
	require.NoError(t, f.store.UpdateAccountScoreAndDailyPoints(ctx, acct))

	remote, err := f.remote.Store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	local, err := f.local.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 150, remote.Scores["algebra"])
	assert.Equal(t, 150, local.Scores["algebra"])
}

func TestPendingKeysServedFromLocalUntilReplayed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1, 30*time.Second)
	f.remote.down = true

	rec := domain.AttemptRecord{AccountID: "a1", QuestionID: "q1", Attempts: 2}
	require.NoError(t, f.store.UpsertAttemptRecord(ctx, rec))
	require.Equal(t, 1, f.store.Pending())

	// still inside the cooldown: the local copy answers
	got, err := f.store.GetAttemptRecord(ctx, "a1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	_, err = f.remote.Store.GetAttemptRecord(ctx, "a1", "q1")
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)

	// remote back but replay fails: keep serving local and keep the entry
	*f.now = f.now.Add(31 * time.Second)
	got, err = f.store.GetAttemptRecord(ctx, "a1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 1, f.store.Pending())

	f.remote.down = false
	*f.now = f.now.Add(31 * time.Second)
	got, err = f.store.GetAttemptRecord(ctx, "a1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Zero(t, f.store.Pending())

	replayed, err := f.remote.Store.GetAttemptRecord(ctx, "a1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, replayed.Attempts)
}

func TestDeletedProgressReplaysAsDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1, 30*time.Second)
	key := domain.ProgressKey{AccountID: "a1", Class: "algebra", Unit: "u1"}
	p := domain.QuizProgress{ProgressKey: key, State: domain.StateSavedForLater}
	require.NoError(t, f.store.UpsertQuizProgress(ctx, p))

	// the delete happens while the breaker is open
	f.store.breaker.Failure()
	require.True(t, f.store.breaker.Open())
	require.NoError(t, f.store.DeleteQuizProgress(ctx, key))
	require.Equal(t, 1, f.store.Pending())

	*f.now = f.now.Add(31 * time.Second)
	_, err := f.store.GetQuizProgress(ctx, key)
	assert.ErrorIs(t, err, domain.ErrProgressNotFound)
	assert.Zero(t, f.store.Pending())
	_, err = f.remote.Store.GetQuizProgress(ctx, key)
	assert.ErrorIs(t, err, domain.ErrProgressNotFound)
}
