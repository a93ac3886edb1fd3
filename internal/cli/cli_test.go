package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"ascendly-scoring/internal/config"
	"ascendly-scoring/internal/infra/memory"
	"ascendly-scoring/internal/infra/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func TestScoreCommandPrintsBreakdown(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"score",
		"--attempt=2", "--elapsed=60",
		"--session-points=36", "--session-correct=3", "--session-total=3",
		"--streak=1", "--daily-earned=1990",
	})
	require.NoError(t, cmd.Execute())

	var report map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 5, report["question"]["finalPoints"])
	assert.Equal(t, 10, report["session"]["finalSessionPoints"])
	assert.Equal(t, true, report["session"]["dailyCapApplied"])
	assert.NotContains(t, report["session"], "finalsessionpoints")
}

func TestComputeScoreDecay(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	report := computeScore(scoreFlags{classScore: 1000, daysIdle: 7, attempt: 1}, now)
	assert.True(t, report.Decay.Applied)
	assert.Equal(t, 980, report.Decay.NewScore)

	report = computeScore(scoreFlags{classScore: 1000, attempt: 1}, now)
	assert.False(t, report.Decay.Applied)
	assert.Equal(t, 1000, report.Decay.NewScore)
}

func TestComputeScoreToleratesNegativeFlags(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	var report scoreReport
	require.NotPanics(t, func() {
		report = computeScore(scoreFlags{
			correct: true, attempt: 1, elapsed: -5, recentCorrect: -1,
			sessionPoints: -10, sessionTotal: -1, streak: -3, dailyEarned: -50,
			classScore: 100, daysIdle: -2,
		}, now)
	})
	assert.Zero(t, report.Question.MasteryPenalty)
	assert.Equal(t, 12, report.Question.FinalPoints)
	assert.Zero(t, report.Session.FinalSessionPoints)
	assert.InDelta(t, 1.0, report.Session.StreakMultiplier, 1e-9)
	assert.False(t, report.Decay.Applied)
	assert.Equal(t, 100, report.Decay.NewScore)
}

func TestScoreCommandAcceptsNegativeRecentCorrect(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"score", "--recent-correct=-1"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "finalPoints:")
}

func TestPortFlagDefaultsToEnvOnly(t *testing.T) {
	t.Setenv("PORT", "")
	cmd := newRootCmd()
	assert.Equal(t, "", cmd.PersistentFlags().Lookup("port").DefValue)

	t.Setenv("PORT", "9090")
	cmd = newRootCmd()
	assert.Equal(t, "9090", cmd.PersistentFlags().Lookup("port").DefValue)
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, "7000", resolvePort("7000", "9000"))
	assert.Equal(t, "9000", resolvePort("", "9000"))
	assert.Equal(t, "8080", resolvePort("", ""))
}

func TestSeedDemoAccountsKeepsExisting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	existing := demoAccounts()[0]
	existing.Scores = map[string]int{"algebra": 77}
	store.PutAccount(existing)

	require.NoError(t, seedDemoAccounts(ctx, store))
	require.NoError(t, seedDemoAccounts(ctx, store))

	got, err := store.GetAccount(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, 77, got.Scores["algebra"])
	_, err = store.GetAccount(ctx, demoAccounts()[1].ID)
	assert.NoError(t, err)
}

func TestBuildStoreWithoutRemoteUsesSQLite(t *testing.T) {
	var cfg config.Config
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "local.db")

	store, closeStore, err := buildStore(context.Background(), cfg, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	defer closeStore()
	_, ok := store.(*sqlite.Store)
	assert.True(t, ok)

	cfg.SQLite.Path = ""
	store, closeStore, err = buildStore(context.Background(), cfg, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	defer closeStore()
	_, ok = store.(*memory.Store)
	assert.True(t, ok)
}
