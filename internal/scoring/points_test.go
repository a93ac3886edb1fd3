package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

func TestFirstAttemptInstantAnswer(t *testing.T) {
	qp := CalculateQuestionPoints(true, 1, 0, nil, now)

	assert.Equal(t, 10, qp.BasePoints)
	assert.Equal(t, 1.0, qp.AttemptMultiplier)
	assert.InDelta(t, 0.20, qp.SpeedBonus, 1e-9)
	assert.Zero(t, qp.MasteryPenalty)
	assert.Equal(t, 12, qp.FinalPoints)
}

func TestSecondAttemptAtExpectedDuration(t *testing.T) {
	qp := CalculateQuestionPoints(true, 2, 60, nil, now)

	assert.Equal(t, 0.5, qp.AttemptMultiplier)
	assert.Zero(t, qp.SpeedBonus)
	assert.Equal(t, 5, qp.FinalPoints)
}

func TestMasteryPenaltyReducesAward(t *testing.T) {
	history := []time.Time{daysAgo(1), daysAgo(5), daysAgo(20)}
	qp := CalculateQuestionPoints(true, 1, 30, history, now)

	assert.InDelta(t, 0.45, qp.MasteryPenalty, 1e-9)
	assert.InDelta(t, 0.10, qp.SpeedBonus, 1e-9)
	assert.Equal(t, 6, qp.FinalPoints)
}

func TestThirdAttemptAndBeyondEarnNothing(t *testing.T) {
	for ordinal := 3; ordinal <= 50; ordinal++ {
		for _, correct := range []bool{true, false} {
			for _, elapsed := range []float64{-5, 0, 12, 60, 600} {
				qp := CalculateQuestionPoints(correct, ordinal, elapsed, nil, now)
				require.Zero(t, qp.FinalPoints, "ordinal=%d correct=%v elapsed=%v", ordinal, correct, elapsed)
				require.Zero(t, qp.AttemptMultiplier)
			}
		}
	}
}

func TestIncorrectAnswerEarnsNothing(t *testing.T) {
	for ordinal := 1; ordinal <= 3; ordinal++ {
		qp := CalculateQuestionPoints(false, ordinal, 0, nil, now)
		assert.Zero(t, qp.FinalPoints)
		assert.Zero(t, qp.AttemptMultiplier)
		assert.Zero(t, qp.SpeedBonus)
		assert.Zero(t, qp.MasteryPenalty)
	}
}

func TestNonPositiveOrdinalEarnsNothing(t *testing.T) {
	assert.Zero(t, CalculateQuestionPoints(true, 0, 0, nil, now).FinalPoints)
	assert.Zero(t, CalculateQuestionPoints(true, -1, 0, nil, now).FinalPoints)
}

func TestSpeedBonusMonotoneAndBounded(t *testing.T) {
	prev := SpeedBonus(-100)
	assert.InDelta(t, MaxSpeedBonus, prev, 1e-9)
	for elapsed := -10.0; elapsed <= 200; elapsed += 0.5 {
		b := SpeedBonus(elapsed)
		require.GreaterOrEqual(t, b, 0.0)
		require.LessOrEqual(t, b, MaxSpeedBonus)
		require.LessOrEqual(t, b, prev, "elapsed=%v", elapsed)
		prev = b
	}
	assert.Zero(t, SpeedBonus(60))
	assert.Zero(t, SpeedBonus(61))
}

func TestMasteryPenaltyMonotoneAndCapped(t *testing.T) {
	var history []time.Time
	prev := MasteryPenalty(history, now)
	assert.Zero(t, prev)
	for i := 0; i < 20; i++ {
		history = append(history, daysAgo(i%29))
		p := MasteryPenalty(history, now)
		require.GreaterOrEqual(t, p, prev)
		require.LessOrEqual(t, p, MaxMasteryPenalty)
		prev = p
	}
	assert.Equal(t, MaxMasteryPenalty, prev)
}

func TestMasteryPenaltyIgnoresOldCorrects(t *testing.T) {
	history := []time.Time{daysAgo(31), daysAgo(45), daysAgo(365)}
	assert.Zero(t, MasteryPenalty(history, now))

	history = append(history, daysAgo(29))
	assert.InDelta(t, MasteryPenaltyStep, MasteryPenalty(history, now), 1e-9)
}

func TestRoundingHappensOnce(t *testing.T) {
	// 10 * 0.5 * 1.1 * 0.85 = 4.675
	qp := CalculateQuestionPoints(true, 2, 30, []time.Time{daysAgo(2)}, now)
	assert.Equal(t, 5, qp.FinalPoints)
}
