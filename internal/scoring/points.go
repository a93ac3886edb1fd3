// Package scoring holds the pure numeric rules that turn answers into points,
// sessions into bonuses, and elapsed time into leaderboard decay.
package scoring

import (
	"math"
	"time"
)

const (
	BasePoints            = 10
	ExpectedAnswerSeconds = 60.0
	MaxSpeedBonus         = 0.20
	MasteryWindow         = 30 * 24 * time.Hour
	MasteryPenaltyStep    = 0.15
	MaxMasteryPenalty     = 0.50
)

// QuestionPoints is the breakdown of a single question's award.
type QuestionPoints struct {
	BasePoints        int     `json:"basePoints" yaml:"basePoints"`
	AttemptMultiplier float64 `json:"attemptMultiplier" yaml:"attemptMultiplier"`
	SpeedBonus        float64 `json:"speedBonus" yaml:"speedBonus"`
	MasteryPenalty    float64 `json:"masteryPenalty" yaml:"masteryPenalty"`
	FinalPoints       int     `json:"finalPoints" yaml:"finalPoints"`
}

// CalculateQuestionPoints scores one answer. recentCorrect is the account's
// correct-answer history for the question before this answer.
func CalculateQuestionPoints(isCorrect bool, attemptOrdinal int, elapsedSeconds float64, recentCorrect []time.Time, now time.Time) QuestionPoints {
	qp := QuestionPoints{BasePoints: BasePoints}
	if !isCorrect {
		return qp
	}

	qp.AttemptMultiplier = AttemptMultiplier(attemptOrdinal)
	if qp.AttemptMultiplier == 0 {
		return qp
	}

	qp.SpeedBonus = SpeedBonus(elapsedSeconds)
	qp.MasteryPenalty = MasteryPenalty(recentCorrect, now)

	raw := float64(qp.BasePoints) * qp.AttemptMultiplier * (1 + qp.SpeedBonus) * (1 - qp.MasteryPenalty)
	qp.FinalPoints = int(math.Max(0, math.Round(raw)))
	return qp
}

// AttemptMultiplier rewards first attempts fully, second attempts by half, and nothing after.
func AttemptMultiplier(ordinal int) float64 {
	switch ordinal {
	case 1:
		return 1.0
	case 2:
		return 0.5
	default:
		return 0
	}
}

// SpeedBonus scales linearly from MaxSpeedBonus at 0s to 0 at ExpectedAnswerSeconds.
func SpeedBonus(elapsedSeconds float64) float64 {
	if math.IsNaN(elapsedSeconds) || elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	ratio := (ExpectedAnswerSeconds - elapsedSeconds) / ExpectedAnswerSeconds
	if ratio <= 0 {
		return 0
	}
	return math.Min(ratio, 1) * MaxSpeedBonus
}

// MasteryPenalty charges MasteryPenaltyStep per correct answer inside the rolling
// MasteryWindow, capped at MaxMasteryPenalty.
func MasteryPenalty(recentCorrect []time.Time, now time.Time) float64 {
	cutoff := now.Add(-MasteryWindow)
	recent := 0
	for _, ts := range recentCorrect {
		if !ts.Before(cutoff) {
			recent++
		}
	}
	return math.Min(float64(recent)*MasteryPenaltyStep, MaxMasteryPenalty)
}
