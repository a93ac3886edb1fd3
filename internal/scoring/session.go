package scoring

import "math"

const (
	AccuracyThreshold       = 0.70
	AccuracyBonusMultiplier = 0.5
	StreakStep              = 0.02
	MaxStreakBonus          = 0.40
	DailyCap                = 2000
)

// SessionPoints is the end-of-session breakdown.
type SessionPoints struct {
	Accuracy           float64 `json:"accuracy" yaml:"accuracy"`
	AccuracyBonus      int     `json:"accuracyBonus" yaml:"accuracyBonus"`
	StreakMultiplier   float64 `json:"streakMultiplier" yaml:"streakMultiplier"`
	TotalBeforeCap     int     `json:"totalBeforeCap" yaml:"totalBeforeCap"`
	DailyCapApplied    bool    `json:"dailyCapApplied" yaml:"dailyCapApplied"`
	FinalSessionPoints int     `json:"finalSessionPoints" yaml:"finalSessionPoints"`
}

// CalculateSessionBonus applies the accuracy bonus and day-streak multiplier to a
// session's question points and clamps the result to what is left of the daily cap.
func CalculateSessionBonus(questionPointsTotal, correctAnswers, totalAnswered, currentStreakDays, dailyPointsAlreadyEarned int) SessionPoints {
	var sp SessionPoints
	if questionPointsTotal < 0 {
		questionPointsTotal = 0
	}

	if totalAnswered > 0 {
		sp.Accuracy = float64(correctAnswers) / float64(totalAnswered)
	}
	if sp.Accuracy > AccuracyThreshold {
		sp.AccuracyBonus = int(math.Round(float64(questionPointsTotal) * (sp.Accuracy - AccuracyThreshold) * AccuracyBonusMultiplier))
	}

	sp.StreakMultiplier = StreakMultiplier(currentStreakDays)
	sp.TotalBeforeCap = int(math.Round(float64(questionPointsTotal+sp.AccuracyBonus) * sp.StreakMultiplier))

	remaining := DailyCap - dailyPointsAlreadyEarned
	if remaining < 0 {
		remaining = 0
	}
	sp.FinalSessionPoints = sp.TotalBeforeCap
	if sp.FinalSessionPoints > remaining {
		sp.FinalSessionPoints = remaining
		sp.DailyCapApplied = true
	}
	return sp
}

// StreakMultiplier adds StreakStep per consecutive day, capped at MaxStreakBonus.
func StreakMultiplier(streakDays int) float64 {
	if streakDays < 0 {
		streakDays = 0
	}
	return 1 + math.Min(float64(streakDays)*StreakStep, MaxStreakBonus)
}
