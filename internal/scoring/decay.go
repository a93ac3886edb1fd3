package scoring

import (
	"math"
	"time"

	"ascendly-scoring/internal/domain"
)

const (
	WeeklyDecayRate = 0.02
	DailyDecayRate  = WeeklyDecayRate / 7
	day             = 24 * time.Hour
)

// Decay is the outcome of ApplyDecay.
type Decay struct {
	NewScore       int     `json:"newScore" yaml:"newScore"`
	DaysSinceDecay float64 `json:"daysSinceDecay" yaml:"daysSinceDecay"`
	Applied        bool    `json:"applied" yaml:"applied"`
}

// ApplyDecay compounds DailyDecayRate over the fractional days since lastDecay.
// Less than one elapsed day, or no prior decay, leaves the score untouched.
func ApplyDecay(currentScore int, lastDecay, now time.Time) Decay {
	d := Decay{NewScore: currentScore}
	if lastDecay.IsZero() {
		return d
	}
	d.DaysSinceDecay = now.Sub(lastDecay).Hours() / 24
	if d.DaysSinceDecay < 1 {
		return d
	}

	factor := math.Pow(1-DailyDecayRate, d.DaysSinceDecay)
	d.NewScore = int(math.Max(0, math.Round(float64(currentScore)*factor)))
	d.Applied = true
	return d
}

// DecayAccount decays every class score of acct and reports whether decay fired.
// It must run before new points are added so fresh points are never decayed.
func DecayAccount(acct *domain.Account, now time.Time) bool {
	if acct.LastDecayTimestamp.IsZero() {
		acct.LastDecayTimestamp = now
		return false
	}
	if now.Sub(acct.LastDecayTimestamp) < day {
		return false
	}
	for class, score := range acct.Scores {
		acct.Scores[class] = ApplyDecay(score, acct.LastDecayTimestamp, now).NewScore
	}
	acct.LastDecayTimestamp = now
	return true
}
