package cli

import (
	"time"

	"ascendly-scoring/internal/scoring"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type scoreFlags struct {
	correct        bool
	attempt        int
	elapsed        float64
	recentCorrect  int
	sessionPoints  int
	sessionCorrect int
	sessionTotal   int
	streak         int
	dailyEarned    int
	classScore     int
	daysIdle       int
}

type scoreReport struct {
	Question scoring.QuestionPoints `yaml:"question"`
	Session  scoring.SessionPoints  `yaml:"session"`
	Decay    scoring.Decay          `yaml:"decay"`
}

// NewScoreCmd prints the scoring breakdown for a hypothetical answer and session.
func NewScoreCmd() *cobra.Command {
	var f scoreFlags
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Print a points, session bonus and decay breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := computeScore(f, time.Now().UTC())
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&f.correct, "correct", true, "whether the answer is correct")
	cmd.Flags().IntVar(&f.attempt, "attempt", 1, "attempt ordinal for the question")
	cmd.Flags().Float64Var(&f.elapsed, "elapsed", 0, "seconds taken to answer")
	cmd.Flags().IntVar(&f.recentCorrect, "recent-correct", 0, "correct answers to this question in the mastery window")
	cmd.Flags().IntVar(&f.sessionPoints, "session-points", 0, "question points earned in the session")
	cmd.Flags().IntVar(&f.sessionCorrect, "session-correct", 0, "correct answers in the session")
	cmd.Flags().IntVar(&f.sessionTotal, "session-total", 0, "answers in the session")
	cmd.Flags().IntVar(&f.streak, "streak", 0, "consecutive quiz days")
	cmd.Flags().IntVar(&f.dailyEarned, "daily-earned", 0, "points already earned today")
	cmd.Flags().IntVar(&f.classScore, "class-score", 0, "class score before decay")
	cmd.Flags().IntVar(&f.daysIdle, "days-idle", 0, "days since decay last ran")
	return cmd
}

func computeScore(f scoreFlags, now time.Time) scoreReport {
	recent := make([]time.Time, max(f.recentCorrect, 0))
	for i := range recent {
		recent[i] = now.Add(-time.Duration(i+1) * time.Hour)
	}

	var lastDecay time.Time
	if f.daysIdle > 0 {
		lastDecay = now.AddDate(0, 0, -f.daysIdle)
	}
	return scoreReport{
		Question: scoring.CalculateQuestionPoints(f.correct, f.attempt, f.elapsed, recent, now),
		Session:  scoring.CalculateSessionBonus(f.sessionPoints, f.sessionCorrect, f.sessionTotal, f.streak, f.dailyEarned),
		Decay:    scoring.ApplyDecay(f.classScore, lastDecay, now),
	}
}
