package app

import (
	"context"
	"errors"
	"time"

	"ascendly-scoring/internal/domain"
	"go.uber.org/zap"
)

// AttemptOutcome is what the points calculator needs from the attempt history.
type AttemptOutcome struct {
	// Ordinal is the 1-based attempt number including this answer.
	Ordinal int
	// PriorCorrect holds the correct-answer timestamps recorded before this answer.
	PriorCorrect []time.Time
	Record       domain.AttemptRecord
}

// AttemptCounter keeps per (account, question) attempt and streak bookkeeping.
type AttemptCounter struct {
	store AttemptStore
	log   *zap.Logger
}

func NewAttemptCounter(store AttemptStore, log *zap.Logger) *AttemptCounter {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttemptCounter{store: store, log: log}
}

// RecordAttempt updates the attempt record for the pair and returns the new ordinal.
func (c *AttemptCounter) RecordAttempt(ctx context.Context, accountID, questionID string, isCorrect bool, elapsedSeconds float64, ts time.Time) (AttemptOutcome, error) {
	rec, err := c.store.GetAttemptRecord(ctx, accountID, questionID)
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound):
		rec = domain.AttemptRecord{AccountID: accountID, QuestionID: questionID}
	case err != nil:
		return AttemptOutcome{}, err
	}

	prior := append([]time.Time(nil), rec.CorrectTimestamps...)

	rec.Attempts++
	if isCorrect {
		rec.CorrectAttempts++
		rec.Streak++
		rec.CorrectTimestamps = append(rec.CorrectTimestamps, ts)
	} else {
		rec.Streak = 0
	}
	rec.LastAttemptTimestamp = ts

	if err := c.store.UpsertAttemptRecord(ctx, rec); err != nil {
		return AttemptOutcome{}, err
	}

	c.log.Debug("attempt recorded",
		zap.String("account", accountID),
		zap.String("question", questionID),
		zap.Bool("correct", isCorrect),
		zap.Int("ordinal", rec.Attempts),
		zap.Float64("elapsed_seconds", elapsedSeconds),
	)
	return AttemptOutcome{Ordinal: rec.Attempts, PriorCorrect: prior, Record: rec}, nil
}
