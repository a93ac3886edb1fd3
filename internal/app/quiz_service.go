package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ascendly-scoring/internal/domain"
	"ascendly-scoring/internal/metrics"
	"ascendly-scoring/internal/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuizService runs quiz sessions: attempts, per-question points, resumable
// progress, and the decay-then-add commit into account scores.
type QuizService struct {
	store    Store
	quizzes  QuizRepository
	board    Leaderboard
	attempts *AttemptCounter
	metrics  *metrics.Collectors
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a QuizService.
type Option func(*QuizService)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithLeaderboard projects committed scores into board.
func WithLeaderboard(board Leaderboard) Option {
	return func(s *QuizService) { s.board = board }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *QuizService) { s.log = log }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(s *QuizService) { s.metrics = m }
}

func NewQuizService(store Store, quizzes QuizRepository, opts ...Option) *QuizService {
	s := &QuizService{
		store:   store,
		quizzes: quizzes,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.attempts = NewAttemptCounter(store, s.log)
	return s
}

// AnswerOutcome summarizes the result of one submission.
type AnswerOutcome struct {
	QuestionID string                 `json:"questionId"`
	Correct    bool                   `json:"correct"`
	Ordinal    int                    `json:"attemptOrdinal"`
	Points     scoring.QuestionPoints `json:"points"`
	Progress   domain.QuizProgress    `json:"progress"`
	// Completed is set when this answer finished the quiz.
	Completed *CommitSummary `json:"completed,omitempty"`
}

// CommitSummary describes points written to the account at session end.
type CommitSummary struct {
	AccountID   string                `json:"accountId"`
	Class       string                `json:"class"`
	Unit        string                `json:"unit"`
	State       domain.ProgressState  `json:"state"`
	Session     scoring.SessionPoints `json:"session"`
	Decayed     bool                  `json:"decayed"`
	ClassScore  int                   `json:"classScore"`
	DailyPoints int                   `json:"dailyPoints"`
	Streak      int                   `json:"streak"`
	Result      *domain.QuizResult    `json:"result,omitempty"`
}

// StartQuiz enters InProgress for the unit, resuming saved progress unless fresh is set.
func (s *QuizService) StartQuiz(ctx context.Context, accountID, class, unit string, fresh bool) (domain.QuizProgress, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.QuizProgress{}, err
	}
	if !acct.EnrolledIn(class) {
		return domain.QuizProgress{}, domain.ErrNotEnrolled
	}
	// Users cannot start unknown quizzes.
	quiz, err := s.quizzes.GetQuiz(ctx, domain.QuizID(class, unit))
	if err != nil {
		return domain.QuizProgress{}, err
	}

	key := domain.ProgressKey{AccountID: accountID, Class: class, Unit: unit}
	p, err := s.store.GetQuizProgress(ctx, key)
	if errors.Is(err, domain.ErrProgressNotFound) {
		return s.createProgress(ctx, key)
	}
	if err != nil {
		return domain.QuizProgress{}, err
	}

	switch p.State {
	case domain.StateSavedForLater:
		if fresh {
			return s.replaceProgress(ctx, key)
		}
		if err := p.Transition(domain.EventResume); err != nil {
			return domain.QuizProgress{}, err
		}
		p.PointsEarned = 0
		p.SessionCorrectAnswers = 0
		p.SessionTotalAnswered = 0
		p.UpdatedAt = s.now()
		if err := s.store.UpsertQuizProgress(ctx, p); err != nil {
			return domain.QuizProgress{}, err
		}
		s.log.Info("quiz resumed", zap.String("account", accountID), zap.String("quiz", domain.QuizID(class, unit)), zap.Int("index", p.CurrentIndex))
		return p, nil
	case domain.StateInProgress:
		if !fresh {
			return p, nil
		}
		if p.PointsEarned > 0 {
			return domain.QuizProgress{}, domain.ErrUncommittedProgress
		}
		return s.replaceProgress(ctx, key)
	case domain.StateCommitting, domain.StateCompleted:
		// finish the interrupted session before starting over
		if _, err := s.finish(ctx, &p, quiz); err != nil {
			return domain.QuizProgress{}, err
		}
		return s.createProgress(ctx, key)
	default:
		// never-started leftovers carry nothing worth keeping
		return s.replaceProgress(ctx, key)
	}
}

// SubmitAnswer scores one answer and advances the progress; answering the last
// question completes the quiz and commits its points.
//
// A submission against a session whose final answer is already recorded is not
// scored again; it finishes the outstanding commit steps and reports them in
// Completed.
func (s *QuizService) SubmitAnswer(ctx context.Context, accountID, class, unit string, sub domain.AnswerSubmission) (AnswerOutcome, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, domain.QuizID(class, unit))
	if err != nil {
		return AnswerOutcome{}, err
	}
	key := domain.ProgressKey{AccountID: accountID, Class: class, Unit: unit}
	p, err := s.store.GetQuizProgress(ctx, key)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if p.State == domain.StateCommitting || p.State == domain.StateCompleted {
		summary, err := s.finish(ctx, &p, quiz)
		if err != nil {
			return AnswerOutcome{}, err
		}
		return AnswerOutcome{QuestionID: sub.QuestionID, Progress: p, Completed: &summary}, nil
	}
	if _, err := p.State.Next(domain.EventAnswer); err != nil {
		return AnswerOutcome{}, err
	}

	idx := quiz.IndexOf(sub.QuestionID)
	if idx < 0 {
		return AnswerOutcome{}, domain.ErrQuestionNotFound
	}
	if p.AnsweredQuestions[idx] {
		return AnswerOutcome{}, domain.ErrQuestionAlreadyAnswered
	}
	correct, err := gradeSubmission(quiz.Questions[idx], sub.OptionID)
	if err != nil {
		return AnswerOutcome{}, err
	}

	now := s.now()
	attempt, err := s.attempts.RecordAttempt(ctx, accountID, sub.QuestionID, correct, sub.ElapsedSeconds, now)
	if err != nil {
		return AnswerOutcome{}, err
	}
	points := scoring.CalculateQuestionPoints(correct, attempt.Ordinal, sub.ElapsedSeconds, attempt.PriorCorrect, now)
	s.metrics.ObserveAnswer(correct)

	_ = p.Transition(domain.EventAnswer)
	if p.AnsweredQuestions == nil {
		p.AnsweredQuestions = make(map[int]bool)
	}
	p.AnsweredQuestions[idx] = true
	p.CurrentIndex = nextUnanswered(p, len(quiz.Questions))
	if correct {
		p.CorrectAnswers++
		p.SessionCorrectAnswers++
	}
	p.SessionTotalAnswered++
	p.PointsEarned += points.FinalPoints
	p.UpdatedAt = now

	out := AnswerOutcome{
		QuestionID: sub.QuestionID,
		Correct:    correct,
		Ordinal:    attempt.Ordinal,
		Points:     points,
	}

	if len(p.Answered()) >= len(quiz.Questions) {
		// persist the final answer before any points move
		if err := p.Transition(domain.EventFinish); err != nil {
			return AnswerOutcome{}, err
		}
		if err := s.store.UpsertQuizProgress(ctx, p); err != nil {
			return AnswerOutcome{}, err
		}
		summary, err := s.finish(ctx, &p, quiz)
		if err != nil {
			return AnswerOutcome{}, err
		}
		out.Completed = &summary
		out.Progress = p
		return out, nil
	}

	if err := s.store.UpsertQuizProgress(ctx, p); err != nil {
		return AnswerOutcome{}, err
	}
	out.Progress = p
	return out, nil
}

// SaveForLater commits the answered subset and parks the progress for resuming.
func (s *QuizService) SaveForLater(ctx context.Context, accountID, class, unit string) (CommitSummary, error) {
	key := domain.ProgressKey{AccountID: accountID, Class: class, Unit: unit}
	p, err := s.store.GetQuizProgress(ctx, key)
	if err != nil {
		return CommitSummary{}, err
	}
	if err := p.Transition(domain.EventSave); err != nil {
		return CommitSummary{}, err
	}

	now := s.now()
	summary, err := s.commit(ctx, p, now)
	if err != nil {
		return CommitSummary{}, err
	}

	p.PointsEarned = 0
	p.SessionCorrectAnswers = 0
	p.SessionTotalAnswered = 0
	p.UpdatedAt = now
	if err := s.store.UpsertQuizProgress(ctx, p); err != nil {
		return CommitSummary{}, err
	}
	return summary, nil
}

// AbandonQuiz discards a progress record without committing anything.
func (s *QuizService) AbandonQuiz(ctx context.Context, accountID, class, unit string) error {
	key := domain.ProgressKey{AccountID: accountID, Class: class, Unit: unit}
	p, err := s.store.GetQuizProgress(ctx, key)
	if err != nil {
		return err
	}
	switch {
	case p.State == domain.StateCommitting:
		return domain.ErrUncommittedProgress
	case p.State == domain.StateInProgress && p.PointsEarned > 0:
		return domain.ErrUncommittedProgress
	case p.State == domain.StateCompleted:
		// points are on the account already; record the result on the way out
		quiz, err := s.quizzes.GetQuiz(ctx, domain.QuizID(class, unit))
		if err != nil {
			return err
		}
		_, err = s.finish(ctx, &p, quiz)
		return err
	}
	return s.store.DeleteQuizProgress(ctx, key)
}

// Progress returns the live progress record for the unit.
func (s *QuizService) Progress(ctx context.Context, accountID, class, unit string) (domain.QuizProgress, error) {
	return s.store.GetQuizProgress(ctx, domain.ProgressKey{AccountID: accountID, Class: class, Unit: unit})
}

// Results lists the account's completed sessions.
func (s *QuizService) Results(ctx context.Context, accountID string) ([]domain.QuizResult, error) {
	return s.store.ListQuizResults(ctx, accountID)
}

// Leaderboard returns the top of a class leaderboard.
func (s *QuizService) Leaderboard(ctx context.Context, class string, limit int) (domain.Leaderboard, error) {
	if s.board == nil {
		return domain.Leaderboard{Class: class, UpdatedAt: s.now()}, nil
	}
	return s.board.Top(ctx, class, limit)
}

func (s *QuizService) createProgress(ctx context.Context, key domain.ProgressKey) (domain.QuizProgress, error) {
	p := domain.QuizProgress{
		ProgressKey:       key,
		State:             domain.StateNotStarted,
		AnsweredQuestions: make(map[int]bool),
		UpdatedAt:         s.now(),
	}
	if err := p.Transition(domain.EventStart); err != nil {
		return domain.QuizProgress{}, err
	}
	if err := s.store.UpsertQuizProgress(ctx, p); err != nil {
		return domain.QuizProgress{}, err
	}
	s.log.Info("quiz started", zap.String("account", key.AccountID), zap.String("quiz", domain.QuizID(key.Class, key.Unit)))
	return p, nil
}

func (s *QuizService) replaceProgress(ctx context.Context, key domain.ProgressKey) (domain.QuizProgress, error) {
	if err := s.store.DeleteQuizProgress(ctx, key); err != nil && !errors.Is(err, domain.ErrProgressNotFound) {
		return domain.QuizProgress{}, err
	}
	return s.createProgress(ctx, key)
}

// finish drives a Committing or Completed record to its end: the session is
// committed once, the record settles as Completed with the committed points,
// the result is appended and the progress deleted. Each step is persisted
// before the next, so a failed call can be repeated without committing twice.
// Deleting the progress is the signal that the session is fully committed.
func (s *QuizService) finish(ctx context.Context, p *domain.QuizProgress, quiz domain.Quiz) (CommitSummary, error) {
	var summary CommitSummary
	if p.State == domain.StateCommitting {
		var err error
		summary, err = s.commit(ctx, *p, p.UpdatedAt)
		if err != nil {
			return CommitSummary{}, err
		}
		if err := p.Transition(domain.EventFinish); err != nil {
			return CommitSummary{}, err
		}
		p.CommittedPoints = summary.Session.FinalSessionPoints
		p.PointsEarned = 0
		p.SessionCorrectAnswers = 0
		p.SessionTotalAnswered = 0
		if err := s.store.UpsertQuizProgress(ctx, *p); err != nil {
			return CommitSummary{}, err
		}
	} else {
		acct, err := s.store.GetAccount(ctx, p.AccountID)
		if err != nil {
			return CommitSummary{}, err
		}
		summary = CommitSummary{
			AccountID:   acct.ID,
			Class:       p.Class,
			Unit:        p.Unit,
			Session:     scoring.SessionPoints{FinalSessionPoints: p.CommittedPoints},
			ClassScore:  acct.Scores[p.Class],
			DailyPoints: acct.DailyPoints[domain.DayKey(p.UpdatedAt)],
			Streak:      acct.Streak,
		}
	}
	summary.State = p.State

	result := domain.QuizResult{
		ID:             resultID(*p),
		AccountID:      p.AccountID,
		Class:          p.Class,
		Unit:           p.Unit,
		Score:          p.CorrectAnswers,
		TotalQuestions: len(quiz.Questions),
		PointsEarned:   p.CommittedPoints,
		CreatedAt:      p.UpdatedAt,
	}
	if err := s.store.AppendQuizResult(ctx, result); err != nil {
		return CommitSummary{}, fmt.Errorf("append quiz result: %w", err)
	}
	if err := s.store.DeleteQuizProgress(ctx, p.ProgressKey); err != nil && !errors.Is(err, domain.ErrProgressNotFound) {
		return CommitSummary{}, err
	}
	summary.Result = &result
	return summary, nil
}

// resultID is stable for one finished session so a repeated append is ignored.
func resultID(p domain.QuizProgress) string {
	name := fmt.Sprintf("%s|%s|%s|%d", p.AccountID, p.Class, p.Unit, p.UpdatedAt.UnixMilli())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// commit decays the account, applies the session bonus and daily cap, and writes
// the result into the class score and today's bucket.
func (s *QuizService) commit(ctx context.Context, p domain.QuizProgress, now time.Time) (CommitSummary, error) {
	acct, err := s.store.GetAccount(ctx, p.AccountID)
	if err != nil {
		return CommitSummary{}, err
	}
	if !acct.EnrolledIn(p.Class) {
		return CommitSummary{}, domain.ErrNotEnrolled
	}
	if acct.Scores == nil {
		acct.Scores = make(map[string]int)
	}
	if acct.DailyPoints == nil {
		acct.DailyPoints = make(map[string]int)
	}

	decayed := scoring.DecayAccount(&acct, now)

	today := domain.DayKey(now)
	state := p.State
	var streak int
	if p.State == domain.StateCommitting {
		state = domain.StateCompleted
		acct.Streak = nextDayStreak(acct, now)
		acct.LastQuizDate = today
		streak = acct.Streak
	} else {
		streak = activeStreak(acct, now)
	}

	session := scoring.CalculateSessionBonus(p.PointsEarned, p.SessionCorrectAnswers, p.SessionTotalAnswered, streak, acct.DailyPoints[today])
	acct.Scores[p.Class] += session.FinalSessionPoints
	acct.DailyPoints[today] += session.FinalSessionPoints

	if err := s.store.UpdateAccountScoreAndDailyPoints(ctx, acct); err != nil {
		return CommitSummary{}, fmt.Errorf("commit session points: %w", err)
	}
	s.metrics.ObserveCommit(string(state), session.FinalSessionPoints, session.DailyCapApplied, decayed)
	s.project(ctx, acct, p.Class, decayed)

	s.log.Info("session committed",
		zap.String("account", acct.ID),
		zap.String("quiz", domain.QuizID(p.Class, p.Unit)),
		zap.String("state", string(state)),
		zap.Int("question_points", p.PointsEarned),
		zap.Int("final_points", session.FinalSessionPoints),
		zap.Bool("daily_cap_applied", session.DailyCapApplied),
		zap.Bool("decayed", decayed),
	)

	return CommitSummary{
		AccountID:   acct.ID,
		Class:       p.Class,
		Unit:        p.Unit,
		State:       state,
		Session:     session,
		Decayed:     decayed,
		ClassScore:  acct.Scores[p.Class],
		DailyPoints: acct.DailyPoints[today],
		Streak:      streak,
	}, nil
}

// project mirrors committed scores into the leaderboard. A decay moves every
// class score, so all of them are refreshed then.
func (s *QuizService) project(ctx context.Context, acct domain.Account, class string, decayed bool) {
	if s.board == nil {
		return
	}
	classes := []string{class}
	if decayed {
		classes = classes[:0]
		for c := range acct.Scores {
			classes = append(classes, c)
		}
	}
	for _, c := range classes {
		if err := s.board.SetScore(ctx, c, acct.ID, acct.Scores[c]); err != nil {
			s.log.Warn("leaderboard update failed", zap.String("class", c), zap.String("account", acct.ID), zap.Error(err))
		}
	}
}

// nextDayStreak counts consecutive calendar days with a completed session.
func nextDayStreak(acct domain.Account, now time.Time) int {
	switch acct.LastQuizDate {
	case domain.DayKey(now):
		if acct.Streak < 1 {
			return 1
		}
		return acct.Streak
	case domain.DayKey(now.AddDate(0, 0, -1)):
		return acct.Streak + 1
	default:
		return 1
	}
}

// activeStreak is the stored day streak while it is unbroken, else 0.
func activeStreak(acct domain.Account, now time.Time) int {
	switch acct.LastQuizDate {
	case domain.DayKey(now), domain.DayKey(now.AddDate(0, 0, -1)):
		return acct.Streak
	default:
		return 0
	}
}

func nextUnanswered(p domain.QuizProgress, total int) int {
	for i := 0; i < total; i++ {
		if !p.AnsweredQuestions[i] {
			return i
		}
	}
	return total
}

// gradeSubmission checks the selected option against quiz content.
func gradeSubmission(question domain.Question, optionID string) (bool, error) {
	for i := range question.Options {
		if question.Options[i].ID == optionID {
			return question.Options[i].Correct, nil
		}
	}
	return false, domain.ErrOptionNotFound
}
