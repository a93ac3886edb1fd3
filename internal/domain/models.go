package domain

import (
	"sort"
	"time"
)

// Role distinguishes learners from instructors.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// DayLayout formats the calendar-day keys used by DailyPoints and LastQuizDate.
const DayLayout = "2006-01-02"

// DayKey returns the calendar-day bucket for t in t's location.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// Account holds the scoring-relevant state of a user.
type Account struct {
	ID                 string         `json:"id"`
	Role               Role           `json:"role"`
	Classes            []string       `json:"classes"`
	Scores             map[string]int `json:"scores"`
	Streak             int            `json:"streak"`
	LastQuizDate       string         `json:"lastQuizDate,omitempty"`
	LastDecayTimestamp time.Time      `json:"lastDecayTimestamp"`
	DailyPoints        map[string]int `json:"dailyPoints"`
}

// EnrolledIn reports whether the account belongs to class.
func (a Account) EnrolledIn(class string) bool {
	for _, c := range a.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share maps with a store.
func (a Account) Clone() Account {
	out := a
	out.Classes = append([]string(nil), a.Classes...)
	out.Scores = make(map[string]int, len(a.Scores))
	for k, v := range a.Scores {
		out.Scores[k] = v
	}
	out.DailyPoints = make(map[string]int, len(a.DailyPoints))
	for k, v := range a.DailyPoints {
		out.DailyPoints[k] = v
	}
	return out
}

// AttemptRecord tracks one account's history with one question.
type AttemptRecord struct {
	AccountID            string      `json:"accountId"`
	QuestionID           string      `json:"questionId"`
	Attempts             int         `json:"attempts"`
	CorrectAttempts      int         `json:"correctAttempts"`
	Streak               int         `json:"streak"`
	CorrectTimestamps    []time.Time `json:"correctTimestamps"`
	LastAttemptTimestamp time.Time   `json:"lastAttemptTimestamp"`
}

// Clone returns a copy with its own timestamp slice.
func (r AttemptRecord) Clone() AttemptRecord {
	out := r
	out.CorrectTimestamps = append([]time.Time(nil), r.CorrectTimestamps...)
	return out
}

// ProgressState is the lifecycle state of a quiz session.
type ProgressState string

const (
	StateNotStarted    ProgressState = "not_started"
	StateInProgress    ProgressState = "in_progress"
	StateCommitting    ProgressState = "committing"
	StateCompleted     ProgressState = "completed"
	StateSavedForLater ProgressState = "saved_for_later"
)

// ProgressKey identifies the single live progress record of an account in a unit.
type ProgressKey struct {
	AccountID string `json:"accountId"`
	Class     string `json:"class"`
	Unit      string `json:"unit"`
}

// QuizProgress is the resumable state of a quiz session.
// PointsEarned and the Session* counters cover points not yet committed to the account.
// A Committing record holds a finished session whose points are not yet on the
// account; a Completed record that still exists has been committed, and
// CommittedPoints carries its final session points until the result is appended.
type QuizProgress struct {
	ProgressKey
	State                 ProgressState `json:"state"`
	CurrentIndex          int           `json:"currentIndex"`
	CorrectAnswers        int           `json:"correctAnswers"`
	AnsweredQuestions     map[int]bool  `json:"answeredQuestions"`
	PointsEarned          int           `json:"pointsEarned"`
	SessionCorrectAnswers int           `json:"sessionCorrectAnswers"`
	SessionTotalAnswered  int           `json:"sessionTotalAnswered"`
	CommittedPoints       int           `json:"committedPoints"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

// Clone returns a copy with its own answered set.
func (p QuizProgress) Clone() QuizProgress {
	out := p
	out.AnsweredQuestions = make(map[int]bool, len(p.AnsweredQuestions))
	for k, v := range p.AnsweredQuestions {
		out.AnsweredQuestions[k] = v
	}
	return out
}

// Answered returns the answered question indices in ascending order.
func (p QuizProgress) Answered() []int {
	out := make([]int, 0, len(p.AnsweredQuestions))
	for idx, ok := range p.AnsweredQuestions {
		if ok {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

// QuizResult is the append-only history entry of a completed session.
type QuizResult struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"accountId"`
	Class          string    `json:"class"`
	Unit           string    `json:"unit"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	PointsEarned   int       `json:"pointsEarned"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LeaderboardEntry is one ranked row of a class leaderboard.
type LeaderboardEntry struct {
	AccountID string `json:"accountId"`
	Score     int    `json:"score"`
	Rank      int    `json:"rank"`
}

// Leaderboard captures the ordered scoreboard for a class.
type Leaderboard struct {
	Class     string             `json:"class"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID     string  `json:"questionId"`
	OptionID       string  `json:"optionId"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// Quiz is the ordered question list of one class unit.
type Quiz struct {
	ID        string     `json:"id"`
	Class     string     `json:"class"`
	Unit      string     `json:"unit"`
	Questions []Question `json:"questions"`
}

// QuizID derives the content key of a class unit.
func QuizID(class, unit string) string {
	return class + "/" + unit
}

// IndexOf returns the position of questionID in the quiz, or -1.
func (q Quiz) IndexOf(questionID string) int {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}
