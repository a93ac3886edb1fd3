package domain

import "errors"

var (
	// ErrAccountNotFound is returned when no account exists for an ID.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAttemptNotFound is returned when an account has never answered a question.
	ErrAttemptNotFound = errors.New("attempt record not found")
	// ErrProgressNotFound is returned when no live quiz progress exists.
	ErrProgressNotFound = errors.New("quiz progress not found")
	// ErrNotEnrolled is returned when points target a class the account is not in.
	ErrNotEnrolled = errors.New("account not enrolled in class")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrQuestionAlreadyAnswered prevents counting the same question twice in one progress.
	ErrQuestionAlreadyAnswered = errors.New("question already answered")
	// ErrIllegalTransition is returned for a state change the progress machine does not allow.
	ErrIllegalTransition = errors.New("illegal quiz progress transition")
	// ErrUncommittedProgress blocks discarding a session that still holds uncommitted points.
	ErrUncommittedProgress = errors.New("quiz progress has uncommitted points")
)
