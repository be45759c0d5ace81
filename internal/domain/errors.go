package domain

import "errors"

var (
	// ErrSessionNotFound is returned when the session document does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrNoQuestions rejects creating a session with an empty question set.
	ErrNoQuestions = errors.New("session has no questions configured")
	// ErrInvalidQuestion indicates a malformed question record in quiz content.
	ErrInvalidQuestion = errors.New("invalid question record")
	// ErrQuestionSetNotFound indicates the requested quiz content could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrAlreadyStarted rejects starting a session that is not waiting.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionNotActive rejects answers while the session is not accepting them.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrQuestionChanged rejects an answer for a question that is no longer current.
	ErrQuestionChanged = errors.New("question has already changed")
	// ErrAlreadySubmitted rejects a second submission for the same question.
	ErrAlreadySubmitted = errors.New("answer already submitted for this question")
	// ErrWindowClosed rejects a submission after the countdown reached zero.
	ErrWindowClosed = errors.New("submission window is closed")
	// ErrNothingSelected rejects a submission with no option chosen.
	ErrNothingSelected = errors.New("no option selected")
	// ErrNotConnected is returned by the client hook before a snapshot arrived
	// or after the subscription dropped.
	ErrNotConnected = errors.New("not connected to quiz session")
	// ErrConnectivityLost surfaces an offline transition or subscription failure.
	ErrConnectivityLost = errors.New("connection lost, check your network")
)
