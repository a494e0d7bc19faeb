package session

import "errors"

// Rejection reasons returned by engine commands. All are caller-correctable
// or caller-must-wait conditions; none are fatal to the process.
var (
	// ErrInvalidInput rejects malformed questions, options, names or messages.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPollInProgress rejects poll creation while the admission rule holds
	// the previous poll open.
	ErrPollInProgress = errors.New("a poll is still in progress")
	// ErrNoActivePoll rejects answers when no poll is accepting them.
	ErrNoActivePoll = errors.New("no active poll")
	// ErrDuplicateAnswer rejects a second answer to the same poll from the
	// same student.
	ErrDuplicateAnswer = errors.New("student already answered this poll")
	// ErrInvalidOption rejects an answer whose option index does not exist.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrStudentKicked rejects commands from a removed student.
	ErrStudentKicked = errors.New("student was removed from the session")
)
