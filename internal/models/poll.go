package models

// Poll represents one timed multiple-choice question instance.
type Poll struct {
	ID                 string   `json:"id"`
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CreatedAt          int64    `json:"createdAt"`
	ExpiresAt          int64    `json:"expiresAt"`
	IsActive           bool     `json:"isActive"`
	DurationSec        int      `json:"duration"`
	CorrectOptionIndex *int     `json:"correctOptionIndex,omitempty"`
}

// Answer is one student's response to one poll. At most one answer exists
// per (pollId, studentId) pair.
type Answer struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	PollID      string `json:"pollId"`
	OptionIndex int    `json:"optionIndex"`
	AnsweredAt  int64  `json:"answeredAt"`
}

// PollResult is the tally for a poll, derived from its answer set. It is
// never stored as independent truth; recomputing from the same answers
// yields an identical value.
type PollResult struct {
	PollID         string   `json:"pollId"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	Votes          []int    `json:"votes"`
	TotalVotes     int      `json:"totalVotes"`
	StudentAnswers []Answer `json:"studentAnswers"`
}
