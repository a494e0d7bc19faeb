package models

// SessionState is the aggregate root for one classroom polling session.
// Commands never mutate a SessionState in place; every mutation produces a
// wholly new value, so a snapshot handed to a reader stays consistent for
// as long as the reader retains it.
type SessionState struct {
	CurrentPoll    *Poll         `json:"currentPoll"`
	Polls          []Poll        `json:"polls"`
	Answers        []Answer      `json:"answers"`
	Students       []Student     `json:"students"`
	Results        *PollResult   `json:"results"`
	ChatMessages   []ChatMessage `json:"chatMessages"`
	KickedStudents []string      `json:"kickedStudents"`
}

// NewSessionState returns an empty session with all collections allocated.
func NewSessionState() SessionState {
	return SessionState{
		Polls:          []Poll{},
		Answers:        []Answer{},
		Students:       []Student{},
		ChatMessages:   []ChatMessage{},
		KickedStudents: []string{},
	}
}

// StudentByID finds a registered student by id.
func (s SessionState) StudentByID(id string) (Student, bool) {
	for _, st := range s.Students {
		if st.ID == id {
			return st, true
		}
	}
	return Student{}, false
}

// ActiveStudents returns the students that have not been kicked.
func (s SessionState) ActiveStudents() []Student {
	active := make([]Student, 0, len(s.Students))
	for _, st := range s.Students {
		if !st.IsKicked {
			active = append(active, st)
		}
	}
	return active
}

// AnswersForPoll returns the answers for one poll in submission order.
func (s SessionState) AnswersForPoll(pollID string) []Answer {
	matched := make([]Answer, 0, len(s.Answers))
	for _, a := range s.Answers {
		if a.PollID == pollID {
			matched = append(matched, a)
		}
	}
	return matched
}

// HasAnswered reports whether the student already answered the given poll.
func (s SessionState) HasAnswered(pollID, studentID string) bool {
	for _, a := range s.Answers {
		if a.PollID == pollID && a.StudentID == studentID {
			return true
		}
	}
	return false
}
