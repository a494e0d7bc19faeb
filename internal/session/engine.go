package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/models"
)

// Publisher propagates a freshly committed snapshot to the other replicas.
// The engine treats propagation as at-least-once: a failed publish is logged
// and masked by the periodic refresh, never surfaced as a command failure.
type Publisher interface {
	Publish(ctx context.Context, state models.SessionState) error
}

// Engine validates and applies every mutating command against the current
// snapshot, producing a new immutable SessionState. Commands on one replica
// are applied sequentially, never interleaved; cross-replica coordination is
// the broadcaster's concern.
type Engine struct {
	mu    sync.Mutex
	store *Store
	clock clockwork.Clock
	pub   Publisher
}

// NewEngine binds the engine to its store, clock and publisher. The
// publisher may be nil for a pure observer replica.
func NewEngine(store *Store, clock clockwork.Clock, pub Publisher) *Engine {
	return &Engine{store: store, clock: clock, pub: pub}
}

// State returns the current snapshot.
func (e *Engine) State() models.SessionState {
	return e.store.Read()
}

// CreatePoll opens a new answering window. It fails with ErrPollInProgress
// while the admission rule holds the previous poll open, and with
// ErrInvalidInput for a malformed question, option list or duration.
func (e *Engine) CreatePoll(ctx context.Context, question string, options []string, durationSec int, correctOptionIndex *int) (models.Poll, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, poll, err := applyCreatePoll(e.store.Read(), question, options, durationSec, correctOptionIndex, e.clock.Now().UnixMilli())
	if err != nil {
		return models.Poll{}, err
	}
	e.commit(ctx, next)
	log.Info().
		Str("poll_id", poll.ID).
		Int("options", len(poll.Options)).
		Int("duration_sec", poll.DurationSec).
		Msg("poll created")
	return poll, nil
}

// SubmitAnswer records one student's answer to the current poll and
// recomputes the tally.
func (e *Engine) SubmitAnswer(ctx context.Context, studentID, studentName string, optionIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := applySubmitAnswer(e.store.Read(), studentID, studentName, optionIndex, e.clock.Now().UnixMilli())
	if err != nil {
		return err
	}
	e.commit(ctx, next)
	log.Debug().
		Str("student_id", studentID).
		Int("option_index", optionIndex).
		Msg("answer recorded")
	return nil
}

// ExpirePoll closes the current answering window. It is idempotent: when no
// poll is active it does nothing, and it never deletes data. Every replica
// may issue it independently on deadline, so duplicates are harmless.
func (e *Engine) ExpirePoll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, changed := applyExpirePoll(e.store.Read())
	if !changed {
		return
	}
	e.commit(ctx, next)
	log.Info().Str("poll_id", next.CurrentPoll.ID).Msg("poll expired")
}

// RegisterStudent adds a session identity and returns its fresh id. The id
// acts as the student's credential for later commands.
func (e *Engine) RegisterStudent(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, student, err := applyRegisterStudent(e.store.Read(), name, e.clock.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	e.commit(ctx, next)
	log.Info().Str("student_id", student.ID).Str("name", student.Name).Msg("student registered")
	return student.ID, nil
}

// KickStudent permanently removes a student from the session. Idempotent;
// the student's prior answers and messages remain in history.
func (e *Engine) KickStudent(ctx context.Context, studentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, changed := applyKickStudent(e.store.Read(), studentID)
	if !changed {
		return
	}
	e.commit(ctx, next)
	log.Info().Str("student_id", studentID).Msg("student kicked")
}

// PostChatMessage appends to the session chat log. Kicked senders are not
// rejected here; gating them is a presentation-layer policy.
func (e *Engine) PostChatMessage(ctx context.Context, message string, sender models.SenderType, senderName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := applyPostChatMessage(e.store.Read(), message, sender, senderName, e.clock.Now().UnixMilli())
	if err != nil {
		return err
	}
	e.commit(ctx, next)
	return nil
}

// CanCreateNewPoll reports whether the admission rule currently allows a new
// poll.
func (e *Engine) CanCreateNewPoll() bool {
	return CanCreateNewPoll(e.store.Read())
}

// TimeRemaining returns the whole seconds left in the current answering
// window, floored at zero. An expired-but-not-yet-closed poll reports zero.
func (e *Engine) TimeRemaining() int {
	return TimeRemaining(e.store.Read(), e.clock.Now().UnixMilli())
}

// commit installs the new snapshot and broadcasts it. Must be called with
// e.mu held.
func (e *Engine) commit(ctx context.Context, next models.SessionState) {
	e.store.Replace(next)
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, next); err != nil {
		log.Error().Err(err).Msg("failed to publish snapshot")
	}
}

// CanCreateNewPoll is the admission-control rule preventing question
// overlap: a new poll may start when no poll exists, the current one has
// expired, or every non-kicked student has answered it.
func CanCreateNewPoll(state models.SessionState) bool {
	if state.CurrentPoll == nil || !state.CurrentPoll.IsActive {
		return true
	}
	active := state.ActiveStudents()
	if len(active) == 0 {
		return false
	}
	answered := 0
	for _, st := range active {
		if state.HasAnswered(state.CurrentPoll.ID, st.ID) {
			answered++
		}
	}
	return answered == len(active)
}

// TimeRemaining computes the seconds left at the given wall-clock instant,
// rounded up, floored at zero.
func TimeRemaining(state models.SessionState, nowMillis int64) int {
	if state.CurrentPoll == nil || !state.CurrentPoll.IsActive {
		return 0
	}
	remaining := state.CurrentPoll.ExpiresAt - nowMillis
	if remaining <= 0 {
		return 0
	}
	return int((remaining + 999) / 1000)
}

func applyCreatePoll(state models.SessionState, question string, options []string, durationSec int, correctOptionIndex *int, nowMillis int64) (models.SessionState, models.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" || durationSec <= 0 {
		return state, models.Poll{}, ErrInvalidInput
	}
	trimmed := make([]string, 0, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return state, models.Poll{}, ErrInvalidInput
		}
		trimmed = append(trimmed, opt)
	}
	if len(trimmed) < 2 {
		return state, models.Poll{}, ErrInvalidInput
	}
	if correctOptionIndex != nil && (*correctOptionIndex < 0 || *correctOptionIndex >= len(trimmed)) {
		return state, models.Poll{}, ErrInvalidInput
	}
	if !CanCreateNewPoll(state) {
		return state, models.Poll{}, ErrPollInProgress
	}

	poll := models.Poll{
		ID:                 nextPollID(state.Polls, nowMillis),
		Question:           question,
		Options:            trimmed,
		CreatedAt:          nowMillis,
		ExpiresAt:          nowMillis + int64(durationSec)*1000,
		IsActive:           true,
		DurationSec:        durationSec,
		CorrectOptionIndex: correctOptionIndex,
	}

	next := state
	next.CurrentPoll = &poll
	next.Polls = append(copyPolls(state.Polls), poll)
	next.Results = nil
	return next, poll, nil
}

// nextPollID derives a time-based id that stays strictly increasing across
// the poll history. Answers are keyed by (pollId, studentId), so two polls
// opened within the same millisecond must not share an id.
func nextPollID(polls []models.Poll, nowMillis int64) string {
	if len(polls) > 0 {
		last, err := strconv.ParseInt(polls[len(polls)-1].ID, 10, 64)
		if err == nil && nowMillis <= last {
			nowMillis = last + 1
		}
	}
	return strconv.FormatInt(nowMillis, 10)
}

func applySubmitAnswer(state models.SessionState, studentID, studentName string, optionIndex int, nowMillis int64) (models.SessionState, error) {
	if state.CurrentPoll == nil || !state.CurrentPoll.IsActive {
		return state, ErrNoActivePoll
	}
	if st, ok := state.StudentByID(studentID); ok && st.IsKicked {
		return state, ErrStudentKicked
	}
	if state.HasAnswered(state.CurrentPoll.ID, studentID) {
		return state, ErrDuplicateAnswer
	}
	if optionIndex < 0 || optionIndex >= len(state.CurrentPoll.Options) {
		return state, ErrInvalidOption
	}

	answer := models.Answer{
		StudentID:   studentID,
		StudentName: studentName,
		PollID:      state.CurrentPoll.ID,
		OptionIndex: optionIndex,
		AnsweredAt:  nowMillis,
	}

	next := state
	next.Answers = append(copyAnswers(state.Answers), answer)
	results := ComputeResults(*state.CurrentPoll, next.Answers)
	next.Results = &results
	return next, nil
}

func applyExpirePoll(state models.SessionState) (models.SessionState, bool) {
	if state.CurrentPoll == nil || !state.CurrentPoll.IsActive {
		return state, false
	}
	expired := *state.CurrentPoll
	expired.IsActive = false

	next := state
	next.CurrentPoll = &expired
	return next, true
}

func applyRegisterStudent(state models.SessionState, name string, nowMillis int64) (models.SessionState, models.Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return state, models.Student{}, ErrInvalidInput
	}
	student := models.Student{
		ID:       uuid.NewString(),
		Name:     name,
		JoinedAt: nowMillis,
	}

	next := state
	next.Students = append(copyStudents(state.Students), student)
	return next, student, nil
}

func applyKickStudent(state models.SessionState, studentID string) (models.SessionState, bool) {
	st, ok := state.StudentByID(studentID)
	if !ok || st.IsKicked {
		return state, false
	}

	students := copyStudents(state.Students)
	for i := range students {
		if students[i].ID == studentID {
			students[i].IsKicked = true
		}
	}

	next := state
	next.Students = students
	next.KickedStudents = append(copyStrings(state.KickedStudents), studentID)
	return next, true
}

func applyPostChatMessage(state models.SessionState, message string, sender models.SenderType, senderName string, nowMillis int64) (models.SessionState, error) {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > models.MaxChatMessageLen {
		return state, ErrInvalidInput
	}
	if sender != models.SenderTeacher && sender != models.SenderStudent {
		return state, ErrInvalidInput
	}

	msg := models.ChatMessage{
		ID:         uuid.NewString(),
		Message:    message,
		SenderType: sender,
		SenderName: senderName,
		Timestamp:  nowMillis,
	}

	next := state
	next.ChatMessages = append(copyChatMessages(state.ChatMessages), msg)
	return next, nil
}

// The copy helpers keep commands copy-on-write: appending to a shared slice
// in place could be observed by readers holding an older snapshot.

func copyPolls(in []models.Poll) []models.Poll {
	out := make([]models.Poll, len(in))
	copy(out, in)
	return out
}

func copyAnswers(in []models.Answer) []models.Answer {
	out := make([]models.Answer, len(in))
	copy(out, in)
	return out
}

func copyStudents(in []models.Student) []models.Student {
	out := make([]models.Student, len(in))
	copy(out, in)
	return out
}

func copyChatMessages(in []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(in))
	copy(out, in)
	return out
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
