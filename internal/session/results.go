package session

import "github.com/classpoll/livepoll/internal/models"

// ComputeResults derives the tally for a poll from the full answer log.
// The derivation is a pure function of (poll, answers): recomputing from the
// same inputs yields an identical result, so results are cheap to rebuild on
// every mutation instead of being diffed or cached.
func ComputeResults(poll models.Poll, answers []models.Answer) models.PollResult {
	votes := make([]int, len(poll.Options))
	studentAnswers := make([]models.Answer, 0, len(answers))
	for _, a := range answers {
		if a.PollID != poll.ID {
			continue
		}
		studentAnswers = append(studentAnswers, a)
		if a.OptionIndex >= 0 && a.OptionIndex < len(votes) {
			votes[a.OptionIndex]++
		}
	}
	return models.PollResult{
		PollID:         poll.ID,
		Question:       poll.Question,
		Options:        poll.Options,
		Votes:          votes,
		TotalVotes:     len(studentAnswers),
		StudentAnswers: studentAnswers,
	}
}
