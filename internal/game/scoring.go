package game

import (
	"time"

	"github.com/minhvu/quoterush/internal/domain"
)

const (
	// minAward floors the reward for a correct answer.
	minAward = 5
	// wrongPenalty applies to wrong answers and, in normal mode, to
	// players who never answered.
	wrongPenalty = -5
)

// questionClosed reports whether the open question has reached a
// terminating condition: everyone answered, the deadline elapsed, or
// (rush mode) a correct answer is already on record. now must come
// from the reconciled server clock.
func questionClosed(r *domain.Room, limit time.Duration, now time.Time) bool {
	q, ok := r.CurrentQuestion()
	if !ok {
		return false
	}

	answers := r.Answers[r.CurrentQuestionIndex]

	if now.Sub(r.CurrentQuestionStartTime) >= limit {
		return true
	}

	if r.GameMode == domain.ModeRush {
		for _, a := range answers {
			if a.Answer == q.CorrectAnswer {
				return true
			}
		}
	}

	for id := range r.Players {
		if _, ok := answers[id]; !ok {
			return false
		}
	}
	return true
}

// scoreDeltas computes the per-player score changes for the closed
// current question under the room's game mode.
func scoreDeltas(r *domain.Room, limit time.Duration) map[string]int {
	if r.GameMode == domain.ModeRush {
		return rushDeltas(r, limit)
	}
	return normalDeltas(r, limit)
}

// normalDeltas scores every current player independently: a correct
// answer earns the seconds it had left (floored at minAward), a wrong
// answer or no answer at all costs wrongPenalty.
func normalDeltas(r *domain.Room, limit time.Duration) map[string]int {
	q, ok := r.CurrentQuestion()
	if !ok {
		return nil
	}

	answers := r.Answers[r.CurrentQuestionIndex]
	deltas := make(map[string]int, len(r.Players))

	for id := range r.Players {
		a, answered := answers[id]
		if !answered || a.Answer != q.CorrectAnswer {
			deltas[id] = wrongPenalty
			continue
		}

		deltas[id] = award(a.Timestamp, r.CurrentQuestionStartTime, limit)
	}

	return deltas
}

// rushDeltas awards only the earliest correct answer; everyone else is
// unchanged. No correct answer means no changes at all.
func rushDeltas(r *domain.Room, limit time.Duration) map[string]int {
	q, ok := r.CurrentQuestion()
	if !ok {
		return nil
	}

	winner := ""
	var winTime time.Time
	for id, a := range r.Answers[r.CurrentQuestionIndex] {
		if a.Answer != q.CorrectAnswer {
			continue
		}
		if winner == "" || a.Timestamp.Before(winTime) {
			winner, winTime = id, a.Timestamp
		}
	}

	if winner == "" {
		return nil
	}

	// A stale winner that already left the room earns nothing.
	if _, ok := r.Players[winner]; !ok {
		return nil
	}

	return map[string]int{
		winner: award(winTime, r.CurrentQuestionStartTime, limit),
	}
}

func award(answeredAt, start time.Time, limit time.Duration) int {
	remaining := int((limit - answeredAt.Sub(start)) / time.Second)
	if remaining < minAward {
		return minAward
	}
	return remaining
}
