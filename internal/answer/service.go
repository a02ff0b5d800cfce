package answer

import (
	"context"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/roomstore"
	"github.com/minhvu/quoterush/internal/telemetry"
)

type Config struct {
	Store *roomstore.Store
}

// Service implements the per-player answer submission protocol.
// Scoring happens later, exclusively in the creator's advancement
// pass; submission only records the choice and its server timestamp.
type Service struct {
	store *roomstore.Store
}

func NewService(c Config) *Service {
	return &Service{store: c.Store}
}

// Submit records the player's answer for the open question. The write
// is once-only per (question, player): a second submission is rejected
// and the first answer is left untouched.
func (s *Service) Submit(ctx context.Context, code, identity string, questionIndex int, chosenOption string) error {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}

	if r.Status != domain.StatusInGame {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s is not in a game", code))
	}
	if questionIndex != r.CurrentQuestionIndex {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("question %d is not open in room %s", questionIndex, code))
	}

	q, ok := r.CurrentQuestion()
	if !ok {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s has no open question", code))
	}
	if _, ok := r.Players[identity]; !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("player %s is not in room %s", identity, code))
	}
	if r.HasAnswered(questionIndex, identity) {
		return alreadyAnswered(code, identity, questionIndex)
	}

	if r.GameMode == domain.ModeRush {
		if r.IsLockedOut(questionIndex, identity) {
			return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("player %s is locked out of question %d", identity, questionIndex))
		}
		if hasCorrectAnswer(r, questionIndex, q.CorrectAnswer) {
			return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("question %d was already won", questionIndex))
		}
	}

	ts, err := s.store.ServerTime(ctx)
	if err != nil {
		return err
	}

	set, err := s.store.SetFieldNX(ctx, code, roomstore.AnswerField(questionIndex, identity), roomstore.EncodeAnswer(domain.Answer{
		Answer:    chosenOption,
		Timestamp: ts,
	}))
	if err != nil {
		return err
	}
	if !set {
		return alreadyAnswered(code, identity, questionIndex)
	}

	telemetry.AnswersSubmitted.Inc()

	if r.GameMode == domain.ModeRush && chosenOption != q.CorrectAnswer {
		// Read-modify-write on the lockout set. Two players answering
		// wrong at the same moment can lose one append; accepted
		// last-write-wins race, at worst one missed lockout.
		locked := append(r.LockedPlayers[questionIndex], identity)
		return s.store.SetFields(ctx, code, map[string]string{
			roomstore.LockedField(questionIndex): roomstore.EncodeLocked(locked),
		})
	}

	return nil
}

func hasCorrectAnswer(r *domain.Room, idx int, correct string) bool {
	for _, a := range r.Answers[idx] {
		if a.Answer == correct {
			return true
		}
	}
	return false
}

func alreadyAnswered(code, identity string, idx int) error {
	return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("player %s already answered question %d in room %s", identity, idx, code))
}
