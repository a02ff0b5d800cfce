package lobby

import (
	"context"
	"math/rand"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/question"
	"github.com/minhvu/quoterush/internal/roomstore"
)

const (
	maxQuestionCount    = 20
	maxConcurrentFetch  = 4
	SettingDifficulty   = "difficulty"
	SettingQuestionGoal = "questionCount"
	SettingGameMode     = "gameMode"
)

type Config struct {
	Store     *roomstore.Store
	Questions question.Provider
}

// Service coordinates the pre-game phase: ready flags, host-configured
// settings and the host-gated start and reset transitions.
type Service struct {
	store     *roomstore.Store
	questions question.Provider
}

func NewService(c Config) *Service {
	return &Service{
		store:     c.Store,
		questions: c.Questions,
	}
}

// SetReady toggles the caller's ready flag. Waiting phase only.
func (s *Service) SetReady(ctx context.Context, code, identity string, ready bool) error {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}

	if r.Status != domain.StatusWaiting {
		return invalidPhase(code, r.Status, domain.StatusWaiting)
	}

	p, ok := r.Players[identity]
	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("player %s is not in room %s", identity, code))
	}

	p.IsReady = ready
	return s.store.SetFields(ctx, code, map[string]string{
		roomstore.PlayerField(identity): roomstore.EncodePlayer(p),
	})
}

// UpdateSetting writes one lobby setting. Creator only, waiting phase
// only.
func (s *Service) UpdateSetting(ctx context.Context, code, identity, key, value string) error {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}

	if identity != r.CreatorID {
		return notCreator(code, identity)
	}
	if r.Status != domain.StatusWaiting {
		return invalidPhase(code, r.Status, domain.StatusWaiting)
	}

	switch key {
	case SettingDifficulty:
		switch domain.Difficulty(value) {
		case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
		default:
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown difficulty %q", value))
		}
		return s.store.SetFields(ctx, code, map[string]string{roomstore.FieldDifficulty: value})

	case SettingQuestionGoal:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > maxQuestionCount {
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question count must be 1..%d, got %q", maxQuestionCount, value))
		}
		return s.store.SetFields(ctx, code, map[string]string{roomstore.FieldQuestionCount: roomstore.EncodeInt(n)})

	case SettingGameMode:
		switch domain.Mode(value) {
		case domain.ModeNormal, domain.ModeRush:
		default:
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown game mode %q", value))
		}
		return s.store.SetFields(ctx, code, map[string]string{roomstore.FieldGameMode: value})

	default:
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown setting %q", key))
	}
}

// StartGame fetches the question set and flips the room to in-game
// with one combined write. Creator only, every player must be ready.
// A single failed or malformed fetch aborts the whole start; a partial
// question set is never committed.
func (s *Service) StartGame(ctx context.Context, code, identity string) error {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}

	if identity != r.CreatorID {
		return notCreator(code, identity)
	}
	if r.Status != domain.StatusWaiting {
		return invalidPhase(code, r.Status, domain.StatusWaiting)
	}
	if !r.AllReady() {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s: not every player is ready", code))
	}

	qs, err := s.fetchQuestions(ctx, r.QuestionCount, r.Difficulty)
	if err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("room %s: question fetch failed", code),
			errors.WithCause(err),
		)
	}

	// Leftover answer fields can only exist if a previous reset was
	// interrupted; clear them before opening the first question.
	if fields := staleGameFields(r); len(fields) > 0 {
		if err := s.store.DelFields(ctx, code, fields...); err != nil {
			return err
		}
	}

	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return err
	}

	return s.store.SetFields(ctx, code, map[string]string{
		roomstore.FieldStatus:                   string(domain.StatusInGame),
		roomstore.FieldQuestions:                roomstore.EncodeQuestions(qs),
		roomstore.FieldCurrentQuestionIndex:     roomstore.EncodeInt(0),
		roomstore.FieldCurrentQuestionStartTime: roomstore.EncodeTime(now),
	})
}

// ResetToLobby clears game state and returns a finished room to the
// waiting phase with all scores and ready flags zeroed. Creator only.
func (s *Service) ResetToLobby(ctx context.Context, code, identity string) error {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}

	if identity != r.CreatorID {
		return notCreator(code, identity)
	}
	if r.Status != domain.StatusFinished {
		return invalidPhase(code, r.Status, domain.StatusFinished)
	}

	// Game fields go first so no reader ever observes a waiting room
	// that still carries questions.
	if err := s.store.DelFields(ctx, code, roomstore.GameFields(r)...); err != nil {
		return err
	}

	fields := map[string]string{
		roomstore.FieldStatus: string(domain.StatusWaiting),
	}
	for id, p := range r.Players {
		p.Score = 0
		p.IsReady = false
		fields[roomstore.PlayerField(id)] = roomstore.EncodePlayer(p)
	}

	return s.store.SetFields(ctx, code, fields)
}

func (s *Service) fetchQuestions(ctx context.Context, count int, difficulty domain.Difficulty) ([]domain.Question, error) {
	qs := make([]domain.Question, count)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentFetch)

	for i := range qs {
		i := i
		qtype := question.MinType + rand.Intn(question.MaxType-question.MinType+1)
		eg.Go(func() error {
			q, err := s.questions.Fetch(ctx, qtype, difficulty)
			if err != nil {
				return err
			}
			if err := question.Validate(q); err != nil {
				return err
			}

			qs[i] = q
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return qs, nil
}

// staleGameFields is like roomstore.GameFields but only reports fields
// that are actually present on a waiting room.
func staleGameFields(r *domain.Room) []string {
	var fields []string
	for idx, byPlayer := range r.Answers {
		for identity := range byPlayer {
			fields = append(fields, roomstore.AnswerField(idx, identity))
		}
	}
	for idx := range r.LockedPlayers {
		fields = append(fields, roomstore.LockedField(idx))
	}
	return fields
}

func notCreator(code, identity string) error {
	return errors.New(errors.CodePermissionDenied, errors.WithMessagef("player %s is not the creator of room %s", identity, code))
}

func invalidPhase(code string, got, want domain.Status) error {
	return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s is %s, operation requires %s", code, got, want))
}
