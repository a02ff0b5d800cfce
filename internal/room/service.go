package room

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/roomstore"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 5
)

var (
	defaultDifficulty    = domain.DifficultyEasy
	defaultQuestionCount = 5
	defaultMode          = domain.ModeNormal
)

type Config struct {
	Store *roomstore.Store
}

// Service manages the room lifecycle: creation, admission, eviction
// and teardown of empty rooms.
type Service struct {
	store *roomstore.Store
}

func NewService(c Config) *Service {
	return &Service{store: c.Store}
}

// Create allocates a fresh room code and writes the initial document
// with the host as creator and sole player. Retries on code collision;
// an existing room is never overwritten.
func (s *Service) Create(ctx context.Context, hostIdentity, hostName string) (string, error) {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return "", err
	}

	fields := map[string]string{
		roomstore.FieldStatus:        string(domain.StatusWaiting),
		roomstore.FieldCreatorID:     hostIdentity,
		roomstore.FieldCreatedAt:     roomstore.EncodeTime(now),
		roomstore.FieldDifficulty:    string(defaultDifficulty),
		roomstore.FieldQuestionCount: roomstore.EncodeInt(defaultQuestionCount),
		roomstore.FieldGameMode:      string(defaultMode),
		roomstore.PlayerField(hostIdentity): roomstore.EncodePlayer(domain.Player{
			Name: hostName,
		}),
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}

		err = s.store.Create(ctx, code, fields)
		if errors.Is(err, errors.CodeAlreadyExists) {
			slog.InfoContext(ctx, "room: code collision, retrying", "code", code)
			continue
		}
		if err != nil {
			return "", err
		}

		return code, nil
	}

	return "", errors.New(errors.CodeAlreadyExists, errors.WithMessagef("could not allocate a free room code after %d attempts", maxCodeAttempts))
}

// Join admits a player to a waiting room. Joining twice with the same
// identity is a no-op success: the existing entry's score and ready
// state are preserved.
func (s *Service) Join(ctx context.Context, code, identity, name string) error {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}

	if r.Status != domain.StatusWaiting {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s is closed to new players", code))
	}

	if _, ok := r.Players[identity]; ok {
		return nil
	}

	// HSETNX so that two racing joins for the same identity cannot
	// reset an already-written entry.
	_, err = s.store.SetFieldNX(ctx, code, roomstore.PlayerField(identity), roomstore.EncodePlayer(domain.Player{
		Name: name,
	}))
	return err
}

// Leave removes the player's entry; the room document is deleted when
// the last player leaves. Safe to call twice.
func (s *Service) Leave(ctx context.Context, code, identity string) error {
	r, err := s.store.Get(ctx, code)
	if errors.Is(err, errors.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, ok := r.Players[identity]; !ok {
		return nil
	}

	if len(r.Players) == 1 {
		return s.store.Delete(ctx, code)
	}

	return s.store.DelFields(ctx, code, roomstore.PlayerField(identity))
}

// WatchPresence registers the best-effort disconnect cleanup: when the
// session context ends, the player is removed as if they had left.
func (s *Service) WatchPresence(ctx context.Context, code, identity string) {
	s.store.WatchPresence(ctx, code, identity, func(dctx context.Context) {
		if err := s.Leave(dctx, code, identity); err != nil {
			slog.Warn("room: disconnect cleanup failed", "room", code, "identity", identity, "error", err)
		}
	})
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))

	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}

	return string(buf), nil
}
