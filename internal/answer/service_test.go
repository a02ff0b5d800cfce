package answer_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/minhvu/quoterush/internal/answer"
	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/roomstore"
)

var base = time.Unix(1_700_000_000, 0)

func TestService_SubmitRecordsServerTimestamp(t *testing.T) {
	svc, store, rs := makeService(t, domain.ModeNormal)
	ctx := context.Background()

	rs.SetTime(base.Add(5 * time.Second))

	require.NoError(t, svc.Submit(ctx, "ABC123", "p1", 0, "a"))

	r, err := store.Get(ctx, "ABC123")
	require.NoError(t, err)
	got := r.Answers[0]["p1"]
	require.Equal(t, "a", got.Answer)
	require.Equal(t, base.Add(5*time.Second).Unix(), got.Timestamp.Unix(),
		"timestamp must come from the store clock, not the client")
}

func TestService_SubmitIsWriteOnce(t *testing.T) {
	svc, store, _ := makeService(t, domain.ModeNormal)
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, "ABC123", "p1", 0, "b"))

	err := svc.Submit(ctx, "ABC123", "p1", 0, "a")
	require.True(t, errors.Is(err, errors.CodeAlreadyExists), "got %v", err)

	r, err := store.Get(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "b", r.Answers[0]["p1"].Answer, "first submission must stand")
}

func TestService_SubmitValidation(t *testing.T) {
	tests := map[string]struct {
		prepare  func(t *testing.T, store *roomstore.Store)
		identity string
		index    int
		wantCode errors.Code
	}{
		"unknown room is not found": {
			prepare: func(t *testing.T, store *roomstore.Store) {
				require.NoError(t, store.Delete(context.Background(), "ABC123"))
			},
			identity: "p1", index: 0,
			wantCode: errors.CodeNotFound,
		},
		"stale question index is rejected": {
			identity: "p1", index: 1,
			wantCode: errors.CodeFailedPrecondition,
		},
		"unknown player is rejected": {
			identity: "ghost", index: 0,
			wantCode: errors.CodeNotFound,
		},
		"waiting room is rejected": {
			prepare: func(t *testing.T, store *roomstore.Store) {
				require.NoError(t, store.SetFields(context.Background(), "ABC123", map[string]string{
					roomstore.FieldStatus: string(domain.StatusWaiting),
				}))
			},
			identity: "p1", index: 0,
			wantCode: errors.CodeFailedPrecondition,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			svc, store, _ := makeService(t, domain.ModeNormal)
			if tt.prepare != nil {
				tt.prepare(t, store)
			}

			err := svc.Submit(context.Background(), "ABC123", tt.identity, tt.index, "a")
			require.True(t, errors.Is(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestService_RushWrongAnswerLocksOut(t *testing.T) {
	svc, store, _ := makeService(t, domain.ModeRush)
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, "ABC123", "p1", 0, "b"))

	r, err := store.Get(ctx, "ABC123")
	require.NoError(t, err)
	require.True(t, r.IsLockedOut(0, "p1"))

	// The lockout carries over to the same question, not to later ones.
	require.False(t, r.IsLockedOut(1, "p1"))
}

func TestService_RushLockedOutPlayerCannotRetry(t *testing.T) {
	svc, store, _ := makeService(t, domain.ModeRush)
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, "ABC123", "p1", 0, "b"))

	err := svc.Submit(ctx, "ABC123", "p1", 0, "a")
	require.True(t, errors.Is(err, errors.CodeAlreadyExists), "got %v", err)

	// A lockout written by another instance rejects the player even
	// before any answer of theirs exists.
	require.NoError(t, store.SetFields(ctx, "ABC123", map[string]string{
		roomstore.LockedField(0): roomstore.EncodeLocked([]string{"p2"}),
	}))

	err = svc.Submit(ctx, "ABC123", "p2", 0, "a")
	require.True(t, errors.Is(err, errors.CodeFailedPrecondition), "got %v", err)
}

func TestService_RushRejectsAfterQuestionWon(t *testing.T) {
	svc, _, _ := makeService(t, domain.ModeRush)
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, "ABC123", "p1", 0, "a"))

	err := svc.Submit(ctx, "ABC123", "p2", 0, "a")
	require.True(t, errors.Is(err, errors.CodeFailedPrecondition), "got %v", err)
}

func makeService(t *testing.T, mode domain.Mode) (*answer.Service, *roomstore.Store, *miniredis.Miniredis) {
	rs := miniredis.RunT(t)
	rs.SetTime(base)

	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	store := roomstore.New(roomstore.Config{Redis: rc, Prefix: "test"})
	ctx := context.Background()

	qs := []domain.Question{
		{QuestionText: "q0", Options: []string{"a", "b"}, CorrectAnswer: "a", Type: 1},
		{QuestionText: "q1", Options: []string{"a", "b"}, CorrectAnswer: "b", Type: 1},
	}
	require.NoError(t, store.Create(ctx, "ABC123", map[string]string{
		roomstore.FieldStatus:                   string(domain.StatusInGame),
		roomstore.FieldCreatorID:                "p1",
		roomstore.FieldCreatedAt:                roomstore.EncodeTime(base),
		roomstore.FieldDifficulty:               string(domain.DifficultyEasy),
		roomstore.FieldQuestionCount:            roomstore.EncodeInt(len(qs)),
		roomstore.FieldGameMode:                 string(mode),
		roomstore.FieldQuestions:                roomstore.EncodeQuestions(qs),
		roomstore.FieldCurrentQuestionIndex:     roomstore.EncodeInt(0),
		roomstore.FieldCurrentQuestionStartTime: roomstore.EncodeTime(base),
		roomstore.PlayerField("p1"):             roomstore.EncodePlayer(domain.Player{Name: "Alice", IsReady: true}),
		roomstore.PlayerField("p2"):             roomstore.EncodePlayer(domain.Player{Name: "Bob", IsReady: true}),
	}))

	return answer.NewService(answer.Config{Store: store}), store, rs
}
