package roomstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/roomstore"
)

var base = time.Unix(1_700_000_000, 0)

func TestStore_CreateAndGet(t *testing.T) {
	s, _ := makeStore(t)
	ctx := context.Background()

	err := s.Create(ctx, "ABC123", initialFields("p1"))
	require.NoError(t, err)

	r, err := s.Get(ctx, "ABC123")
	require.NoError(t, err)

	require.Equal(t, "ABC123", r.Code)
	require.Equal(t, domain.StatusWaiting, r.Status)
	require.Equal(t, "p1", r.CreatorID)
	require.Equal(t, base.UnixMilli(), r.CreatedAt.UnixMilli())
	require.Equal(t, domain.DifficultyEasy, r.Difficulty)
	require.Equal(t, 5, r.QuestionCount)
	require.Equal(t, domain.ModeNormal, r.GameMode)
	require.Equal(t, -1, r.CurrentQuestionIndex, "no question cursor outside a game")
	require.Equal(t, map[string]domain.Player{"p1": {Name: "Host"}}, r.Players)
	require.Empty(t, r.Questions)
	require.Empty(t, r.Answers)
}

func TestStore_CreateCollision(t *testing.T) {
	s, _ := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "ABC123", initialFields("p1")))

	err := s.Create(ctx, "ABC123", initialFields("p2"))
	require.True(t, errors.Is(err, errors.CodeAlreadyExists), "got %v", err)

	r, err := s.Get(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "p1", r.CreatorID, "existing room must not be overwritten")
}

func TestStore_SetFieldNXIsWriteOnce(t *testing.T) {
	s, _ := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "ABC123", initialFields("p1")))

	field := roomstore.AnswerField(0, "p1")
	first := roomstore.EncodeAnswer(domain.Answer{Answer: "a", Timestamp: base})
	second := roomstore.EncodeAnswer(domain.Answer{Answer: "b", Timestamp: base.Add(time.Second)})

	set, err := s.SetFieldNX(ctx, "ABC123", field, first)
	require.NoError(t, err)
	require.True(t, set)

	set, err = s.SetFieldNX(ctx, "ABC123", field, second)
	require.NoError(t, err)
	require.False(t, set)

	r, err := s.Get(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "a", r.Answers[0]["p1"].Answer, "first answer must survive a second write")
}

func TestStore_CombinedWriteIsVisibleAsAUnit(t *testing.T) {
	s, _ := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "ABC123", initialFields("p1")))

	qs := []domain.Question{{
		QuestionText:  "Who said it?",
		Options:       []string{"a", "b"},
		CorrectAnswer: "a",
		Type:          1,
	}}
	err := s.SetFields(ctx, "ABC123", map[string]string{
		roomstore.FieldStatus:                   string(domain.StatusInGame),
		roomstore.FieldQuestions:                roomstore.EncodeQuestions(qs),
		roomstore.FieldCurrentQuestionIndex:     roomstore.EncodeInt(0),
		roomstore.FieldCurrentQuestionStartTime: roomstore.EncodeTime(base.Add(time.Minute)),
	})
	require.NoError(t, err)

	r, err := s.Get(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, domain.StatusInGame, r.Status)
	require.Equal(t, 0, r.CurrentQuestionIndex)
	require.Equal(t, qs, r.Questions)
	require.Equal(t, base.Add(time.Minute).UnixMilli(), r.CurrentQuestionStartTime.UnixMilli())
}

func TestStore_SubscribeSignalsOnWrite(t *testing.T) {
	s, _ := makeStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Create(ctx, "ABC123", initialFields("p1")))

	ch, stop := s.Subscribe(ctx, "ABC123")
	defer stop()

	// The subscription handshake is asynchronous.
	time.Sleep(100 * time.Millisecond)

	err := s.SetFields(ctx, "ABC123", map[string]string{
		roomstore.PlayerField("p2"): roomstore.EncodePlayer(domain.Player{Name: "P2"}),
	})
	require.NoError(t, err)

	select {
	case <-ch:
	case <-ctx.Done():
		t.Fatal("no change signal received")
	}
}

func TestStore_DeleteRemovesRoom(t *testing.T) {
	s, _ := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "ABC123", initialFields("p1")))
	require.NoError(t, s.Delete(ctx, "ABC123"))

	_, err := s.Get(ctx, "ABC123")
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func TestStore_ServerTime(t *testing.T) {
	s, rs := makeStore(t)

	rs.SetTime(base.Add(42 * time.Second))

	got, err := s.ServerTime(context.Background())
	require.NoError(t, err)
	require.Equal(t, base.Add(42*time.Second).Unix(), got.Unix())
}

func TestStore_DecodeRoomWithGameState(t *testing.T) {
	s, _ := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "ABC123", initialFields("p1")))
	require.NoError(t, s.SetFields(ctx, "ABC123", map[string]string{
		roomstore.AnswerField(0, "p1"): roomstore.EncodeAnswer(domain.Answer{Answer: "a", Timestamp: base.Add(5 * time.Second)}),
		roomstore.AnswerField(1, "p1"): roomstore.EncodeAnswer(domain.Answer{Answer: "b", Timestamp: base.Add(40 * time.Second)}),
		roomstore.LockedField(1):       roomstore.EncodeLocked([]string{"p1"}),
	}))

	r, err := s.Get(ctx, "ABC123")
	require.NoError(t, err)

	require.Equal(t, "a", r.Answers[0]["p1"].Answer)
	require.Equal(t, base.Add(5*time.Second).UnixMilli(), r.Answers[0]["p1"].Timestamp.UnixMilli())
	require.Equal(t, "b", r.Answers[1]["p1"].Answer)
	require.True(t, r.IsLockedOut(1, "p1"))
	require.False(t, r.IsLockedOut(0, "p1"))
}

func makeStore(t *testing.T) (*roomstore.Store, *miniredis.Miniredis) {
	rs := miniredis.RunT(t)
	rs.SetTime(base)

	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	return roomstore.New(roomstore.Config{Redis: rc, Prefix: "test"}), rs
}

func initialFields(creator string) map[string]string {
	return map[string]string{
		roomstore.FieldStatus:          string(domain.StatusWaiting),
		roomstore.FieldCreatorID:       creator,
		roomstore.FieldCreatedAt:       roomstore.EncodeTime(base),
		roomstore.FieldDifficulty:      string(domain.DifficultyEasy),
		roomstore.FieldQuestionCount:   roomstore.EncodeInt(5),
		roomstore.FieldGameMode:        string(domain.ModeNormal),
		roomstore.PlayerField(creator): roomstore.EncodePlayer(domain.Player{Name: "Host"}),
	}
}
