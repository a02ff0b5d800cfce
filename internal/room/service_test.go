package room_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/room"
	"github.com/minhvu/quoterush/internal/roomstore"
)

func TestService_CreateRoom(t *testing.T) {
	svc, store := makeService(t)
	ctx := context.Background()

	code, err := svc.Create(ctx, "p1", "Alice")
	require.NoError(t, err)
	require.Len(t, code, 6)
	require.Regexp(t, `^[A-Z0-9]{6}$`, code)

	r, err := store.Get(ctx, code)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaiting, r.Status)
	require.Equal(t, "p1", r.CreatorID)
	require.Equal(t, map[string]domain.Player{
		"p1": {Name: "Alice", Score: 0, IsReady: false},
	}, r.Players)
}

func TestService_JoinIsIdempotent(t *testing.T) {
	svc, store := makeService(t)
	ctx := context.Background()

	code, err := svc.Create(ctx, "p1", "Alice")
	require.NoError(t, err)

	require.NoError(t, svc.Join(ctx, code, "p2", "Bob"))

	// Simulate mid-lobby state for p2, then join again.
	require.NoError(t, store.SetFields(ctx, code, map[string]string{
		roomstore.PlayerField("p2"): roomstore.EncodePlayer(domain.Player{Name: "Bob", Score: 7, IsReady: true}),
	}))

	require.NoError(t, svc.Join(ctx, code, "p2", "Bob"))

	r, err := store.Get(ctx, code)
	require.NoError(t, err)
	require.Equal(t, domain.Player{Name: "Bob", Score: 7, IsReady: true}, r.Players["p2"],
		"second join must not reset score or ready state")
}

func TestService_JoinErrors(t *testing.T) {
	svc, store := makeService(t)
	ctx := context.Background()

	err := svc.Join(ctx, "NOPE42", "p2", "Bob")
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)

	code, err := svc.Create(ctx, "p1", "Alice")
	require.NoError(t, err)

	require.NoError(t, store.SetFields(ctx, code, map[string]string{
		roomstore.FieldStatus: string(domain.StatusInGame),
	}))

	err = svc.Join(ctx, code, "p2", "Bob")
	require.True(t, errors.Is(err, errors.CodeFailedPrecondition), "got %v", err)
}

func TestService_LastLeaveDeletesRoom(t *testing.T) {
	svc, store := makeService(t)
	ctx := context.Background()

	code, err := svc.Create(ctx, "p1", "Alice")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, code, "p2", "Bob"))

	require.NoError(t, svc.Leave(ctx, code, "p2"))

	r, err := store.Get(ctx, code)
	require.NoError(t, err)
	require.NotContains(t, r.Players, "p2")

	require.NoError(t, svc.Leave(ctx, code, "p1"))

	_, err = store.Get(ctx, code)
	require.True(t, errors.Is(err, errors.CodeNotFound), "empty room must be deleted")

	err = svc.Join(ctx, code, "p3", "Carol")
	require.True(t, errors.Is(err, errors.CodeNotFound), "joining a deleted room must fail")
}

func TestService_LeaveIsIdempotent(t *testing.T) {
	svc, _ := makeService(t)
	ctx := context.Background()

	code, err := svc.Create(ctx, "p1", "Alice")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, code, "p2", "Bob"))

	require.NoError(t, svc.Leave(ctx, code, "p2"))
	require.NoError(t, svc.Leave(ctx, code, "p2"))

	// Leaving a room that is already gone is a no-op as well.
	require.NoError(t, svc.Leave(ctx, code, "p1"))
	require.NoError(t, svc.Leave(ctx, code, "p1"))
}

func TestService_WatchPresenceRemovesPlayerOnDisconnect(t *testing.T) {
	svc, store := makeService(t)
	ctx := context.Background()

	code, err := svc.Create(ctx, "p1", "Alice")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, code, "p2", "Bob"))

	sessionCtx, disconnect := context.WithCancel(ctx)
	svc.WatchPresence(sessionCtx, code, "p2")

	disconnect()

	require.Eventually(t, func() bool {
		r, err := store.Get(ctx, code)
		if err != nil {
			return false
		}
		_, ok := r.Players["p2"]
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "disconnect hook should remove the player")
}

func makeService(t *testing.T) (*room.Service, *roomstore.Store) {
	rs := miniredis.RunT(t)

	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	store := roomstore.New(roomstore.Config{Redis: rc, Prefix: "test"})
	return room.NewService(room.Config{Store: store}), store
}
