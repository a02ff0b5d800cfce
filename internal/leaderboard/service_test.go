package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/event"
	"github.com/minhvu/quoterush/internal/leaderboard"
)

func TestService_ApplyResult(t *testing.T) {
	s := makeService(t, event.NewBus())

	err := s.ApplyResult(context.Background(), domain.EventResultRecorded{
		Result: domain.GameResult{
			ResultID:   "r1",
			Identity:   "p1",
			Score:      42,
			Mode:       domain.ModeNormal,
			RecordTime: time.Now(),
		},
	})
	require.NoError(t, err)

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		Mode: domain.ModeNormal,
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		Mode: domain.ModeNormal,
		Entries: []domain.LeaderboardEntry{
			{Identity: "p1", Score: 42},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_BoardsAreSeparatedByMode(t *testing.T) {
	s := makeService(t, event.NewBus())

	for _, r := range []domain.GameResult{
		{Identity: "p1", Score: 30, Mode: domain.ModeNormal},
		{Identity: "p2", Score: 11, Mode: domain.ModeRush},
	} {
		err := s.ApplyResult(context.Background(), domain.EventResultRecorded{Result: r})
		require.NoError(t, err)
	}

	normal, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{Mode: domain.ModeNormal})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{Identity: "p1", Score: 30}}, normal.Entries)

	rush, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{Mode: domain.ModeRush})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{Identity: "p2", Score: 11}}, rush.Entries)
}

func TestService_PublishThrottling(t *testing.T) {
	tests := map[string]struct {
		results   []domain.GameResult
		wantCount int
	}{
		"one result publishes one board": {
			results: []domain.GameResult{
				{Identity: "p1", Score: 25, Mode: domain.ModeNormal},
			},
			wantCount: 1,
		},
		"a burst for one mode publishes once": {
			results: []domain.GameResult{
				{Identity: "p1", Score: 25, Mode: domain.ModeNormal},
				{Identity: "p2", Score: -5, Mode: domain.ModeNormal},
				{Identity: "p3", Score: 11, Mode: domain.ModeNormal},
			},
			wantCount: 1,
		},
		"different modes publish independently": {
			results: []domain.GameResult{
				{Identity: "p1", Score: 25, Mode: domain.ModeNormal},
				{Identity: "p2", Score: 11, Mode: domain.ModeRush},
			},
			wantCount: 2,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			eb := event.NewBus()

			var mu sync.Mutex
			var published []domain.EventLeaderboardUpdated
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				published = append(published, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, eb)
			for _, r := range tt.results {
				err := s.ApplyResult(context.Background(), domain.EventResultRecorded{Result: r})
				require.NoError(t, err)
			}

			eb.Stop()

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, published, tt.wantCount)
		})
	}
}

func makeService(t *testing.T, eb *event.Bus) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return leaderboard.NewService(leaderboard.Config{
		EventBus: eb,
		Redis:    rc,
		Prefix:   "test",
	})
}
