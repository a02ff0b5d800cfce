package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	topSize         = 20
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps a per-mode global leaderboard of recorded game
// results on a redis sorted set. A later result for the same identity
// overwrites the earlier score.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameResultRecorded, func(ctx context.Context, e event.Event) error {
		return s.ApplyResult(ctx, e.(domain.EventResultRecorded))
	})

	return s
}

type GetLeaderboardRequest struct {
	Mode domain.Mode
}

// GetLeaderboard returns the top entries for a game mode.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.boardKey(req.Mode), 0, topSize-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: mode=%s", req.Mode))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Identity: z.Member.(string),
			Score:    int(z.Score),
		})
	}

	return &domain.Leaderboard{
		Mode:    req.Mode,
		Entries: entries,
	}, nil
}

// ApplyResult folds a recorded game result into the mode's board.
func (s *Service) ApplyResult(ctx context.Context, e domain.EventResultRecorded) error {
	r := e.Result

	if err := s.redis.ZAdd(ctx, s.boardKey(r.Mode), redis.Z{
		Score:  float64(r.Score),
		Member: r.Identity,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublish(ctx, r.Mode)
}

// schedulePublish throttles leaderboard-updated events: a game ending
// produces one result per player in a burst, and one published board
// per interval is enough.
func (s *Service) schedulePublish(ctx context.Context, mode domain.Mode) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(mode), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{Mode: mode})
	if err != nil {
		return fmt.Errorf("get leaderboard: mode=%s: %w", mode, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) boardKey(mode domain.Mode) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, mode)
}

func (s *Service) throttleKey(mode domain.Mode) string {
	return fmt.Sprintf("%s:%s:published", s.prefix, mode)
}
