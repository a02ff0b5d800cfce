package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/minhvu/quoterush/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	LeaderboardData struct {
		Mode    string             `json:"mode"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Identity string `json:"identity"`
		Score    int    `json:"score"`
	}

	GameFinishedData struct {
		Code   string         `json:"code"`
		Mode   string         `json:"mode"`
		Scores map[string]int `json:"scores"`
	}
)

// PublishLeaderboardUpdated pushes the fresh board to every listed
// identity's notification channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := LeaderboardData{
		Mode:    string(l.Mode),
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			Identity: entry.Identity,
			Score:    entry.Score,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Identity, e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishGameFinished notifies every player of the room's final
// scores.
func (a *API) PublishGameFinished(ctx context.Context, e domain.EventGameFinished) error {
	data := GameFinishedData{
		Code:   e.Code,
		Mode:   string(e.Mode),
		Scores: e.Scores,
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for identity := range e.Scores {
		identity := identity
		eg.Go(func() error {
			return a.publishNotification(ctx, identity, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, identity, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, identity), b).Err()
}
