package score

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/event"
)

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

// Service persists finished-game results. Reports are fire-and-forget
// from the game's perspective; duplicates from a second session of the
// same identity are stored as separate rows, not merged.
type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		eb: c.EventBus,
		db: c.DB,
	}
}

// RecordGameResult stores one player session's final score.
func (s *Service) RecordGameResult(ctx context.Context, identity string, score int, mode domain.Mode) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate result ID: %w", err)
	}

	const stmt = `
INSERT INTO game_results (result_id, identity, score, mode, create_time)
VALUES ($1, $2, $3, $4, now())
RETURNING create_time;`

	result := domain.GameResult{
		ResultID: id.String(),
		Identity: identity,
		Score:    score,
		Mode:     mode,
	}
	if err := s.db.QueryRow(ctx, stmt, id, identity, score, string(mode)).Scan(&result.RecordTime); err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}

	s.eb.Publish(ctx, domain.EventResultRecorded{
		Result: result,
	})

	return nil
}

type ListResultsRequest struct {
	Identity string
	Limit    int
}

// ListResults returns an identity's recorded games, newest first.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]domain.GameResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	const stmt = `
SELECT result_id, score, mode, create_time
FROM game_results
WHERE identity = $1
ORDER BY create_time DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, req.Identity, limit)
	if err != nil {
		return nil, err
	}

	results, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.GameResult, error) {
		res := domain.GameResult{Identity: req.Identity}
		if err := r.Scan(&res.ResultID, &res.Score, &res.Mode, &res.RecordTime); err != nil {
			return domain.GameResult{}, err
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}
