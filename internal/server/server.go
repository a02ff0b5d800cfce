package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/minhvu/quoterush/internal/answer"
	"github.com/minhvu/quoterush/internal/api"
	"github.com/minhvu/quoterush/internal/event"
	"github.com/minhvu/quoterush/internal/leaderboard"
	"github.com/minhvu/quoterush/internal/lobby"
	"github.com/minhvu/quoterush/internal/question"
	"github.com/minhvu/quoterush/internal/room"
	"github.com/minhvu/quoterush/internal/roomstore"
	"github.com/minhvu/quoterush/internal/score"
	"github.com/minhvu/quoterush/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Room struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Score struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Question struct {
		BaseURL string
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			room        redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			score *pgxpool.Pool
		}
	}

	service struct {
		store       *roomstore.Store
		rooms       *room.Service
		lobby       *lobby.Service
		answers     *answer.Service
		score       *score.Service
		leaderboard *leaderboard.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.room, err = connect(s.c.Redis.Room.Addrs, s.c.Redis.Room.Pass)
	if err != nil {
		return fmt.Errorf("room: %w", err)
	}

	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres.Score
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("score: %w", err)
	}

	s.infra.postgres.score = db
	return nil
}

func (s *Server) initService() {
	s.service.store = roomstore.New(roomstore.Config{
		Redis:  s.infra.redis.room,
		Prefix: s.c.Redis.Room.Prefix,
	})

	s.service.rooms = room.NewService(room.Config{
		Store: s.service.store,
	})

	s.service.lobby = lobby.NewService(lobby.Config{
		Store: s.service.store,
		Questions: question.NewClient(question.ClientConfig{
			BaseURL: s.c.Question.BaseURL,
		}),
	})

	s.service.answers = answer.NewService(answer.Config{
		Store: s.service.store,
	})

	s.service.score = score.NewService(score.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres.score,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPLogger())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Store:        s.service.store,
		Rooms:        s.service.rooms,
		Lobby:        s.service.lobby,
		Answers:      s.service.answers,
		Leaderboard:  s.service.leaderboard,
		Scores:       s.service.score,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()
	s.infra.postgres.score.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}
