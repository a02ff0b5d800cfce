package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/minhvu/quoterush/internal/answer"
	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/event"
	"github.com/minhvu/quoterush/internal/game"
	"github.com/minhvu/quoterush/internal/leaderboard"
	"github.com/minhvu/quoterush/internal/lobby"
	"github.com/minhvu/quoterush/internal/room"
	"github.com/minhvu/quoterush/internal/roomstore"
)

type Config struct {
	Router   gin.IRouter
	EventBus *event.Bus

	Store       *roomstore.Store
	Rooms       *room.Service
	Lobby       *lobby.Service
	Answers     *answer.Service
	Leaderboard *leaderboard.Service

	Scores     game.ScoreRecorder
	GameLimits game.Limits

	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// API exposes the room document read model and the mutation entry
// points as JSON over HTTP, plus a websocket room feed.
type API struct {
	store   *roomstore.Store
	rooms   *room.Service
	lobby   *lobby.Service
	answers *answer.Service
	ls      *leaderboard.Service

	eb     *event.Bus
	scores game.ScoreRecorder
	limits game.Limits

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		store:   c.Store,
		rooms:   c.Rooms,
		lobby:   c.Lobby,
		answers: c.Answers,
		ls:      c.Leaderboard,
		eb:      c.EventBus,
		scores:  c.Scores,
		limits:  c.GameLimits,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	v1.POST("/rooms", a.createRoom)
	v1.GET("/rooms/:code", a.getRoom)
	v1.GET("/rooms/:code/ws", a.roomSocket)
	v1.POST("/rooms/:code/join", a.joinRoom)
	v1.POST("/rooms/:code/leave", a.leaveRoom)
	v1.POST("/rooms/:code/ready", a.setReady)
	v1.PATCH("/rooms/:code/settings", a.updateSetting)
	v1.POST("/rooms/:code/start", a.startGame)
	v1.POST("/rooms/:code/reset", a.resetToLobby)
	v1.POST("/rooms/:code/answers", a.submitAnswer)
	v1.GET("/leaderboard/:mode", a.getLeaderboard)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameGameFinished, func(ctx context.Context, e event.Event) error {
		return a.PublishGameFinished(ctx, e.(domain.EventGameFinished))
	})

	return a
}

type identityRequest struct {
	Identity string `json:"identity" binding:"required"`
	Name     string `json:"name"`
}

func (a *API) createRoom(c *gin.Context) {
	var req identityRequest
	if !bindJSON(c, &req) {
		return
	}

	code, err := a.rooms.Create(c.Request.Context(), req.Identity, req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": code})
}

func (a *API) getRoom(c *gin.Context) {
	r, err := a.store.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) joinRoom(c *gin.Context) {
	var req identityRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := a.rooms.Join(c.Request.Context(), c.Param("code"), req.Identity, req.Name); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) leaveRoom(c *gin.Context) {
	var req identityRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := a.rooms.Leave(c.Request.Context(), c.Param("code"), req.Identity); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) setReady(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Ready    *bool  `json:"ready" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := a.lobby.SetReady(c.Request.Context(), c.Param("code"), req.Identity, *req.Ready); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) updateSetting(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Key      string `json:"key" binding:"required"`
		Value    string `json:"value" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := a.lobby.UpdateSetting(c.Request.Context(), c.Param("code"), req.Identity, req.Key, req.Value); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) startGame(c *gin.Context) {
	var req identityRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := a.lobby.StartGame(c.Request.Context(), c.Param("code"), req.Identity); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) resetToLobby(c *gin.Context) {
	var req identityRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := a.lobby.ResetToLobby(c.Request.Context(), c.Param("code"), req.Identity); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) submitAnswer(c *gin.Context) {
	var req struct {
		Identity      string `json:"identity" binding:"required"`
		QuestionIndex *int   `json:"question_index" binding:"required"`
		Answer        string `json:"answer" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := a.answers.Submit(c.Request.Context(), c.Param("code"), req.Identity, *req.QuestionIndex, req.Answer); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Mode: domain.Mode(c.Param("mode")),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err),
		))
		return false
	}
	return true
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
