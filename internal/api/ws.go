package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// roomSocket attaches one player session to a room: it streams the
// full room document on every change, runs that session's game engine,
// and doubles as the presence hook — when the socket drops, the player
// is removed as if they had left.
func (a *API) roomSocket(c *gin.Context) {
	code := c.Param("code")
	identity := c.Query("identity")
	if identity == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("identity query parameter is required")))
		return
	}

	r, err := a.store.Get(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if _, ok := r.Players[identity]; !ok {
		abortWithError(c, errors.New(errors.CodeNotFound, errors.WithMessagef("player %s is not in room %s", identity, code)))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "ws: upgrade failed", "room", code, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	a.rooms.WatchPresence(ctx, code, identity)

	eng := game.New(game.Config{
		Store:    a.store,
		Scores:   a.scores,
		EventBus: a.eb,
		Limits:   a.limits,
		Code:     code,
		Identity: identity,
	})
	go func() {
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "ws: engine stopped", "room", code, "identity", identity, "error", err)
		}
	}()

	// Read pump: we only care about the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch, stop := a.store.Subscribe(ctx, code)
	defer stop()

	if err := conn.WriteJSON(r); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			r, err := a.store.Get(ctx, code)
			if errors.Is(err, errors.CodeNotFound) {
				// Room torn down; route the client home.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "room deleted"),
					time.Now().Add(time.Second))
				return
			}
			if err != nil {
				slog.WarnContext(ctx, "ws: reload room failed", "room", code, "error", err)
				continue
			}

			if err := conn.WriteJSON(r); err != nil {
				return
			}
		}
	}
}
