package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/minhvu/quoterush/internal/clock"
	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
	"github.com/minhvu/quoterush/internal/event"
	"github.com/minhvu/quoterush/internal/roomstore"
	"github.com/minhvu/quoterush/internal/telemetry"
)

const (
	// idleWake bounds how long the engine sleeps without a change
	// notification outside an open question.
	idleWake = 15 * time.Second
	// closeGrace pads the deadline wake-up so in-flight answer writes
	// near the deadline are observed before scoring.
	closeGrace = 250 * time.Millisecond
)

// ScoreRecorder is the external score-persistence interface. Each
// player session reports its own final score exactly once.
type ScoreRecorder interface {
	RecordGameResult(ctx context.Context, identity string, score int, mode domain.Mode) error
}

// Limits overrides per-difficulty question time limits.
type Limits map[domain.Difficulty]time.Duration

func (l Limits) For(d domain.Difficulty) time.Duration {
	if v, ok := l[d]; ok {
		return v
	}
	return d.TimeLimit()
}

type Config struct {
	Store    *roomstore.Store
	Scores   ScoreRecorder
	EventBus *event.Bus
	// Clock defaults to the real clock; tests inject a fake.
	Clock  clockwork.Clock
	Limits Limits

	Code     string
	Identity string
}

// Engine is one participant's view of the game session state machine.
// Every participant runs one; only the engine whose identity matches
// the room's creator ever writes derived state (scores, question
// cursor, phase). All progress is re-derived from the durable document
// on every wake-up, never from in-memory state, so a crashed or
// disconnected creator resumes cleanly wherever the document stands.
type Engine struct {
	store  *roomstore.Store
	scores ScoreRecorder
	eb     *event.Bus
	clk    clockwork.Clock
	sync   *clock.Sync
	limits Limits

	code     string
	identity string

	// processed marks question indexes this engine already advanced,
	// so a burst of change notifications cannot double-score one
	// question. Cleared when the room returns to the lobby.
	processed map[int]bool
	// reported guards the one-shot score report for this session.
	reported bool
}

func New(c Config) *Engine {
	clk := c.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Engine{
		store:  c.Store,
		scores: c.Scores,
		eb:     c.EventBus,
		clk:    clk,
		sync: clock.New(clock.Config{
			Source: c.Store,
			Clock:  clk,
		}),
		limits:    c.Limits,
		code:      c.Code,
		identity:  c.Identity,
		processed: make(map[int]bool),
	}
}

// Run evaluates the room on every change notification and on timer
// deadlines until the context ends or the room is deleted. Evaluation
// failures are logged and retried on the next wake-up; the document is
// the only source of truth, so a missed pass is never fatal.
func (e *Engine) Run(ctx context.Context) error {
	ch, stop := e.store.Subscribe(ctx, e.code)
	defer stop()

	if err := e.sync.Sample(ctx); err != nil {
		slog.WarnContext(ctx, "game: clock sample failed", "room", e.code, "error", err)
	}

	for {
		next, err := e.Evaluate(ctx)
		if errors.Is(err, errors.CodeNotFound) {
			return nil
		}
		if err != nil {
			slog.WarnContext(ctx, "game: evaluate failed, will retry", "room", e.code, "identity", e.identity, "error", err)
		}

		timer := e.clk.NewTimer(next)
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()
		case <-ch:
		case <-timer.Chan():
		}
		stopTimer(timer)
	}
}

// Evaluate runs one pass of the state machine against the current
// document and returns how long to sleep before the next pass absent
// a change notification.
func (e *Engine) Evaluate(ctx context.Context) (time.Duration, error) {
	r, err := e.store.Get(ctx, e.code)
	if err != nil {
		return idleWake, err
	}

	switch r.Status {
	case domain.StatusWaiting:
		// A reset happened; next game starts fresh.
		e.processed = make(map[int]bool)
		e.reported = false
		return idleWake, nil

	case domain.StatusInGame:
		limit := e.limits.For(r.Difficulty)

		if r.CreatorID == e.identity {
			if err := e.maybeAdvance(ctx, r, limit); err != nil {
				return closeGrace, err
			}
		}

		return e.sync.Remaining(r.CurrentQuestionStartTime, limit) + closeGrace, nil

	case domain.StatusFinished:
		return idleWake, e.maybeReport(ctx, r)

	default:
		return idleWake, nil
	}
}

// maybeAdvance performs the closed->advance transition once per
// question index: score deltas plus either the next-question cursor or
// the finished status, all in one combined write.
func (e *Engine) maybeAdvance(ctx context.Context, r *domain.Room, limit time.Duration) error {
	idx := r.CurrentQuestionIndex
	if e.processed[idx] {
		return nil
	}
	if !questionClosed(r, limit, e.sync.Now()) {
		return nil
	}

	fields := make(map[string]string)
	for id, delta := range scoreDeltas(r, limit) {
		p := r.Players[id]
		p.Score += delta
		fields[roomstore.PlayerField(id)] = roomstore.EncodePlayer(p)
	}

	last := idx == len(r.Questions)-1
	if last {
		fields[roomstore.FieldStatus] = string(domain.StatusFinished)
	} else {
		now, err := e.store.ServerTime(ctx)
		if err != nil {
			return err
		}

		fields[roomstore.FieldCurrentQuestionIndex] = roomstore.EncodeInt(idx + 1)
		fields[roomstore.FieldCurrentQuestionStartTime] = roomstore.EncodeTime(now)
		if hint := preloadHint(r.Questions[idx+1]); hint != "" {
			fields[roomstore.FieldPreloadMediaURL] = hint
		}
	}

	if err := e.store.SetFields(ctx, e.code, fields); err != nil {
		// Left closed-but-not-advanced; the next notification or
		// deadline wake retries from the document.
		return err
	}
	e.processed[idx] = true

	if _, ok := r.LockedPlayers[idx]; ok {
		// Lockouts are meaningless once the question closed.
		if err := e.store.DelFields(ctx, e.code, roomstore.LockedField(idx)); err != nil {
			slog.WarnContext(ctx, "game: clear lockouts failed", "room", e.code, "question", idx, "error", err)
		}
	}

	if last {
		telemetry.GamesFinished.Inc()
		e.publishFinished(ctx, r, fields)
	} else {
		telemetry.QuestionsAdvanced.Inc()
	}

	return nil
}

// maybeReport sends this session's own final score to the score
// recorder, once. The guard is local to the session: a second device
// on the same identity reports independently.
func (e *Engine) maybeReport(ctx context.Context, r *domain.Room) error {
	if e.reported || e.scores == nil {
		return nil
	}

	p, ok := r.Players[e.identity]
	if !ok {
		return nil
	}

	if err := e.scores.RecordGameResult(ctx, e.identity, p.Score, r.GameMode); err != nil {
		slog.WarnContext(ctx, "game: score report failed", "room", e.code, "identity", e.identity, "error", err)
		return err
	}

	e.reported = true
	return nil
}

func (e *Engine) publishFinished(ctx context.Context, r *domain.Room, written map[string]string) {
	if e.eb == nil {
		return
	}

	scores := make(map[string]int, len(r.Players))
	for id, p := range r.Players {
		scores[id] = p.Score
	}
	// Fold in the deltas just written.
	for id := range r.Players {
		if enc, ok := written[roomstore.PlayerField(id)]; ok {
			var p domain.Player
			if err := json.Unmarshal([]byte(enc), &p); err == nil {
				scores[id] = p.Score
			}
		}
	}

	e.eb.Publish(ctx, domain.EventGameFinished{
		Code:   e.code,
		Mode:   r.GameMode,
		Scores: scores,
	})
}

// preloadHint picks the next question's media URL so clients can warm
// caches during the advance. Advisory only.
func preloadHint(q domain.Question) string {
	if q.Media == nil {
		return ""
	}
	if q.Media.ImageURL != "" {
		return q.Media.ImageURL
	}
	return q.Media.AudioURL
}

func stopTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
