package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Source supplies the store server's clock.
type Source interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// Sync reconciles the local clock against the store server's clock.
// Countdowns are derived from server-issued timestamps plus the
// sampled offset, so a skewed local clock shows the same remaining
// time as everyone else's.
type Sync struct {
	src   Source
	clock clockwork.Clock

	mu     sync.RWMutex
	offset time.Duration
}

type Config struct {
	Source Source
	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock
}

func New(c Config) *Sync {
	clk := c.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Sync{
		src:   c.Source,
		clock: clk,
	}
}

// Sample refreshes the offset from one server-time round trip. Half
// the round trip is folded into the offset as a rough latency
// correction.
func (s *Sync) Sample(ctx context.Context) error {
	before := s.clock.Now()
	server, err := s.src.ServerTime(ctx)
	if err != nil {
		return err
	}
	rtt := s.clock.Since(before)

	s.mu.Lock()
	s.offset = server.Add(rtt / 2).Sub(before.Add(rtt))
	s.mu.Unlock()

	return nil
}

// Now is the current time on the store server's clock, as estimated
// from the last sample.
func (s *Sync) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.clock.Now().Add(s.offset)
}

// Remaining is the time left on a countdown that started at the
// server-issued start timestamp. Never negative.
func (s *Sync) Remaining(start time.Time, limit time.Duration) time.Duration {
	return Remaining(s.Now(), start, limit)
}

// Remaining computes limit minus elapsed, floored at zero. Pure helper
// shared with the scoring policies.
func Remaining(now, start time.Time, limit time.Duration) time.Duration {
	left := limit - now.Sub(start)
	if left < 0 {
		return 0
	}
	return left
}
