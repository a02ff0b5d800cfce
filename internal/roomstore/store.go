package roomstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minhvu/quoterush/internal/domain"
	"github.com/minhvu/quoterush/internal/errors"
)

// Store keeps each room as one redis hash. A single HSET carrying
// several field/value pairs is the "combined write" the state machine
// relies on: readers observe all of its fields or none of them.
// There are no transactions beyond that, and no locks.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

func New(c Config) *Store {
	return &Store{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (s *Store) key(code string) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, code)
}

func (s *Store) channel(code string) string {
	return fmt.Sprintf("%s:room:%s:changed", s.prefix, code)
}

// Create writes the initial room document. The guard on the createdAt
// field makes code collisions observable instead of silently
// overwriting an existing room.
func (s *Store) Create(ctx context.Context, code string, fields map[string]string) error {
	created, ok := fields[FieldCreatedAt]
	if !ok {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("room %s: initial document missing %s", code, FieldCreatedAt))
	}

	set, err := s.redis.HSetNX(ctx, s.key(code), FieldCreatedAt, created).Result()
	if err != nil {
		return fmt.Errorf("roomstore: create %s: %w", code, err)
	}
	if !set {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("room code %s is already in use", code))
	}

	rest := make(map[string]string, len(fields))
	for f, v := range fields {
		if f != FieldCreatedAt {
			rest[f] = v
		}
	}

	if err := s.redis.HSet(ctx, s.key(code), rest).Err(); err != nil {
		return fmt.Errorf("roomstore: create %s: %w", code, err)
	}

	s.notify(ctx, code)
	return nil
}

// Get reads and decodes the full room document.
func (s *Store) Get(ctx context.Context, code string) (*domain.Room, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("roomstore: get %s: %w", code, err)
	}

	if len(fields) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("room %s not found", code))
	}

	return DecodeRoom(code, fields)
}

// SetFields writes one or more fields as a single atomic update and
// notifies subscribers.
func (s *Store) SetFields(ctx context.Context, code string, fields map[string]string) error {
	if err := s.redis.HSet(ctx, s.key(code), fields).Err(); err != nil {
		return fmt.Errorf("roomstore: set fields on %s: %w", code, err)
	}

	s.notify(ctx, code)
	return nil
}

// SetFieldNX writes a field only if it is absent. Returns false when
// the field already existed; the stored value is left untouched.
func (s *Store) SetFieldNX(ctx context.Context, code, field, value string) (bool, error) {
	set, err := s.redis.HSetNX(ctx, s.key(code), field, value).Result()
	if err != nil {
		return false, fmt.Errorf("roomstore: set %s on %s: %w", field, code, err)
	}

	if set {
		s.notify(ctx, code)
	}
	return set, nil
}

// DelFields removes fields from the room document.
func (s *Store) DelFields(ctx context.Context, code string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	if err := s.redis.HDel(ctx, s.key(code), fields...).Err(); err != nil {
		return fmt.Errorf("roomstore: del fields on %s: %w", code, err)
	}

	s.notify(ctx, code)
	return nil
}

// Delete removes the whole room document.
func (s *Store) Delete(ctx context.Context, code string) error {
	if err := s.redis.Del(ctx, s.key(code)).Err(); err != nil {
		return fmt.Errorf("roomstore: delete %s: %w", code, err)
	}

	s.notify(ctx, code)
	return nil
}

// ServerTime returns the store server's clock. All authoritative
// timestamps (question starts, answer writes) come from here so that
// client clock skew never leaks into the document.
func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	t, err := s.redis.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("roomstore: server time: %w", err)
	}

	return t, nil
}

// Subscribe returns a coalesced change signal for the room. The
// channel fires after any write to the document; consecutive writes
// may collapse into one signal, so consumers must re-read the full
// document rather than assume a delta. The returned stop function
// releases the subscription.
func (s *Store) Subscribe(ctx context.Context, code string) (<-chan struct{}, func()) {
	ps := s.redis.Subscribe(ctx, s.channel(code))

	ch := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(ch)

		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	stop := func() {
		close(done)
		if err := ps.Close(); err != nil {
			slog.Warn("roomstore: close subscription failed", "room", code, "error", err)
		}
	}

	return ch, stop
}

// WatchPresence runs onDrop once the session context ends. This is the
// best-effort "remove me if my connection drops" hook: it can race a
// manual leave and never fires on ungraceful process death, so all
// readers must tolerate stale player entries.
func (s *Store) WatchPresence(ctx context.Context, code, identity string, onDrop func(ctx context.Context)) {
	go func() {
		<-ctx.Done()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		onDrop(dctx)
	}()
}

func (s *Store) notify(ctx context.Context, code string) {
	if err := s.redis.Publish(ctx, s.channel(code), "changed").Err(); err != nil {
		slog.WarnContext(ctx, "roomstore: publish change failed", "room", code, "error", err)
	}
}
