// Package progressstore keeps the latest progress snapshot of every run so that
// other processes can poll it.
package progressstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
)

var ErrRunNotFound = errors.New("import run not found")

const keyPrefix = "org_import:progress:"

type Store interface {
	Save(ctx context.Context, runID uuid.UUID, state progress.State) error
	Get(ctx context.Context, runID uuid.UUID) (progress.State, error)
}

type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func Key(runID uuid.UUID) string { return keyPrefix + runID.String() }

func (s *RedisStore) Save(ctx context.Context, runID uuid.UUID, state progress.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(runID), payload, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, runID uuid.UUID) (progress.State, error) {
	raw, err := s.client.Get(ctx, Key(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return progress.State{}, ErrRunNotFound
		}
		return progress.State{}, err
	}
	var state progress.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return progress.State{}, err
	}
	return state, nil
}

// MemoryStore is a process-local Store used when Redis is not configured.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[uuid.UUID]progress.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[uuid.UUID]progress.State)}
}

func (s *MemoryStore) Save(_ context.Context, runID uuid.UUID, state progress.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[runID] = state
	return nil
}

func (s *MemoryStore) Get(_ context.Context, runID uuid.UUID) (progress.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[runID]
	if !ok {
		return progress.State{}, ErrRunNotFound
	}
	return state, nil
}

// Attach mirrors tracker changes into store until the tracker reaches a
// terminal stage or the returned stop function is called. Writes happen on a
// separate goroutine and only the most recent state is written, so a slow store
// never holds up tracker dispatch. stop waits for the last write.
func Attach(ctx context.Context, store Store, runID uuid.UUID, tracker *progress.Tracker, logger *logrus.Entry) (stop func()) {
	signal := make(chan struct{}, 1)
	quit := make(chan struct{})
	done := make(chan struct{})

	unsubscribe := tracker.Subscribe(func(progress.State) {
		select {
		case signal <- struct{}{}:
		default:
		}
	})

	write := func() bool {
		// Subscribers may be called out of order; the tracker always holds the latest state.
		state := tracker.State()
		if err := store.Save(ctx, runID, state); err != nil && logger != nil {
			logger.WithError(err).WithField("run_id", runID).Warn("failed to save import progress")
		}
		return state.Stage.Terminal()
	}

	go func() {
		defer close(done)
		defer unsubscribe()
		for {
			select {
			case <-signal:
				if write() {
					return
				}
			case <-quit:
				select {
				case <-signal:
					write()
				default:
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
		<-done
	}
}
