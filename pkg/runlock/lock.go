package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for run locks.
var (
	lockAcquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subgraph_lock_acquired_total",
		Help: "Total number of run locks acquired",
	})

	lockContendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subgraph_lock_contended_total",
		Help: "Total number of lock attempts that found the lock held",
	})
)

var (
	// ErrLocked is returned by Acquire when another owner holds the lock.
	ErrLocked = errors.New("run lock is held by another process")

	// ErrNotHeld is returned by Refresh and Release when the lock expired or changed owner.
	ErrNotHeld = errors.New("run lock is no longer held")
)

// The value is only touched when it still carries our token.
var (
	releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local ok, s = pcall(cjson.decode, v)
if ok and s["token"] == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

	refreshScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local ok, s = pcall(cjson.decode, v)
if ok and s["token"] == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// Locker hands out run locks stored in Redis.
type Locker struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLocker creates a locker. A non-positive ttl falls back to DefaultTTL.
func NewLocker(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL returns the lock lifetime.
func (l *Locker) TTL() time.Duration {
	return l.ttl
}

// Acquire takes the lock stored at key. When it is held, the error wraps
// ErrLocked and names the current owner.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	host, _ := os.Hostname()
	state := &State{
		Token:      uuid.NewString(),
		Host:       host,
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
	}
	value, err := state.encode()
	if err != nil {
		return nil, err
	}

	ok, err := l.redis.SetNX(ctx, key, value, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	if !ok {
		lockContendedTotal.Inc()
		holder, inspectErr := l.Inspect(ctx, key)
		if inspectErr != nil || holder == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, ErrLocked)
		}

		l.logger.Warn().
			Str("key", key).
			Str("holder_host", holder.Host).
			Int("holder_pid", holder.PID).
			Dur("held_for", holder.Age()).
			Msg("Run lock contended")

		return nil, fmt.Errorf("acquire lock %s: held by %s (pid %d) since %s: %w",
			key, holder.Host, holder.PID, holder.AcquiredAt.Format(time.RFC3339), ErrLocked)
	}

	lockAcquiredTotal.Inc()
	l.logger.Info().
		Str("key", key).
		Dur("ttl", l.ttl).
		Msg("Run lock acquired")

	return &Lock{locker: l, key: key, state: state}, nil
}

// Inspect returns the state stored at key, or nil when the lock is free.
func (l *Locker) Inspect(ctx context.Context, key string) (*State, error) {
	raw, err := l.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inspect lock %s: %w", key, err)
	}
	return decodeState(raw)
}

// Lock is a held run lock.
type Lock struct {
	locker *Locker
	key    string
	state  *State
}

// Key returns the Redis key of the lock.
func (k *Lock) Key() string {
	return k.key
}

// State returns the owner state written on Acquire.
func (k *Lock) State() State {
	return *k.state
}

// Refresh resets the lock TTL. It fails with ErrNotHeld when the lock expired
// or was taken over.
func (k *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, k.locker.redis, []string{k.key}, k.state.Token, k.locker.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", k.key, err)
	}
	if n == 0 {
		return fmt.Errorf("refresh lock %s: %w", k.key, ErrNotHeld)
	}
	return nil
}

// Release deletes the lock if it is still ours.
func (k *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.locker.redis, []string{k.key}, k.state.Token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", k.key, err)
	}
	if n == 0 {
		k.locker.logger.Warn().Str("key", k.key).Msg("Run lock expired before release")
		return fmt.Errorf("release lock %s: %w", k.key, ErrNotHeld)
	}

	k.locker.logger.Info().
		Str("key", k.key).
		Dur("held_for", k.state.Age()).
		Msg("Run lock released")
	return nil
}

// KeepAlive refreshes the lock every ttl/3 (at least 1ms) until ctx is done. A failed
// refresh is logged and reported to onLost, if set, and stops the loop.
func (k *Lock) KeepAlive(ctx context.Context, onLost func(error)) {
	interval := k.locker.ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				k.locker.logger.Error().Err(err).Str("key", k.key).Msg("Run lock lost")
				if onLost != nil {
					onLost(err)
				}
				return
			}
		}
	}
}
