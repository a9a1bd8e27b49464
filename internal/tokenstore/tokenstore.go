// Package tokenstore models the external party a callback-token Task
// suspends on (spec.md §4.6.4 "Callback-token wrapper", §4.14): a small
// Redis-backed pending-token store a test harness or local demo can
// resolve out of band, exercising the heartbeat/timeout semantics
// spec.md §5 assigns to a real execution substrate.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

const keyPrefix = "sfnc:callback:"

// pending is the sentinel value stored for a token that has not yet
// been resolved; any other stored value is the JSON-encoded result.
const pending = "__pending__"

// client is the subset of redis.Cmdable this package needs, narrow
// enough for a test double to implement without dragging in the whole
// go-redis interface.
type client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store tracks pending callback tokens.
type Store struct {
	rdb          client
	pollInterval time.Duration
}

// New returns a Store backed by rdb (a *redis.Client satisfies client).
// pollInterval governs how often Await re-checks a token's state; the
// teacher's own default-tuning convention (small, not zero) is followed
// since a zero interval would busy-loop.
func New(rdb client, pollInterval time.Duration) *Store {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &Store{rdb: rdb, pollInterval: pollInterval}
}

// Put registers token as pending, expiring after heartbeat if nothing
// resolves or re-heartbeats it first (spec.md §5 "suspend... until...
// the configured heartbeat / overall timeout fires").
func (s *Store) Put(ctx context.Context, token string, heartbeat time.Duration) error {
	if err := s.rdb.Set(ctx, keyPrefix+token, pending, heartbeat).Err(); err != nil {
		return cerr.Internal("put callback token "+token, err)
	}
	return nil
}

// Resolve stores result against token, making a concurrent Await return
// it. It is not an error to resolve a token nothing is currently
// awaiting (the external party may race Put).
func (s *Store) Resolve(ctx context.Context, token string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return cerr.Internal("marshal callback result for token "+token, err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+token, data, 0).Err(); err != nil {
		return cerr.Internal("resolve callback token "+token, err)
	}
	return nil
}

// Await blocks until token is resolved, ctx is cancelled, or timeout
// elapses — whichever comes first — then unmarshals the resolved
// result into out.
func (s *Store) Await(ctx context.Context, token string, timeout time.Duration, out interface{}) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		val, err := s.rdb.Get(ctx, keyPrefix+token).Result()
		switch {
		case err == nil && val != pending:
			if out != nil {
				if uerr := json.Unmarshal([]byte(val), out); uerr != nil {
					return cerr.Internal("unmarshal callback result for token "+token, uerr)
				}
			}
			return nil
		case err != nil && !errors.Is(err, redis.Nil):
			return cerr.Internal("await callback token "+token, err)
		}

		if timeout > 0 && time.Now().After(deadline) {
			return cerr.Timeout("callback token " + token)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel removes token's pending entry, e.g. when the suspended
// execution itself errors out or is abandoned before resolution.
func (s *Store) Cancel(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, keyPrefix+token).Err(); err != nil {
		return cerr.Internal("cancel callback token "+token, err)
	}
	return nil
}
