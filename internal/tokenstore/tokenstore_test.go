package tokenstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// fakeClient is an in-memory stand-in for *redis.Client, narrow enough
// to cover this package's client interface without a live Redis
// instance.
type fakeClient struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: make(map[string]string)}
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	default:
		f.data[key] = ""
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeClient) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func TestPutThenAwaitTimesOutWhileStillPending(t *testing.T) {
	fc := newFakeClient()
	s := New(fc, 5*time.Millisecond)

	if err := s.Put(context.Background(), "tok1", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var out map[string]interface{}
	err := s.Await(context.Background(), "tok1", 20*time.Millisecond, &out)
	if err == nil {
		t.Fatalf("expected a timeout error, got nil")
	}
}

func TestResolveUnblocksAwait(t *testing.T) {
	fc := newFakeClient()
	s := New(fc, 5*time.Millisecond)

	if err := s.Put(context.Background(), "tok2", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = s.Resolve(context.Background(), "tok2", map[string]interface{}{"status": "ok"})
	}()

	var out map[string]interface{}
	if err := s.Await(context.Background(), "tok2", time.Second, &out); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("out = %+v, want status=ok", out)
	}
}

func TestCancelRemovesPendingToken(t *testing.T) {
	fc := newFakeClient()
	s := New(fc, 5*time.Millisecond)

	if err := s.Put(context.Background(), "tok3", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Cancel(context.Background(), "tok3"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	var out map[string]interface{}
	err := s.Await(context.Background(), "tok3", 20*time.Millisecond, &out)
	if err == nil {
		t.Fatalf("expected an error awaiting a cancelled token")
	}
}
