package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/internal/tokenstore"
	"github.com/r3e-network/sfnc/pkg/config"
	"github.com/r3e-network/sfnc/pkg/logger"
)

// fakeRedisClient is an in-memory stand-in for *redis.Client, narrow
// enough to satisfy tokenstore's unexported client interface
// structurally without a live Redis instance.
type fakeRedisClient struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{data: make(map[string]string)}
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
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

func (f *fakeRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	auth := config.AuthConfig{}
	comp := config.CompilerConfig{DefaultMapConcurrency: 4}
	return New(auth, comp, map[string]units.CallableRef{}, logger.NewDefault("httpapi-test"), nil)
}

const depositSource = `function deposit(accountId, amount) {
	return accountId;
}`

func TestHandleCompileThenGetMachineRoundTrips(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(compileRequest{
		Name:     "deposit",
		Filename: "deposit.js",
		Source:   depositSource,
	})

	req := httptest.NewRequest(http.MethodPost, "/compile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("compile status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp compileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode compile response: %v", err)
	}
	if resp.Document == nil || resp.Document.StartAt == "" {
		t.Fatalf("expected a non-empty document, got %+v", resp)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/machines/deposit", nil)
	getRec := httptest.NewRecorder()
	s.engine.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get machine status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
}

func TestHandleGetMachineUnknownNameReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/machines/nope", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleCompileRejectsMalformedSource(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(compileRequest{
		Name:     "broken",
		Filename: "broken.js",
		Source:   "function broken( { return",
	})

	req := httptest.NewRequest(http.MethodPost, "/compile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected a non-2xx status for malformed source, got %d", rec.Code)
	}
}

func TestHealthzReportsOK(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var report healthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	if report.Status != "ok" {
		t.Fatalf("status = %q, want ok", report.Status)
	}
}

func TestHandleResolveCallbackUnblocksAwait(t *testing.T) {
	auth := config.AuthConfig{}
	comp := config.CompilerConfig{DefaultMapConcurrency: 4}
	store := tokenstore.New(newFakeRedisClient(), 5*time.Millisecond)
	s := New(auth, comp, map[string]units.CallableRef{}, logger.NewDefault("httpapi-test"), nil, WithTokenStore(store))

	if err := store.Put(context.Background(), "tok-abc", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		var out map[string]interface{}
		done <- store.Await(context.Background(), "tok-abc", time.Second, &out)
	}()

	body, _ := json.Marshal(resolveCallbackRequest{Result: json.RawMessage(`{"status":"ok"}`)})
	req := httptest.NewRequest(http.MethodPost, "/callbacks/tok-abc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if err := <-done; err != nil {
		t.Fatalf("Await: %v", err)
	}
}

func TestHandleResolveCallbackWithoutStoreReturnsNotImplemented(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/callbacks/tok-xyz", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestJWTAuthRejectsMissingTokenWhenSecretConfigured(t *testing.T) {
	auth := config.AuthConfig{JWTSecret: "test-secret"}
	comp := config.CompilerConfig{DefaultMapConcurrency: 4}
	s := New(auth, comp, map[string]units.CallableRef{}, logger.NewDefault("httpapi-test"), nil)

	req := httptest.NewRequest(http.MethodGet, "/machines/deposit", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJWTAuthAcceptsMatchingStaticAPIToken(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("static-token-value"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash fixture token: %v", err)
	}

	auth := config.AuthConfig{Tokens: []string{string(hashed)}}
	comp := config.CompilerConfig{DefaultMapConcurrency: 4}
	s := New(auth, comp, map[string]units.CallableRef{}, logger.NewDefault("httpapi-test"), nil)

	req := httptest.NewRequest(http.MethodGet, "/machines/deposit", nil)
	req.Header.Set("Authorization", "Bearer static-token-value")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (auth passed, machine unknown)", rec.Code)
	}
}

func TestJWTAuthRejectsWrongStaticAPIToken(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("static-token-value"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash fixture token: %v", err)
	}

	auth := config.AuthConfig{Tokens: []string{string(hashed)}}
	comp := config.CompilerConfig{DefaultMapConcurrency: 4}
	s := New(auth, comp, map[string]units.CallableRef{}, logger.NewDefault("httpapi-test"), nil)

	req := httptest.NewRequest(http.MethodGet, "/machines/deposit", nil)
	req.Header.Set("Authorization", "Bearer wrong-value")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
