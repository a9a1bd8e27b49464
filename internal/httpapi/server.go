// Package httpapi is the optional inspector/build service: it exposes
// the compiler over HTTP so an editor or CI step can ask "what does
// this function lower to" without going through the CDK deploy path in
// package sfnc.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/infrastructure/metrics"
	"github.com/r3e-network/sfnc/infrastructure/ratelimit"
	"github.com/r3e-network/sfnc/internal/tokenstore"
	"github.com/r3e-network/sfnc/pkg/config"
	"github.com/r3e-network/sfnc/pkg/logger"
)

// Server is the gin-backed inspector HTTP surface described in
// SPEC_FULL.md §4.12.
type Server struct {
	engine                *gin.Engine
	httpServer            *http.Server
	cache                 *resultCache
	hub                   *progressHub
	symbols               map[string]units.CallableRef
	defaultMapConcurrency int
	log                   *logger.Logger
	tokens                *tokenstore.Store
}

// Option customizes a Server beyond its required constructor arguments.
type Option func(*Server)

// WithTokenStore wires POST /callbacks/:token to store, enabling a test
// harness or local demo to resolve a suspended callback-token Task
// (spec.md §4.6.4 S5, §4.14).
func WithTokenStore(store *tokenstore.Store) Option {
	return func(s *Server) { s.tokens = store }
}

// New wires the inspector's routes and middleware chain. symbols is the
// callable registry used to resolve cross-machine calls encountered
// while compiling a POST /compile body.
func New(cfg config.AuthConfig, compilerCfg config.CompilerConfig, symbols map[string]units.CallableRef, log *logger.Logger, m *metrics.Metrics, opts ...Option) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if m == nil {
		m = metrics.Global()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	limiter := ratelimit.New(ratelimit.DefaultConfig())

	s := &Server{
		engine:                engine,
		cache:                 newResultCache(),
		hub:                   newProgressHub(),
		symbols:               symbols,
		defaultMapConcurrency: compilerCfg.DefaultMapConcurrency,
		log:                   log,
	}

	engine.Use(instrumented(m))
	engine.GET("/healthz", s.handleHealthz)

	for _, opt := range opts {
		opt(s)
	}

	authed := engine.Group("/")
	authed.Use(jwtAuth(cfg.JWTSecret, cfg.Tokens), rateLimited(limiter))
	authed.POST("/compile", s.handleCompile)
	authed.GET("/machines/:name", s.handleGetMachine)
	authed.GET("/machines/:name/ast", s.handleGetMachineAST)
	authed.GET("/stream", s.handleStream)
	authed.POST("/callbacks/:token", s.handleResolveCallback)

	return s
}

// Run starts the inspector listening on addr, blocking until ctx is
// canceled or the listener fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("inspector listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the inspector and closes any open
// compile-progress websocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
