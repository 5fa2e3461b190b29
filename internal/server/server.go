// Package server is the continuityctl status and control API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/danmuck/continuityctl/internal/engine"
	"github.com/danmuck/continuityctl/internal/identity"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/observability"
	"github.com/danmuck/continuityctl/internal/sink"
)

const (
	Version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	engine   *engine.Engine
	ids      *identity.Manager
	ring     *sink.Ring
	router   *gin.Engine
	started  time.Time
	ready    atomic.Bool
	sessions context.Context
}

type Options struct {
	CorsOrigins []string
	// Sessions bounds advertise sessions started over HTTP. Defaults to
	// context.Background.
	Sessions context.Context
}

func New(eng *engine.Engine, ids *identity.Manager, ring *sink.Ring, opts Options) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.InitLogger("continuityctl.server")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		engine:   eng,
		ids:      ids,
		ring:     ring,
		router:   r,
		started:  time.Now(),
		sessions: opts.Sessions,
	}
	if s.sessions == nil {
		s.sessions = context.Background()
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// SetReady flips the /ready check once the scan session is running.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("server.Serve addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logs.Infof("server.Serve stopped addr=%s", addr)
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
