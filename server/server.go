// Package server implements the mock upstream inference service. It speaks
// the same blank-line delimited "data: " block protocol as the real service,
// so the live transport, the cmd tooling and the end-to-end tests can run
// against it without any remote dependency.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/kgchat/internal/profile"
	"github.com/hrygo/kgchat/stream"
)

// Server is the embedded mock upstream.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile

	// tokenInterval paces token block emission to feel like generation.
	tokenInterval time.Duration
}

// ServerOption customizes the mock upstream.
type ServerOption func(*Server)

// WithTokenInterval overrides the token pacing, mainly so tests finish fast.
func WithTokenInterval(interval time.Duration) ServerOption {
	return func(s *Server) { s.tokenInterval = interval }
}

// NewServer creates the mock upstream over the instance profile.
func NewServer(p *profile.Profile, opts ...ServerOption) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echoServer:    e,
		profile:       p,
		tokenInterval: 40 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST(stream.ChatStreamPath, s.handleChatStream)

	return s
}

// Echo exposes the underlying echo instance for httptest-based tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "mock upstream failed")
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echoServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
