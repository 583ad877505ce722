// Package api exposes conversion, segmentation and patching over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/history"
	"github.com/valpere/vorewrite/internal/refine"
)

// FileConverter converts one source file.
type FileConverter interface {
	ConvertFile(ctx context.Context, source, truth string) (*refine.FileResult, error)
}

// Builder makes a converter for a request's configuration.
type Builder func(cfg refine.Config) (FileConverter, error)

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	build    Builder
	base     refine.Config
	recorder history.Recorder
	meta     history.Meta
	version  string
}

type Option func(*Server)

// WithRecorder stores every conversion as a run.
func WithRecorder(rec history.Recorder, meta history.Meta) Option {
	return func(s *Server) {
		s.recorder = rec
		s.meta = meta
	}
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new API server. base is the configuration requests
// start from; build turns a request's configuration into a converter.
func NewServer(base refine.Config, build Builder, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogMethod:  true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("Request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("8M"))

	s := &Server{echo: e, build: build, base: base}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.health)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/convert", s.convert)
	v1.POST("/segment", s.segment)
	v1.POST("/patch/diff", s.buildDiff)
	v1.POST("/patch/apply", s.applyPatch)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
