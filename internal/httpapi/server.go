// Package httpapi exposes the aggregation engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"adcarbon/internal/calendar"
	"adcarbon/internal/emissions"
)

// Engine is the aggregation surface the handlers call.
type Engine interface {
	Day(ctx context.Context, domain string, date calendar.Date) (emissions.DayReport, error)
	Run(ctx context.Context, domain string, anchor calendar.Date, g calendar.Granularity) (emissions.Rollup, error)
}

// Options configure the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RateLimit is requests per second across all clients; zero disables it.
	RateLimit float64
	RateBurst int
	CORS      bool
	Version   string
	Debug     bool
}

// Server owns the gin router and its http.Server.
type Server struct {
	engine Engine
	opts   Options
	logger zerolog.Logger
	router *gin.Engine
}

// New builds a Server with routes and middleware installed.
func New(engine Engine, opts Options, logger zerolog.Logger) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		engine: engine,
		opts:   opts,
		logger: logger.With().Str("component", "http").Logger(),
		router: gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(recovery(s.logger), requestID(), accessLog(s.logger))
	if s.opts.CORS {
		r.Use(cors())
	}
	if s.opts.RateLimit > 0 {
		burst := s.opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst), s.logger))
	}

	r.GET("/health", s.health)
	r.GET("/hello", s.hello)

	group := r.Group("/emissions")
	{
		group.GET("/day", s.day)
		group.GET("/week", s.rollup(calendar.Week))
		group.GET("/month", s.rollup(calendar.Month))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody(msgNotFound))
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
