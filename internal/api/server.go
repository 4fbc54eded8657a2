package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// envelopeHandler receives one decoded feed envelope; satisfied by the
// dispatch pipeline's HandleRaw.
type envelopeHandler func(ctx context.Context, envelope map[string]any)

// Server is the optional push-mode event intake: upstream hosting
// infrastructure POSTs the same envelopes the pubsub feed streams.
type Server struct {
	echo    *echo.Echo
	addr    string
	handler envelopeHandler
}

// NewServer creates the intake server listening on addr.
func NewServer(addr string, handler envelopeHandler) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:    e,
		addr:    addr,
		handler: handler,
	}
	server.setupRoutes()
	return server
}

// setupRoutes configures all endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")
	v1.POST("/events", s.postEvent)
}

// postEvent accepts one feed envelope. Malformed JSON is the only hard
// rejection; everything else is the pipeline's decision.
func (s *Server) postEvent(c echo.Context) error {
	var envelope map[string]any
	if err := c.Bind(&envelope); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "body must be a JSON object",
		})
	}
	s.handler(c.Request().Context(), envelope)
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// Start runs the server until ctx is cancelled, then shuts down with a
// grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info().Str("addr", s.addr).Msg("Event intake listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
