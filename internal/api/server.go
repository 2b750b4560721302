// Package api is the optional webhook intake: when configured, Telegram
// pushes updates to this server instead of the bot long-polling for them.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/confessbot/internal/telegram"
)

// Server receives Telegram webhook deliveries and hands them to the engine.
type Server struct {
	echo   *echo.Echo
	addr   string
	secret string
	handle telegram.HandlerFunc
}

// NewServer creates the webhook server. secret is the path segment Telegram
// is configured to call; requests with any other segment get a 404.
func NewServer(addr, secret string, handle telegram.HandlerFunc) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())

	server := &Server{
		echo:   e,
		addr:   addr,
		secret: secret,
		handle: handle,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	s.echo.POST("/webhook/:secret", s.receiveUpdate)
}

func (s *Server) receiveUpdate(c echo.Context) error {
	if c.Param("secret") != s.secret {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	var update telegram.Update
	if err := c.Bind(&update); err != nil {
		log.Warn().Err(err).Msg("dropping malformed webhook update")
		return c.NoContent(http.StatusBadRequest)
	}

	// Telegram only wants a prompt 200; the update is processed
	// concurrently like a polled one, detached from the request context.
	go s.handle(context.Background(), &update)

	return c.NoContent(http.StatusOK)
}

// Start begins serving and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info().Str("addr", s.addr).Msg("webhook server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.echo.Shutdown(context.Background())
	}
}
