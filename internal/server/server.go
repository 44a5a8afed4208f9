// Package server assembles the HTTP surface: platform webhooks, the
// Discord interactions endpoint and the observability endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/svglol/dinkdonkbot/internal/config"
	apperrors "github.com/svglol/dinkdonkbot/internal/errors"
)

// webhookHandler is any platform webhook endpoint.
type webhookHandler interface {
	HandleEventSub(c echo.Context) error
}

type kickWebhookHandler interface {
	HandleEvent(c echo.Context) error
}

type interactionHandler interface {
	HandleInteraction(c echo.Context) error
}

type Server struct {
	echo         *echo.Echo
	config       *config.Config
	twitch       webhookHandler
	kick         kickWebhookHandler
	interactions interactionHandler
	pool         *pgxpool.Pool
	redis        *goredis.Client
	startTime    time.Time
}

func NewServer(
	cfg *config.Config,
	twitch webhookHandler,
	kick kickWebhookHandler,
	interactions interactionHandler,
	pool *pgxpool.Pool,
	redisClient *goredis.Client,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("Request handled",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status)
			return nil
		},
	}))
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:         e,
		config:       cfg,
		twitch:       twitch,
		kick:         kick,
		interactions: interactions,
		pool:         pool,
		redis:        redisClient,
		startTime:    time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
