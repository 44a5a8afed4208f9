package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Platform webhooks verify their own signatures
	if s.twitch != nil {
		s.echo.POST("/webhooks/twitch", s.twitch.HandleEventSub)
	}
	if s.kick != nil {
		s.echo.POST("/webhooks/kick", s.kick.HandleEvent)
	}

	// Discord interactions; rate limited since the endpoint is public
	if s.interactions != nil {
		s.echo.POST("/webhooks/discord", s.interactions.HandleInteraction, newRateLimiter(20, 40))
	}
}
