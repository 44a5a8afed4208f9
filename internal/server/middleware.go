package server

import (
	"github.com/labstack/echo/v4"

	"github.com/svglol/dinkdonkbot/internal/correlation"
)

// correlationMiddleware attaches a fresh correlation ID to every request
// so handler logs and detached work spawned from the request can be tied
// together.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
