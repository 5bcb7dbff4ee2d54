package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	twiliomw "github.com/chadiek/call-intake/internal/middleware"
)

// New creates a configured Echo server instance. Twilio webhooks are
// signature checked according to auth.
func New(auth twiliomw.TwilioAuthConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(twiliomw.TwilioAuth(auth))
	return e
}
