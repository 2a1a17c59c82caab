// Package httpserver exposes the task API and the voice websocket bridge.
package httpserver

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/waddu20-ops/SmartDo/internal/assistant"
	"github.com/waddu20-ops/SmartDo/internal/store"
)

// Generator is the companion text-generation surface the handlers need.
type Generator interface {
	Breakdown(ctx context.Context, taskTitle string) ([]string, error)
	Categorize(ctx context.Context, title string) (zone, energy string, err error)
	DailyReflection(ctx context.Context, completed, pending []string) (string, error)
	KindSuggestion(ctx context.Context, pending []string) (string, error)
	WateringTip(ctx context.Context, taskTitle string) (string, error)
}

// Deps bundles everything the HTTP layer serves.
type Deps struct {
	Store *store.Store
	Gen   Generator
	Hub   *Hub
	// NewChannel builds a fresh live channel per voice session.
	NewChannel func() assistant.Channel
	Logger     zerolog.Logger
}

// New creates a configured echo server with all routes registered.
func New(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	h := NewHandlers(deps)
	h.Register(e)
	return e
}
