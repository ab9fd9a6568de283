package api

import (
	"github.com/labstack/echo/v4"

	xhttp "StockPulse/pkg/http"
)

// Router mounts every API handler under /api.
type Router struct {
	Health     *HealthHandler
	Session    *SessionHandler
	Collection *CollectionHandler
	Market     *MarketHandler
	Stream     *StreamHub
}

var _ xhttp.Handler = (*Router)(nil)

func (r *Router) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	if r.Health != nil {
		g.GET("/health", r.Health.Health)
	}
	if r.Session != nil {
		g.GET("/session", r.Session.Status)
		g.GET("/session/login-url", r.Session.LoginURL)
		g.POST("/session", r.Session.Connect)
		g.POST("/session/refresh", r.Session.Refresh)
		g.DELETE("/session", r.Session.Disconnect)
	}
	if r.Collection != nil {
		g.GET("/collection", r.Collection.Status)
		g.POST("/collection/start", r.Collection.Start)
		g.POST("/collection/stop", r.Collection.Stop)
	}
	if r.Market != nil {
		g.GET("/market", r.Market.Market)
		g.GET("/symbols", r.Market.Symbols)
		g.GET("/symbols/:symbol", r.Market.Snapshot)
		g.GET("/symbols/:symbol/candles", r.Market.Candles)
		g.GET("/symbols/:symbol/indicators", r.Market.Indicators)
		g.GET("/symbols/:symbol/score", r.Market.Score)
	}
	if r.Stream != nil {
		g.GET("/stream", r.Stream.Serve)
	}
}
