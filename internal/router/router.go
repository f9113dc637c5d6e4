package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/concert-ticket-booking/internal/config"
	"github.com/iliyamo/concert-ticket-booking/internal/handler"
	"github.com/iliyamo/concert-ticket-booking/internal/middleware"
)

// Handlers bundles everything the API serves.
type Handlers struct {
	Reservation  *handler.ReservationHandler
	Queue        *handler.QueueHandler
	Orders       *handler.OrderHandler
	Ops          *handler.OpsHandler
	Availability handler.Counter
	Ready        map[string]handler.Pinger
}

// RegisterRoutes registers the unauthenticated endpoints: probes,
// metrics and public seat counts.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(h.Ready))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/v1/events/:id/availability", handler.Availability(h.Availability))
}

// RegisterCustomer registers the buyer endpoints under /v1.  All routes
// require a valid JWT with the CUSTOMER role.  Reserve and queue calls
// also pass through the token bucket since each one takes a seat lock.
func RegisterCustomer(e *echo.Echo, h Handlers, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	limited := middleware.NewTokenBucket(rl, rdb)

	g.POST("/seats/:id/reserve", h.Reservation.Reserve, limited)
	g.POST("/seats/:id/queue", h.Queue.Enqueue, limited)
	g.GET("/seats/:id/queue/size", h.Queue.Size)
	g.GET("/queue/:id", h.Queue.Position)

	g.GET("/cart", h.Reservation.GetCart)
	g.DELETE("/cart/items/:id", h.Reservation.ReleaseItem)

	g.POST("/orders", h.Orders.Create)
	g.GET("/orders", h.Orders.List)
	g.GET("/orders/:id", h.Orders.Get)
}

// RegisterOps registers back-office endpoints under /v1/ops for tokens
// with the OPS role.
func RegisterOps(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group(
		"/v1/ops",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOps),
	)
	g.POST("/events/:id/seats", h.Ops.CreateSeats)
	g.POST("/sweep", h.Ops.RunSweep)
}
