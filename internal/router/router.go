// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avekor/giftcode-vending/internal/handler"
	"github.com/avekor/giftcode-vending/internal/middleware"
	"github.com/avekor/giftcode-vending/internal/utils"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// the health probe and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the token-issuing endpoints under /v1/auth.
// Both are unauthenticated at the HTTP layer; the handlers verify the
// gateway key and operator password themselves.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/token", a.IssueBuyerToken)
	g.POST("/admin", a.IssueAdminToken)
}

// RegisterShop registers the buyer-facing endpoints.  The catalog is
// public so a guest can browse before authenticating; the order
// lifecycle requires the BUYER role.  The rate limiter keys on the
// buyer id set by JWTAuth, so it runs after authentication.
func RegisterShop(e *echo.Echo, s *handler.ShopHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/v1/catalog", s.GetCatalog)

	orders := e.Group("/v1/orders")
	orders.Use(middleware.JWTAuth(jwtSecret))
	orders.Use(middleware.RequireRole(utils.RoleBuyer))
	if limiter != nil {
		orders.Use(limiter)
	}
	orders.POST("", s.CreateOrder)
	orders.GET("/:id", s.GetOrder)
	orders.DELETE("/:id", s.CancelOrder)
	orders.POST("/:id/pay", s.PayOrder)
}

// RegisterWebhook registers the payment-provider callback.  It is not
// behind JWT; the handler authenticates the caller via the shared
// gateway key header.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/payments/webhook", w.ConfirmPayment)
}

// RegisterAdmin registers the operator endpoints under /v1/admin, all
// behind the ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(utils.RoleAdmin))
	g.GET("/stock", a.GetStock)
	g.POST("/codes", a.AddCode)
	g.POST("/codes/import", a.ImportCodes)
	g.GET("/codes/export", a.ExportCodes)
	g.GET("/orders", a.GetOrders)
	g.GET("/stats", a.GetStats)
}
