// Package router wires HTTP routes onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showbook-chat/internal/handler"
	"github.com/iliyamo/showbook-chat/internal/ratelimit"
)

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterWebhook registers the WhatsApp callback endpoints.  They are not
// rate limited per IP: every delivery comes from Meta's servers, so the bot
// limits per sender instead.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler) {
	e.GET("/webhook", w.Verify)
	e.POST("/webhook", w.Receive)
}

// RegisterTickets registers the ticket files and the scanner endpoint.
// Rendered QR images are served from qrDir under /qr.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, qrDir string, l *ratelimit.Limiter, strategy string) {
	e.Static("/qr", qrDir)
	g := e.Group("/v1/tickets")
	g.Use(ratelimit.Middleware(l, strategy))
	g.POST("/verify", t.Verify)
}
