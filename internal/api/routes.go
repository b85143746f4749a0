package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/shopdesk/shopdesk-backend/internal/api/handlers"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, chat *handlers.ChatHandler) {
	api := app.Group("/api/v1")

	// Chat
	api.Post("/chat", chat.Chat)

	// Session management
	api.Get("/sessions/:id/history", chat.History)
	api.Post("/sessions/:id/reset", chat.Reset)

	// WebSocket streaming
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(chat.StreamChat))

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "shopdesk-backend",
		})
	})
}
