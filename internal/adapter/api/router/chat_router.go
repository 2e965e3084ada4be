package router

import (
	"github.com/labstack/echo/v4"

	"dentalink/internal/adapter/api/handler"
	"dentalink/internal/adapter/api/middleware"
)

// SetupChatRouter wires the chat REST surface (excluding WebSocket).
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	roomGroup := e.Group("/v1/rooms")
	roomGroup.Use(authMiddleware.Authenticate)

	roomGroup.POST("/resolve", chatHandler.ResolveRoom)
	roomGroup.GET("", chatHandler.GetRooms)
	roomGroup.GET("/:id/messages", chatHandler.GetMessages)
	roomGroup.POST("/:id/messages", chatHandler.SendMessage)
	roomGroup.POST("/provisional/messages", chatHandler.SendProvisionalMessage)
	roomGroup.PUT("/:id/read", chatHandler.MarkRead)
	roomGroup.DELETE("/:id/messages", chatHandler.DeleteMessages)
	roomGroup.POST("/:id/typing", chatHandler.SetTyping)

	authed := e.Group("/v1")
	authed.Use(authMiddleware.Authenticate)

	authed.GET("/connections", chatHandler.GetConnections)
	authed.GET("/unread", chatHandler.GetUnread)
	authed.PUT("/devices", chatHandler.RegisterDevice)
}
