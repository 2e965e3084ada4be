package router

import (
	"github.com/labstack/echo/v4"

	"dentalink/internal/adapter/api/handler"
	"dentalink/internal/adapter/api/middleware"
)

func Setup(
	e *echo.Echo,
	chatHandler *handler.ChatHandler,
	wsHandler *handler.WebSocketHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	SetupChatRouter(e, chatHandler, authMiddleware)
	SetupWebSocketRouter(e, wsHandler)
	SetupHealthRouter(e)
}
