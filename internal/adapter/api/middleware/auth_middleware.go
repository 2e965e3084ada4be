package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"dentalink/internal/domain/repository"
	"dentalink/internal/infrastructure/firebase"
)

type AuthMiddleware struct {
	authClient *firebase.FirebaseAuthClient
	userRepo   repository.UserRepository
}

func NewAuthMiddleware(authClient *firebase.FirebaseAuthClient, userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		authClient: authClient,
		userRepo:   userRepo,
	}
}

// Authenticate verifies the bearer token and resolves the acting identity:
// a staff account acts as its company, everyone else acts as themselves.
// Handlers read "uid" for the account and "actor" for the chat identity.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is required")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		uid, err := m.authClient.VerifyToken(c.Request().Context(), parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		user, err := m.userRepo.GetByUID(c.Request().Context(), uid)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unknown account")
		}

		c.Set("uid", user.UID)
		c.Set("actor", user.ActingIdentity())
		c.Set("actorName", user.ActingName())

		return next(c)
	}
}

// ResolveActor authenticates a raw token outside the middleware chain. The
// websocket endpoint uses it for tokens passed as a query parameter.
func (m *AuthMiddleware) ResolveActor(ctx context.Context, token string) (uid, actor string, err error) {
	uid, err = m.authClient.VerifyToken(ctx, token)
	if err != nil {
		return "", "", err
	}

	user, err := m.userRepo.GetByUID(ctx, uid)
	if err != nil {
		return "", "", err
	}

	return user.UID, user.ActingIdentity(), nil
}
