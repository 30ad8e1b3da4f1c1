package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/auth"
	"github.com/grade-stakes/grade_stakes/internal/identity"
)

// UserLocal is the fiber locals key carrying the authenticated username.
const UserLocal = "user"

// JWTAuth validates bearer tokens and resolves the acting user. The
// username in the token is checked against the identity store so deleted
// accounts cannot keep acting.
func JWTAuth(authSvc *auth.Service, repo identity.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		username, err := authSvc.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if _, err := repo.FindByUsername(c.UserContext(), username); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "unknown user")
		}

		c.Locals(UserLocal, username)
		return c.Next()
	}
}
