package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one structured access-log line per request. Bets move real
// balances, so each line carries the request id and, on authenticated
// routes, the acting user, giving every escrow and payout a traceable
// actor.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if reqID, ok := c.Locals(RequestIDLocal).(string); ok && reqID != "" {
			attrs = append(attrs, slog.String("request_id", reqID))
		}
		if user, ok := c.Locals(UserLocal).(string); ok && user != "" {
			attrs = append(attrs, slog.String("user", user))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request failed", attrs...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
