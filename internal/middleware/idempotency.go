package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyKeyMaxLen = 128
	pendingMarker        = "__pending__"
)

// guardedPrefixes lists the route prefixes whose unsafe methods escrow
// funds or flip wager state. Requests outside them pass through untouched
// so reads and auth never demand a key.
var guardedPrefixes = []string{
	"/api/v1/bets",
	"/api/v1/balance/deposit",
}

type replayRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

func guarded(path string) bool {
	for _, prefix := range guardedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Idempotency makes retried bet mutations safe. Unsafe requests to guarded
// routes must carry an Idempotency-Key; the first attempt reserves the key
// in Redis and records its successful response, replays return that stored
// response, and a concurrent duplicate gets a 409. Failed attempts drop the
// reservation so the client can retry with the same key.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		if !guarded(c.Path()) {
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		if len(key) > idempotencyKeyMaxLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		// The key is scoped to the route so reusing one key across
		// different operations never replays the wrong response.
		cacheKey := "idem:v1:" + c.Method() + ":" + c.Path() + ":" + key

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			if cached == pendingMarker {
				return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
			}
			var stored replayRecord
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("stored idempotent response unreadable",
					slog.String("cache_key", cacheKey), slog.Any("error", err))
				return fiber.NewError(fiber.StatusConflict, "duplicate request")
			}
			if stored.ContentType != "" {
				c.Set(fiber.HeaderContentType, stored.ContentType)
			}
			return c.Status(stored.Status).Send(stored.Body)
		case err != redis.Nil:
			logger.Error("idempotency lookup failed",
				slog.String("cache_key", cacheKey), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		ok, err := cache.SetNX(ctx, cacheKey, pendingMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed",
				slog.String("cache_key", cacheKey), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !ok {
			// Another request claimed the key between the lookup and here.
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		release := func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
		}

		if err := c.Next(); err != nil {
			release()
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status > 299 {
			// Only a successful mutation is worth replaying.
			release()
			return nil
		}

		stored := replayRecord{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("idempotent response encode failed",
				slog.String("cache_key", cacheKey), slog.Any("error", err))
			release()
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("idempotent response persist failed",
				slog.String("cache_key", cacheKey), slog.Any("error", err))
			release()
		}
		return nil
	}
}
