package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"

	// RequestIDLocal is the fiber locals key carrying the request id.
	RequestIDLocal = "request_id"
)

// RequestID tags every request with an id for tracing. A caller-supplied
// X-Request-ID is kept only when it parses as a UUID so log fields stay
// clean; anything else is replaced. The id is always echoed back on the
// response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}

		c.Locals(RequestIDLocal, reqID)
		c.Set(requestIDHeader, reqID)

		return c.Next()
	}
}
