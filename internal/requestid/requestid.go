// Package requestid propagates trace ids through contexts, runtime events
// and admin API requests.
package requestid

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Header carries the id on admin API requests and responses.
const Header = "X-Request-ID"

type ctxKey struct{}

// WithID returns a context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Lookup returns the id stored in ctx, if any.
func Lookup(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// FromContext extracts the id from ctx, or generates a new one.
func FromContext(ctx context.Context) string {
	if id, ok := Lookup(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// New generates an id and returns the enriched context and id.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithID(ctx, id), id
}

// Middleware reuses an inbound X-Request-ID or assigns one, echoes it on
// the response and stores it in the request's user context.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(Header, id)
		c.Locals("request_id", id)
		c.SetUserContext(WithID(c.UserContext(), id))
		return c.Next()
	}
}
