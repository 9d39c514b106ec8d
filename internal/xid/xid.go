// Package xid mints identifiers for requests and audit correlation.
package xid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// New returns prefix-<uuid v7>, falling back to a random v4 when the clock
// source fails.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Sanitize accepts a client-supplied request id only when it is short and
// printable, so it can be echoed into logs and headers.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return ""
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return id
}
