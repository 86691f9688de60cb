package otelx

import (
	"context"
)

// Detach returns a context that keeps ctx's values (including the active span) but none of
// its deadline or cancellation. Background work started from a request uses it so spans stay
// linked to the request trace after the response has been written.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
