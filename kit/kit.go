// CLAUDE:SUMMARY Transport-neutral endpoint type and middleware chaining shared by HTTP and MCP surfaces.
// Package kit holds the small transport-neutral core the service surfaces
// share: an Endpoint is a request handler independent of HTTP or MCP, and
// Middleware composes around it.
package kit

import "context"

// Endpoint is one logical operation, decoupled from its transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first listed runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
