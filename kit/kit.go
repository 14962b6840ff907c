// Package kit holds the transport-agnostic endpoint plumbing shared by the
// HTTP admin surface and the MCP tools. An Endpoint is a single operation
// (tune a channel, list the lineup, clear caches) decoupled from how the
// request arrived; middlewares layer logging and identification around it.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a single request/response operation.
type Endpoint func(ctx context.Context, request any) (response any, err error)

// Middleware wraps an Endpoint with additional behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is the outermost wrapper:
// Chain(a, b, c)(ep) runs a → b → c → ep.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}

// Logging returns a Middleware that records one line per call: operation
// name, transport, request ID, duration, and the error if any.
func Logging(name string, log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"op", name,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration", time.Since(start),
			}
			if err != nil {
				attrs = append(attrs, "error", err)
				log.Warn("kit: endpoint failed", attrs...)
				return resp, err
			}
			log.Info("kit: endpoint ok", attrs...)
			return resp, nil
		}
	}
}
