// Package middleware contains client-side HTTP middleware.
//
// WHAT IS CLIENT MIDDLEWARE?
// On a server, middleware wraps an http.Handler. On a client, the same idea
// wraps an http.RoundTripper, the interface http.Client uses to send one
// request and receive one response:
//
//	func MyMiddleware(next http.RoundTripper) http.RoundTripper {
//	    return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
//	        // Do something BEFORE the request is sent
//	        resp, err := next.RoundTrip(req)
//	        // Do something AFTER the response arrives
//	        return resp, err
//	    })
//	}
//
// Every request the resource client makes passes through the same chain, so
// cross-cutting behaviour (logging, 401 detection, request IDs, rate
// limiting) lives here instead of in every API method.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripperFunc adapts a function to http.RoundTripper, the way
// http.HandlerFunc adapts a function to http.Handler.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// Chain wraps base with mws. The first middleware is the outermost: it sees
// the request first and the response last.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// Logger logs each completed request: method, path, status and duration.
// Transport failures are logged at Warn with the error instead of a status.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(req)
			if err != nil {
				logger.Warn("request failed",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.Duration("duration", time.Since(start)),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.Debug("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", time.Since(start)),
			)
			return resp, nil
		})
	}
}
