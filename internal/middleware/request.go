package middleware

import (
	"net/http"

	"github.com/rs/xid"
	"golang.org/x/time/rate"
)

// RequestIDHeader is the header carrying the client-generated request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with a unique ID so client and server logs can
// be correlated. An ID already set by the caller is kept.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) != "" {
				return next.RoundTrip(req)
			}
			// RoundTrippers must not modify the caller's request.
			r := req.Clone(req.Context())
			r.Header.Set(RequestIDHeader, xid.New().String())
			return next.RoundTrip(r)
		})
	}
}

// RateLimit makes every request wait for a token from limiter. Waiting honours
// the request context, so a cancelled request stops waiting immediately.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}
