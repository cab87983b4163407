package middleware

import (
	"log/slog"
	"net/http"
)

// Unauthorized watches for 401 responses. A 401 means the session cookie is
// missing or expired; it is logged and handed to onUnauthorized (may be nil),
// but the response is returned unchanged. Deciding what to do about it (ask
// the user to login again) is left to the caller.
func Unauthorized(logger *slog.Logger, onUnauthorized func(*http.Request)) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err == nil && resp.StatusCode == http.StatusUnauthorized {
				logger.Warn("unauthorized access - please login again",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
				)
				if onUnauthorized != nil {
					onUnauthorized(req)
				}
			}
			return resp, err
		})
	}
}
