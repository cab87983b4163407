package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Request-ID", r.Header.Get(RequestIDHeader))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, rt http.RoundTripper, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name+" before")
				resp, err := next.RoundTrip(req)
				order = append(order, name+" after")
				return resp, err
			})
		}
	}
	srv := statusServer(t, http.StatusOK)

	get(t, Chain(http.DefaultTransport, mark("outer"), mark("inner")), srv.URL)

	assert.Equal(t, []string{"outer before", "inner before", "inner after", "outer after"}, order)
}

func TestLogger_LogsStatusAndPath(t *testing.T) {
	logger, buf := newBufferLogger()
	srv := statusServer(t, http.StatusCreated)

	get(t, Chain(nil, Logger(logger)), srv.URL+"/api/services")

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "path=/api/services")
	assert.Contains(t, out, "status=201")
}

func TestLogger_LogsTransportFailure(t *testing.T) {
	logger, buf := newBufferLogger()
	failing := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/api/stats", nil)
	_, err := Chain(failing, Logger(logger)).RoundTrip(req)

	require.Error(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestUnauthorized(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCall bool
	}{
		{name: "401 is reported", status: http.StatusUnauthorized, wantCall: true},
		{name: "403 is not", status: http.StatusForbidden, wantCall: false},
		{name: "200 is not", status: http.StatusOK, wantCall: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger()
			srv := statusServer(t, tt.status)
			called := false

			resp := get(t, Chain(nil, Unauthorized(logger, func(*http.Request) { called = true })), srv.URL)

			assert.Equal(t, tt.status, resp.StatusCode, "response is passed through unchanged")
			assert.Equal(t, tt.wantCall, called)
			assert.Equal(t, tt.wantCall, strings.Contains(buf.String(), "please login again"))
		})
	}
}

func TestRequestID(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	rt := Chain(nil, RequestID())

	t.Run("generated", func(t *testing.T) {
		resp := get(t, rt, srv.URL)
		assert.Len(t, resp.Header.Get("X-Seen-Request-ID"), 20) // xid string length
	})

	t.Run("caller's ID is kept", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		req.Header.Set(RequestIDHeader, "fixed-id")
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "fixed-id", resp.Header.Get("X-Seen-Request-ID"))
	})

	t.Run("caller's request is not modified", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Empty(t, req.Header.Get(RequestIDHeader))
	})
}

func TestRateLimit_WaitHonoursContext(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	// One token, refilled once a minute: the second request must wait.
	rt := Chain(nil, RateLimit(rate.NewLimiter(rate.Every(time.Minute), 1)))

	get(t, rt, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err := rt.RoundTrip(req)

	assert.Error(t, err)
}
