// Package server runs the short-lived loopback HTTP server that receives the
// OAuth redirect during a federated sign-in.
//
// WHY A LOCAL SERVER?
// A browser SPA receives the provider's redirect on its own origin. A terminal
// program has no origin, so it listens on 127.0.0.1 on a random free port and
// registers http://127.0.0.1:<port>/callback as the redirect URI (the
// "loopback" flow from RFC 8252). The server lives for exactly one sign-in.
//
// ROUTES:
//
//	GET /callback?code=...&state=...   → success, code handed to the waiter
//	GET /callback?error=access_denied  → user declined
//
// Only the first callback counts. Later hits just render the page again.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// CallbackPath is the path registered as the OAuth redirect URI.
const CallbackPath = "/callback"

var (
	ErrAccessDenied  = errors.New("server: authorization denied")
	ErrStateMismatch = errors.New("server: state mismatch")
	ErrMissingCode   = errors.New("server: callback without code")
)

// result is what the first callback produced.
type result struct {
	code string
	err  error
}

// CallbackServer receives one OAuth redirect.
type CallbackServer struct {
	router   *chi.Mux
	srv      *http.Server
	listener net.Listener
	state    string
	logger   *slog.Logger
	page     *template.Template

	results chan result
	once    sync.Once
}

// New listens on a random loopback port. The server does not serve until
// Start is called.
//
// state is the anti-CSRF value sent in the authorization URL; a callback with
// any other state is rejected.
func New(state string, logger *slog.Logger) (*CallbackServer, error) {
	if state == "" {
		return nil, errors.New("server: state must not be empty")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("server: listening on loopback: %w", err)
	}

	s := &CallbackServer{
		router:   chi.NewRouter(),
		listener: ln,
		state:    state,
		logger:   logger,
		page:     template.Must(template.New("callback").Parse(callbackPage)),
		results:  make(chan result, 1),
	}
	s.setupRoutes()

	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *CallbackServer) setupRoutes() {
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(s.logRequests)
	s.router.Get(CallbackPath, s.handleCallback)
}

// RedirectURL is the URL to register as the OAuth redirect URI.
func (s *CallbackServer) RedirectURL() string {
	return "http://" + s.listener.Addr().String() + CallbackPath
}

// Start serves in the background until Shutdown.
func (s *CallbackServer) Start() {
	go func() {
		s.logger.Debug("callback server listening", slog.String("url", s.RedirectURL()))
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.report(result{err: fmt.Errorf("server: serving callback: %w", err)})
		}
	}()
}

// Wait blocks until the callback arrives or ctx is done, and returns the
// authorization code.
func (s *CallbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case r := <-s.results:
		return r.code, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops the server, giving in-flight requests until ctx is done.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: graceful shutdown failed: %w", err)
	}
	s.logger.Debug("callback server stopped")
	return nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var res result
	status := http.StatusOK
	switch {
	case q.Get("error") == "access_denied":
		res.err = ErrAccessDenied
	case q.Get("error") != "":
		res.err = fmt.Errorf("server: provider returned %q: %s", q.Get("error"), q.Get("error_description"))
	case q.Get("state") != s.state:
		// Not ours: could be a forged redirect. Keep waiting for the real one.
		s.logger.Warn("callback with unexpected state")
		s.render(w, http.StatusBadRequest, ErrStateMismatch)
		return
	case q.Get("code") == "":
		res.err = ErrMissingCode
		status = http.StatusBadRequest
	default:
		res.code = q.Get("code")
	}

	s.report(res)
	s.render(w, status, res.err)
}

// report delivers the first result only.
func (s *CallbackServer) report(r result) {
	s.once.Do(func() { s.results <- r })
}

func (s *CallbackServer) render(w http.ResponseWriter, status int, err error) {
	data := map[string]any{"OK": err == nil}
	if err != nil {
		data["Message"] = err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error("failed to render callback page", slog.String("error", err.Error()))
	}
}

func (s *CallbackServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("callback request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

const callbackPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Sign-in</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em">
{{if .OK}}
<h1>Signed in</h1>
<p>You can close this tab and return to the terminal.</p>
{{else}}
<h1>Sign-in failed</h1>
<p>{{.Message}}</p>
{{end}}
</body>
</html>
`
