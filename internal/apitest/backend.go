// Package apitest runs an in-memory version of the review backend's REST API
// for tests. It behaves like the real server where the client can tell the
// difference: the HttpOnly session cookie, owner checks, search and category
// filtering, the {review: ...} create response and 401s without a session.
//
// Tests can also count requests, delay or fail selected requests, and seed
// data directly.
package apitest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
)

// SessionCookie is the name of the backend's session cookie.
const SessionCookie = "token"

// Request is one request the backend received.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// Backend is the fake server.
type Backend struct {
	server *httptest.Server

	mu       sync.Mutex
	services map[string]*model.Service
	reviews  map[string]*model.Review
	sessions map[string]string // cookie value → email
	users    map[string]bool
	requests []Request
	delay    func(r *http.Request) time.Duration
	failure  func(r *http.Request) int
	now      func() time.Time
}

// New starts a backend that is closed when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		services: make(map[string]*model.Service),
		reviews:  make(map[string]*model.Review),
		sessions: make(map[string]string),
		users:    make(map[string]bool),
		now:      time.Now,
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.server.Close)
	return b
}

// URL is the backend's base URL.
func (b *Backend) URL() string { return b.server.URL }

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(b.record)
	r.Use(b.inject)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", b.handleLogin)
		r.Post("/auth/logout", b.handleLogout)

		r.Get("/stats", b.handleStats)

		r.Get("/services", b.handleListServices)
		r.Get("/services/featured", b.handleFeatured)
		r.Get("/services/{id}", b.handleGetService)
		r.Get("/reviews/service/{id}", b.handleServiceReviews)
		r.Get("/reviews/recent", b.handleRecentReviews)

		// Routes below need the session cookie.
		r.Group(func(r chi.Router) {
			r.Use(b.requireSession)
			r.Get("/services/user/{email}", b.handleOwnerServices)
			r.Post("/services", b.handleCreateService)
			r.Patch("/services/{id}", b.handleUpdateService)
			r.Delete("/services/{id}", b.handleDeleteService)

			r.Get("/reviews/user/{email}", b.handleUserReviews)
			r.Post("/reviews", b.handleCreateReview)
			r.Patch("/reviews/{id}", b.handleUpdateReview)
			r.Delete("/reviews/{id}", b.handleDeleteReview)
		})
	})
	return r
}

// =========================================================================
// TEST HOOKS
// =========================================================================

// Requests returns every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Count returns how many requests matched method and exact path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// CountMethod returns how many requests used method.
func (b *Backend) CountMethod(method string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

// SetDelay holds matching requests for the returned duration before handling
// them. A request whose context is cancelled stops waiting.
func (b *Backend) SetDelay(fn func(r *http.Request) time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = fn
}

// SetFailure makes requests fail with the returned status; 0 handles the
// request normally.
func (b *Backend) SetFailure(fn func(r *http.Request) int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failure = fn
}

// AddService stores s as-is, assigning an ID and date when missing.
func (b *Backend) AddService(s model.Service) model.Service {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.ID == "" {
		s.ID = xid.New().String()
	}
	if s.AddedDate.IsZero() {
		s.AddedDate = b.now()
	}
	b.services[s.ID] = &s
	b.users[s.UserEmail] = true
	return s
}

// AddReview stores r as-is, assigning an ID and date when missing.
func (b *Backend) AddReview(r model.Review) model.Review {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.ID == "" {
		r.ID = xid.New().String()
	}
	if r.PostedDate.IsZero() {
		r.PostedDate = b.now()
	}
	b.reviews[r.ID] = &r
	b.users[r.UserEmail] = true
	b.rateLocked(r.ServiceID)
	return r
}

// Service returns the stored service with id.
func (b *Backend) Service(id string) (model.Service, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.services[id]
	if !ok {
		return model.Service{}, false
	}
	return *s, true
}

// Review returns the stored review with id.
func (b *Backend) Review(id string) (model.Review, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reviews[id]
	if !ok {
		return model.Review{}, false
	}
	return *r, true
}

// ActiveSessions returns how many session cookies are currently valid.
func (b *Backend) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// =========================================================================
// MIDDLEWARE
// =========================================================================

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
		})
		b.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (b *Backend) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		delay, failure := b.delay, b.failure
		b.mu.Unlock()

		if delay != nil {
			if d := delay(r); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
		}
		if failure != nil {
			if status := failure(r); status != 0 {
				writeJSON(w, status, errorResponse{
					Error:   "injected",
					Message: fmt.Sprintf("injected failure %d", status),
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := b.sessionEmail(r); !ok {
			writeError(w, apperror.FromStatus(http.StatusUnauthorized, "unauthorized access"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) sessionEmail(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.sessions[c.Value]
	return email, ok
}

// =========================================================================
// AUTH
// =========================================================================

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		writeError(w, apperror.ValidationFailed("email", "email is required"))
		return
	}

	token := xid.New().String()
	b.mu.Lock()
	b.sessions[token] = req.Email
	b.users[req.Email] = true
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		b.mu.Lock()
		delete(b.sessions, c.Value)
		b.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (b *Backend) handleStats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	stats := model.Stats{Users: len(b.users), Services: len(b.services), Reviews: len(b.reviews)}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

// =========================================================================
// SERVICES
// =========================================================================

func (b *Backend) handleListServices(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	category := r.URL.Query().Get("category")

	writeJSON(w, http.StatusOK, b.filterServices(func(s *model.Service) bool {
		if category != "" && s.Category != category {
			return false
		}
		return search == "" ||
			strings.Contains(strings.ToLower(s.Title), search) ||
			strings.Contains(strings.ToLower(s.Company), search)
	}))
}

func (b *Backend) handleFeatured(w http.ResponseWriter, r *http.Request) {
	all := b.filterServices(func(*model.Service) bool { return true })
	if len(all) > 6 {
		all = all[:6]
	}
	writeJSON(w, http.StatusOK, all)
}

func (b *Backend) handleGetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := b.Service(id)
	if !ok {
		writeError(w, apperror.NotFound("service", id))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (b *Backend) handleOwnerServices(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if caller, _ := b.sessionEmail(r); caller != email {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	writeJSON(w, http.StatusOK, b.filterServices(func(s *model.Service) bool {
		return s.UserEmail == email
	}))
}

func (b *Backend) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var s model.Service
	if err := decodeJSON(r, &s); err != nil {
		writeError(w, err)
		return
	}
	if caller, _ := b.sessionEmail(r); caller != s.UserEmail {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	if strings.TrimSpace(s.Title) == "" {
		writeError(w, apperror.ValidationFailed("title", "title is required"))
		return
	}
	s.ID = ""
	s.Rating, s.ReviewCount = 0, 0
	created := b.AddService(s)
	writeJSON(w, http.StatusCreated, created)
}

func (b *Backend) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch model.ServicePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	caller, _ := b.sessionEmail(r)

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.services[id]
	if !ok {
		writeError(w, apperror.NotFound("service", id))
		return
	}
	if s.UserEmail != caller {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	applyServicePatch(s, patch)
	writeJSON(w, http.StatusOK, s)
}

func applyServicePatch(s *model.Service, p model.ServicePatch) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Company != nil {
		s.Company = *p.Company
	}
	if p.Website != nil {
		s.Website = *p.Website
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Price != nil {
		s.Price = *p.Price
	}
	if p.ImageURL != nil {
		s.ImageURL = *p.ImageURL
	}
}

func (b *Backend) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller, _ := b.sessionEmail(r)

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.services[id]
	if !ok {
		writeError(w, apperror.NotFound("service", id))
		return
	}
	if s.UserEmail != caller {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	delete(b.services, id)
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
}

// filterServices returns matching services, newest first.
func (b *Backend) filterServices(keep func(*model.Service) bool) []model.Service {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Service{}
	for _, s := range b.services {
		if keep(s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedDate.Equal(out[j].AddedDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].AddedDate.After(out[j].AddedDate)
	})
	return out
}

// =========================================================================
// REVIEWS
// =========================================================================

func (b *Backend) handleServiceReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, b.filterReviews(func(rv *model.Review) bool {
		return rv.ServiceID == id
	}))
}

func (b *Backend) handleRecentReviews(w http.ResponseWriter, r *http.Request) {
	all := b.filterReviews(func(*model.Review) bool { return true })
	if len(all) > 6 {
		all = all[:6]
	}
	writeJSON(w, http.StatusOK, all)
}

func (b *Backend) handleUserReviews(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if caller, _ := b.sessionEmail(r); caller != email {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	writeJSON(w, http.StatusOK, b.filterReviews(func(rv *model.Review) bool {
		return rv.UserEmail == email
	}))
}

func (b *Backend) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var rv model.Review
	if err := decodeJSON(r, &rv); err != nil {
		writeError(w, err)
		return
	}
	if caller, _ := b.sessionEmail(r); caller != rv.UserEmail {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	if _, ok := b.Service(rv.ServiceID); !ok {
		writeError(w, apperror.NotFound("service", rv.ServiceID))
		return
	}
	if rv.Rating < model.MinRating || rv.Rating > model.MaxRating {
		writeError(w, apperror.ValidationFailed("rating", "rating must be between 1 and 5"))
		return
	}
	rv.ID = ""
	created := b.AddReview(rv)
	writeJSON(w, http.StatusCreated, map[string]any{"review": created})
}

func (b *Backend) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch model.ReviewPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	caller, _ := b.sessionEmail(r)

	b.mu.Lock()
	defer b.mu.Unlock()
	rv, ok := b.reviews[id]
	if !ok {
		writeError(w, apperror.NotFound("review", id))
		return
	}
	if rv.UserEmail != caller {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	if patch.Rating != nil {
		rv.Rating = *patch.Rating
	}
	if patch.ReviewText != nil {
		rv.ReviewText = *patch.ReviewText
	}
	b.rateLocked(rv.ServiceID)
	writeJSON(w, http.StatusOK, rv)
}

func (b *Backend) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller, _ := b.sessionEmail(r)

	b.mu.Lock()
	defer b.mu.Unlock()
	rv, ok := b.reviews[id]
	if !ok {
		writeError(w, apperror.NotFound("review", id))
		return
	}
	if rv.UserEmail != caller {
		writeError(w, apperror.FromStatus(http.StatusForbidden, "forbidden access"))
		return
	}
	delete(b.reviews, id)
	b.rateLocked(rv.ServiceID)
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
}

// filterReviews returns matching reviews, newest first.
func (b *Backend) filterReviews(keep func(*model.Review) bool) []model.Review {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Review{}
	for _, rv := range b.reviews {
		if keep(rv) {
			out = append(out, *rv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostedDate.Equal(out[j].PostedDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].PostedDate.After(out[j].PostedDate)
	})
	return out
}

// rateLocked recomputes a service's average rating. b.mu must be held.
func (b *Backend) rateLocked(serviceID string) {
	s, ok := b.services[serviceID]
	if !ok {
		return
	}
	total, count := 0, 0
	for _, rv := range b.reviews {
		if rv.ServiceID == serviceID {
			total += rv.Rating
			count++
		}
	}
	s.ReviewCount = count
	s.Rating = 0
	if count > 0 {
		s.Rating = float64(total) / float64(count)
	}
}
