// Package controller holds the list and detail controllers: the logic behind
// each view of the review client.
//
// THE LAYERS:
//
//	CLI (internal/app)        → parses flags, prints results
//	Controller (this package) → validates, guards, fetches, reconciles
//	api.Client                → talks HTTP to the backend
//
// A controller owns the collection its view shows and nothing else. There
// is no shared cache: services and reviews live on the server, and every view
// is a point-in-time snapshot refreshed by an explicit action.
//
// RE-FETCH AFTER MUTATION:
// Update and Delete never patch the local list. They call the server, then
// fetch the owning list again, so what is shown is always what the server
// confirmed. One extra round trip per edit buys that guarantee.
//
// ERRORS AND NOTIFICATIONS:
// Every user-visible failure is reported twice: as a one-line notification
// (the terminal "toast") and as the returned error, so callers can still
// branch on errors.Is. A failed read leaves the previous collection in place.
//
// DEPENDENCY INJECTION:
// Controllers take the Backend interface, not *api.Client, and an
// auth.IdentityWaiter, not *auth.Store. Tests pass the real client pointed
// at an in-memory backend, or a fake where timing has to be controlled.
package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/sakif/service-review/internal/model"
)

// RouteMyServices is the owner's service list, where a successful create
// lands.
const RouteMyServices = "/my-services"

var (
	// ErrSuperseded is returned by a fetch whose result was discarded because
	// a newer fetch was issued while it was in flight.
	ErrSuperseded = errors.New("controller: superseded by a newer request")

	// ErrClosed is returned by a controller whose view was closed.
	ErrClosed = errors.New("controller: view closed")
)

// Backend is the REST surface the controllers use. api.Client implements it.
type Backend interface {
	ListServices(ctx context.Context, filter model.ServiceFilter) ([]model.Service, error)
	FeaturedServices(ctx context.Context) ([]model.Service, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	ServicesByOwner(ctx context.Context, email string) ([]model.Service, error)
	CreateService(ctx context.Context, s model.Service) (*model.Service, error)
	UpdateService(ctx context.Context, id string, patch model.ServicePatch) error
	DeleteService(ctx context.Context, id string) error
	Stats(ctx context.Context) (*model.Stats, error)

	ReviewsForService(ctx context.Context, serviceID string) ([]model.Review, error)
	ReviewsByUser(ctx context.Context, email string) ([]model.Review, error)
	RecentReviews(ctx context.Context) ([]model.Review, error)
	CreateReview(ctx context.Context, r model.Review) (*model.Review, error)
	UpdateReview(ctx context.Context, id string, patch model.ReviewPatch) error
	DeleteReview(ctx context.Context, id string) error
}

// Confirmer asks the user to approve a destructive action. It is the only
// modal interaction in the client.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, route string)

func (f NavigatorFunc) Navigate(ctx context.Context, route string) { f(ctx, route) }

// confirmed reports whether the user approved prompt. No Confirmer means no
// approval.
func confirmed(ctx context.Context, c Confirmer, prompt string) (bool, error) {
	if c == nil {
		return false, nil
	}
	return c.Confirm(ctx, prompt)
}

// collection is a list owned by one controller. A successful fetch replaces
// it wholesale; there is no incremental merge.
type collection[T any] struct {
	mu     sync.Mutex
	items  []T
	loaded bool
}

func (c *collection[T]) replace(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
	c.loaded = true
}

func (c *collection[T]) prepend(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T{item}, c.items...)
}

// snapshot returns a copy of the items and whether a fetch has succeeded yet.
func (c *collection[T]) snapshot() ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out, c.loaded
}
