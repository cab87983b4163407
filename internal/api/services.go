package api

import (
	"context"
	"fmt"

	"github.com/sakif/service-review/internal/model"
)

// ListServices returns the services matching filter.
//
// HTTP: GET /api/services?search=...&category=...
// An empty result is an empty, non-nil slice.
func (c *Client) ListServices(ctx context.Context, filter model.ServiceFilter) ([]model.Service, error) {
	var services []model.Service
	if err := c.get(ctx, "/api/services", filter.Query(), &services); err != nil {
		return nil, fmt.Errorf("api: listing services: %w", err)
	}
	return nonNil(services), nil
}

// FeaturedServices returns the services shown on the home page.
//
// HTTP: GET /api/services/featured
func (c *Client) FeaturedServices(ctx context.Context) ([]model.Service, error) {
	var services []model.Service
	if err := c.get(ctx, "/api/services/featured", nil, &services); err != nil {
		return nil, fmt.Errorf("api: listing featured services: %w", err)
	}
	return nonNil(services), nil
}

// GetService returns one service.
//
// HTTP: GET /api/services/{id}
func (c *Client) GetService(ctx context.Context, id string) (*model.Service, error) {
	var s model.Service
	if err := c.get(ctx, "/api/services/"+segment(id), nil, &s); err != nil {
		return nil, fmt.Errorf("api: getting service %s: %w", id, err)
	}
	return &s, nil
}

// ServicesByOwner returns the services added by email. Needs the session
// cookie.
//
// HTTP: GET /api/services/user/{email}
func (c *Client) ServicesByOwner(ctx context.Context, email string) ([]model.Service, error) {
	var services []model.Service
	if err := c.get(ctx, "/api/services/user/"+segment(email), nil, &services); err != nil {
		return nil, fmt.Errorf("api: listing services of %s: %w", email, err)
	}
	return nonNil(services), nil
}

// CreateService adds a service and returns the backend's copy.
//
// HTTP: POST /api/services
func (c *Client) CreateService(ctx context.Context, s model.Service) (*model.Service, error) {
	var created model.Service
	if err := c.post(ctx, "/api/services", s, &created); err != nil {
		return nil, fmt.Errorf("api: creating service: %w", err)
	}
	return &created, nil
}

// UpdateService sends only the fields set in patch.
//
// HTTP: PATCH /api/services/{id}
func (c *Client) UpdateService(ctx context.Context, id string, patch model.ServicePatch) error {
	if err := c.patch(ctx, "/api/services/"+segment(id), patch, nil); err != nil {
		return fmt.Errorf("api: updating service %s: %w", id, err)
	}
	return nil
}

// DeleteService removes a service.
//
// HTTP: DELETE /api/services/{id}
func (c *Client) DeleteService(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/api/services/"+segment(id)); err != nil {
		return fmt.Errorf("api: deleting service %s: %w", id, err)
	}
	return nil
}

// Stats returns the aggregate counts shown on the home page.
//
// HTTP: GET /api/stats
func (c *Client) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := c.get(ctx, "/api/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("api: getting stats: %w", err)
	}
	return &stats, nil
}

// nonNil turns a JSON null into an empty list.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
