package api

import (
	"context"
	"fmt"
)

// CreateSession asks the backend to mint the session cookie for email.
//
// HTTP: POST /api/auth/login {"email": "..."}
// The response sets an HttpOnly cookie; the jar stores it.
func (c *Client) CreateSession(ctx context.Context, email string) error {
	if err := c.post(ctx, "/api/auth/login", map[string]string{"email": email}, nil); err != nil {
		return fmt.Errorf("api: creating session: %w", err)
	}
	return nil
}

// DeleteSession asks the backend to clear the session cookie.
//
// HTTP: POST /api/auth/logout
func (c *Client) DeleteSession(ctx context.Context) error {
	if err := c.post(ctx, "/api/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("api: deleting session: %w", err)
	}
	return nil
}
