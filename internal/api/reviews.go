package api

import (
	"context"
	"fmt"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
)

// ReviewsForService returns the reviews of one service, newest first.
//
// HTTP: GET /api/reviews/service/{id}
func (c *Client) ReviewsForService(ctx context.Context, serviceID string) ([]model.Review, error) {
	var reviews []model.Review
	if err := c.get(ctx, "/api/reviews/service/"+segment(serviceID), nil, &reviews); err != nil {
		return nil, fmt.Errorf("api: listing reviews of service %s: %w", serviceID, err)
	}
	return nonNil(reviews), nil
}

// ReviewsByUser returns the reviews written by email. Needs the session
// cookie.
//
// HTTP: GET /api/reviews/user/{email}
func (c *Client) ReviewsByUser(ctx context.Context, email string) ([]model.Review, error) {
	var reviews []model.Review
	if err := c.get(ctx, "/api/reviews/user/"+segment(email), nil, &reviews); err != nil {
		return nil, fmt.Errorf("api: listing reviews of %s: %w", email, err)
	}
	return nonNil(reviews), nil
}

// RecentReviews returns the latest reviews across all services.
//
// HTTP: GET /api/reviews/recent
func (c *Client) RecentReviews(ctx context.Context) ([]model.Review, error) {
	var reviews []model.Review
	if err := c.get(ctx, "/api/reviews/recent", nil, &reviews); err != nil {
		return nil, fmt.Errorf("api: listing recent reviews: %w", err)
	}
	return nonNil(reviews), nil
}

// CreateReview posts a review and returns the stored copy.
//
// HTTP: POST /api/reviews
// RESPONSE: {"review": {...}}
func (c *Client) CreateReview(ctx context.Context, r model.Review) (*model.Review, error) {
	var resp struct {
		Review *model.Review `json:"review"`
	}
	if err := c.post(ctx, "/api/reviews", r, &resp); err != nil {
		return nil, fmt.Errorf("api: creating review: %w", err)
	}
	if resp.Review == nil {
		return nil, fmt.Errorf("api: creating review: %w",
			apperror.Network("api: POST /api/reviews", fmt.Errorf("response has no review")))
	}
	return resp.Review, nil
}

// UpdateReview changes the rating and/or text of a review.
//
// HTTP: PATCH /api/reviews/{id}
func (c *Client) UpdateReview(ctx context.Context, id string, patch model.ReviewPatch) error {
	if err := c.patch(ctx, "/api/reviews/"+segment(id), patch, nil); err != nil {
		return fmt.Errorf("api: updating review %s: %w", id, err)
	}
	return nil
}

// DeleteReview removes a review.
//
// HTTP: DELETE /api/reviews/{id}
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/api/reviews/"+segment(id)); err != nil {
		return fmt.Errorf("api: deleting review %s: %w", id, err)
	}
	return nil
}
