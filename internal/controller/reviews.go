package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/auth"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/notify"
)

// MyReviews is the signed-in user's reviews, with edit and delete.
type MyReviews struct {
	backend  Backend
	session  auth.IdentityWaiter
	notifier notify.Notifier
	logger   *slog.Logger

	list collection[model.Review]
}

func NewMyReviews(backend Backend, session auth.IdentityWaiter, notifier notify.Notifier, logger *slog.Logger) *MyReviews {
	return &MyReviews{
		backend:  backend,
		session:  session,
		notifier: notifier,
		logger:   logger,
	}
}

// Load fetches the user's reviews and replaces the list.
func (m *MyReviews) Load(ctx context.Context) ([]model.Review, error) {
	identity, err := auth.RequireIdentity(ctx, m.session)
	if err != nil {
		return nil, err
	}

	reviews, err := m.backend.ReviewsByUser(ctx, identity.Email)
	if err != nil {
		m.logger.Warn("failed to load own reviews",
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		m.notifier.Error("Failed to load reviews")
		return nil, fmt.Errorf("controller: loading my reviews: %w", err)
	}

	m.list.replace(reviews)
	return reviews, nil
}

func (m *MyReviews) Reviews() []model.Review {
	reviews, _ := m.list.snapshot()
	return reviews
}

// Update changes the rating and/or text, then re-fetches the list.
func (m *MyReviews) Update(ctx context.Context, id string, patch model.ReviewPatch) error {
	if _, err := auth.RequireIdentity(ctx, m.session); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		m.notifier.Error(err.Error())
		return err
	}

	if err := m.backend.UpdateReview(ctx, id, patch); err != nil {
		m.logger.Warn("failed to update review",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		m.notifier.Error("Failed to update review")
		return fmt.Errorf("controller: updating review: %w", err)
	}

	m.notifier.Success("Review updated successfully!")
	_, _ = m.Load(ctx)
	return nil
}

// Delete removes a review once confirm approves, then re-fetches the list.
func (m *MyReviews) Delete(ctx context.Context, id string, confirm Confirmer) error {
	if _, err := auth.RequireIdentity(ctx, m.session); err != nil {
		return err
	}

	ok, err := confirmed(ctx, confirm, "Delete this review? This cannot be undone.")
	if err != nil {
		return fmt.Errorf("controller: confirming delete: %w", err)
	}
	if !ok {
		return apperror.NotConfirmed("delete review")
	}

	if err := m.backend.DeleteReview(ctx, id); err != nil {
		m.logger.Warn("failed to delete review",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		m.notifier.Error("Failed to delete review")
		return fmt.Errorf("controller: deleting review: %w", err)
	}

	m.notifier.Success("Review deleted successfully!")
	_, _ = m.Load(ctx)
	return nil
}

// RecentReviews is the latest reviews across all services.
type RecentReviews struct {
	backend  Backend
	notifier notify.Notifier
	logger   *slog.Logger

	list collection[model.Review]
}

func NewRecentReviews(backend Backend, notifier notify.Notifier, logger *slog.Logger) *RecentReviews {
	return &RecentReviews{backend: backend, notifier: notifier, logger: logger}
}

func (r *RecentReviews) Load(ctx context.Context) ([]model.Review, error) {
	reviews, err := r.backend.RecentReviews(ctx)
	if err != nil {
		r.logger.Warn("failed to load recent reviews", slog.String("error", err.Error()))
		r.notifier.Error("Failed to load reviews")
		return nil, fmt.Errorf("controller: loading recent reviews: %w", err)
	}
	r.list.replace(reviews)
	return reviews, nil
}

func (r *RecentReviews) Reviews() []model.Review {
	reviews, _ := r.list.snapshot()
	return reviews
}
