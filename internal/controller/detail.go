package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/auth"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/notify"
)

// ServiceDetail is one service's page: the service, its reviews, and the
// "Add Your Review" form.
type ServiceDetail struct {
	backend  Backend
	session  auth.IdentityWaiter
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	service *model.Service
	reviews collection[model.Review]
}

func NewServiceDetail(backend Backend, session auth.IdentityWaiter, notifier notify.Notifier, logger *slog.Logger) *ServiceDetail {
	return &ServiceDetail{
		backend:  backend,
		session:  session,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Load fetches the service and its reviews concurrently. Both must succeed;
// otherwise the previous page content is kept.
func (d *ServiceDetail) Load(ctx context.Context, id string) error {
	var (
		service *model.Service
		reviews []model.Review
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := d.backend.GetService(gctx, id)
		service = s
		return err
	})
	g.Go(func() error {
		r, err := d.backend.ReviewsForService(gctx, id)
		reviews = r
		return err
	})
	if err := g.Wait(); err != nil {
		d.logger.Warn("failed to load service details",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		d.notifier.Error("Failed to load service details")
		return fmt.Errorf("controller: loading service %s: %w", id, err)
	}

	d.mu.Lock()
	d.service = service
	d.mu.Unlock()
	d.reviews.replace(reviews)
	return nil
}

// Service returns a copy of the loaded service, or nil before Load.
func (d *ServiceDetail) Service() *model.Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.service == nil {
		return nil
	}
	s := *d.service
	return &s
}

// Reviews returns the service's reviews, newest first.
func (d *ServiceDetail) Reviews() []model.Review {
	reviews, _ := d.reviews.snapshot()
	return reviews
}

// SubmitReview posts a review of the loaded service.
//
// The checks run in the order the user would hit them: signed in, rating
// chosen, text written. None of them touches the network. The service title
// is copied into the review now and is not updated if the service is renamed
// later. The review the server returns goes to the top of the list.
//
// The same user may review a service more than once; the server decides.
func (d *ServiceDetail) SubmitReview(ctx context.Context, form model.ReviewForm) (*model.Review, error) {
	service := d.Service()
	if service == nil {
		return nil, apperror.ValidationFailed("serviceId", "no service loaded")
	}

	identity, err := auth.RequireIdentity(ctx, d.session)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthenticated) {
			d.notifier.Error("Please login to add a review")
		}
		return nil, err
	}

	if err := form.Validate(); err != nil {
		d.notifier.Error(reviewFormMessage(form))
		return nil, err
	}

	review := model.Review{
		ServiceID:    service.ID,
		ServiceTitle: service.Title,
		Rating:       form.Rating,
		ReviewText:   strings.TrimSpace(form.Text),
		UserEmail:    identity.Email,
		UserName:     identity.DisplayName,
		UserPhoto:    identity.PhotoURL,
		PostedDate:   d.now().UTC(),
	}

	created, err := d.backend.CreateReview(ctx, review)
	if err != nil {
		d.logger.Warn("failed to add review",
			slog.String("service_id", service.ID),
			slog.String("error", err.Error()),
		)
		d.notifier.Error("Failed to add review")
		return nil, fmt.Errorf("controller: adding review: %w", err)
	}

	d.reviews.prepend(*created)
	d.logger.Info("review added",
		slog.String("id", created.ID),
		slog.String("service_id", service.ID),
	)
	d.notifier.Success("Review added successfully!")
	return created, nil
}

// reviewFormMessage is the notification for the first problem with form.
func reviewFormMessage(form model.ReviewForm) string {
	if form.Rating == 0 {
		return "Please select a rating"
	}
	if form.Rating < model.MinRating || form.Rating > model.MaxRating {
		return fmt.Sprintf("Rating must be between %d and %d", model.MinRating, model.MaxRating)
	}
	if strings.TrimSpace(form.Text) == "" {
		return "Please write a review"
	}
	return fmt.Sprintf("Review must be %d characters or less", model.MaxReviewLength)
}
