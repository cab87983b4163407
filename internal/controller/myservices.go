package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/auth"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/notify"
)

// MyServices is the owner's list of services, with edit and delete.
// Every operation needs a signed-in user.
type MyServices struct {
	backend  Backend
	session  auth.IdentityWaiter
	notifier notify.Notifier
	logger   *slog.Logger

	list collection[model.Service]
}

func NewMyServices(backend Backend, session auth.IdentityWaiter, notifier notify.Notifier, logger *slog.Logger) *MyServices {
	return &MyServices{
		backend:  backend,
		session:  session,
		notifier: notifier,
		logger:   logger,
	}
}

// Load fetches the signed-in user's services and replaces the list.
func (m *MyServices) Load(ctx context.Context) ([]model.Service, error) {
	identity, err := auth.RequireIdentity(ctx, m.session)
	if err != nil {
		return nil, err
	}

	services, err := m.backend.ServicesByOwner(ctx, identity.Email)
	if err != nil {
		m.logger.Warn("failed to load own services",
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		m.notifier.Error("Failed to load services")
		return nil, fmt.Errorf("controller: loading my services: %w", err)
	}

	m.list.replace(services)
	return services, nil
}

// Services returns the list as last loaded.
func (m *MyServices) Services() []model.Service {
	services, _ := m.list.snapshot()
	return services
}

// Update sends the changed fields only, then re-fetches the list.
func (m *MyServices) Update(ctx context.Context, id string, patch model.ServicePatch) error {
	if _, err := auth.RequireIdentity(ctx, m.session); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		m.notifier.Error(err.Error())
		return err
	}

	if err := m.backend.UpdateService(ctx, id, patch); err != nil {
		m.logger.Warn("failed to update service",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		m.notifier.Error("Failed to update service")
		return fmt.Errorf("controller: updating service: %w", err)
	}

	m.logger.Info("service updated", slog.String("id", id))
	m.notifier.Success("Service updated successfully!")

	// A failed re-fetch is notified by Load; the update itself went through.
	_, _ = m.Load(ctx)
	return nil
}

// Delete removes a service once confirm approves, then re-fetches the list.
// Without approval nothing is sent and apperror.ErrNotConfirmed is returned.
func (m *MyServices) Delete(ctx context.Context, id string, confirm Confirmer) error {
	if _, err := auth.RequireIdentity(ctx, m.session); err != nil {
		return err
	}

	ok, err := confirmed(ctx, confirm, "Delete this service? This cannot be undone.")
	if err != nil {
		return fmt.Errorf("controller: confirming delete: %w", err)
	}
	if !ok {
		return apperror.NotConfirmed("delete service")
	}

	if err := m.backend.DeleteService(ctx, id); err != nil {
		m.logger.Warn("failed to delete service",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		m.notifier.Error("Failed to delete service")
		return fmt.Errorf("controller: deleting service: %w", err)
	}

	m.logger.Info("service deleted", slog.String("id", id))
	m.notifier.Success("Service deleted successfully!")

	_, _ = m.Load(ctx)
	return nil
}

// ServiceEditor is the Add Service form.
type ServiceEditor struct {
	backend   Backend
	session   auth.IdentityWaiter
	navigator Navigator
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewServiceEditor(backend Backend, session auth.IdentityWaiter, navigator Navigator, notifier notify.Notifier, logger *slog.Logger) *ServiceEditor {
	return &ServiceEditor{
		backend:   backend,
		session:   session,
		navigator: navigator,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates form, posts it, and on success navigates to the owner's
// list, which fetches the new service itself. On failure the form is left
// for the caller to resubmit; nothing is retried here.
func (e *ServiceEditor) Create(ctx context.Context, form model.ServiceForm) (*model.Service, error) {
	identity, err := auth.RequireIdentity(ctx, e.session)
	if err != nil {
		return nil, err
	}
	if err := form.Validate(); err != nil {
		e.notifier.Error(err.Error())
		return nil, err
	}

	service := form.Service()
	service.UserEmail = identity.Email
	service.AddedDate = e.now().UTC()

	created, err := e.backend.CreateService(ctx, service)
	if err != nil {
		e.logger.Warn("failed to add service",
			slog.String("title", service.Title),
			slog.String("error", err.Error()),
		)
		e.notifier.Error("Failed to add service")
		return nil, fmt.Errorf("controller: adding service: %w", err)
	}

	e.logger.Info("service added",
		slog.String("id", created.ID),
		slog.String("title", created.Title),
	)
	e.notifier.Success("Service added successfully!")
	if e.navigator != nil {
		e.navigator.Navigate(ctx, RouteMyServices)
	}
	return created, nil
}
