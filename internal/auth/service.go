package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/notify"
)

// SessionAPI is the backend's session endpoint pair. api.Client implements it.
type SessionAPI interface {
	// CreateSession asks the backend to mint a Session Token cookie for email.
	CreateSession(ctx context.Context, email string) error
	// DeleteSession asks the backend to clear the Session Token cookie.
	DeleteSession(ctx context.Context) error
}

// Service orchestrates the auth operations across the identity provider and
// the backend session.
//
//	Register/Login/Federated:  provider ──ok──▶ backend session (best effort)
//	Logout:                    provider ──ok──▶ backend logout (best effort)
//
// It never writes the session Store: the provider's callback does that.
//
// DEPENDENCIES (injected via NewService):
//   - provider  Provider         → the identity provider
//   - session   SessionAPI       → backend session endpoints
//   - notifier  notify.Notifier  → one-line success/error messages
//   - logger    *slog.Logger     → structured logging
type Service struct {
	provider Provider
	session  SessionAPI
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewService(provider Provider, session SessionAPI, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		provider: provider,
		session:  session,
		notifier: notifier,
		logger:   logger,
	}
}

// Register creates the provider account, sets its profile, then syncs the
// backend session. If the provider rejects the account, the profile update
// and the session sync are skipped.
func (s *Service) Register(ctx context.Context, email, password, displayName, photoURL string) (*model.Identity, error) {
	email = strings.TrimSpace(email)

	if _, err := s.provider.CreateUser(ctx, email, password); err != nil {
		err = asCredential(err)
		s.notifier.Error(err.Error())
		return nil, fmt.Errorf("auth: creating account: %w", err)
	}

	identity, err := s.provider.UpdateProfile(ctx, displayName, photoURL)
	if err != nil {
		err = asCredential(err)
		s.notifier.Error(err.Error())
		return nil, fmt.Errorf("auth: updating profile: %w", err)
	}

	s.syncSession(ctx, email)

	s.logger.Info("user registered", slog.String("email", email))
	s.notifier.Success("Registration successful!")
	return identity, nil
}

// Login signs in with email and password. Every provider rejection is
// reported as the same InvalidCredentials error, so the caller cannot tell a
// missing account from a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	email = strings.TrimSpace(email)

	identity, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if isNetwork(err) {
			s.notifier.Error("Login failed: identity provider unreachable")
			return nil, fmt.Errorf("auth: signing in: %w", err)
		}
		s.logger.Debug("sign-in rejected", slog.String("error", err.Error()))
		s.notifier.Error("Invalid email or password")
		return nil, apperror.InvalidCredentials(err)
	}

	s.syncSession(ctx, identity.Email)

	s.logger.Info("user logged in", slog.String("email", identity.Email))
	s.notifier.Success("Login successful!")
	return identity, nil
}

// LoginWithFederatedProvider runs the provider's interactive flow (Google).
// Cancellation and provider errors are credential errors.
func (s *Service) LoginWithFederatedProvider(ctx context.Context) (*model.Identity, error) {
	identity, err := s.provider.SignInWithFederated(ctx)
	if err != nil {
		err = asCredential(err)
		s.notifier.Error(err.Error())
		return nil, fmt.Errorf("auth: federated sign-in: %w", err)
	}

	s.syncSession(ctx, identity.Email)

	s.logger.Info("user logged in with federated provider",
		slog.String("email", identity.Email),
		slog.String("provider", identity.ProviderID),
	)
	s.notifier.Success("Google login successful!")
	return identity, nil
}

// UpdateProfile changes the signed-in user's display name and photo. The
// provider publishes the new identity, so the Store picks it up.
func (s *Service) UpdateProfile(ctx context.Context, displayName, photoURL string) (*model.Identity, error) {
	identity, err := s.provider.UpdateProfile(ctx, strings.TrimSpace(displayName), strings.TrimSpace(photoURL))
	if err != nil {
		s.logger.Warn("profile update failed", slog.String("error", err.Error()))
		s.notifier.Error("Failed to update profile")
		return nil, fmt.Errorf("auth: updating profile: %w", asCredential(err))
	}

	s.notifier.Success("Profile updated successfully!")
	return identity, nil
}

// Logout signs out of the provider, then clears the backend session. If the
// provider sign-out fails, the backend is not called. If only the backend
// call fails, the user is still signed out locally and the cookie may
// outlive the session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		signOutErr := apperror.SignOut(err)
		s.notifier.Error(signOutErr.Error())
		return fmt.Errorf("auth: signing out: %w", signOutErr)
	}

	if err := s.session.DeleteSession(ctx); err != nil {
		s.logger.Warn("backend logout failed, session cookie may persist",
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user logged out")
	s.notifier.Success("Logged out successfully!")
	return nil
}

// syncSession mints the backend Session Token. It is best effort: the
// provider half already succeeded, so a failure is logged and swallowed.
func (s *Service) syncSession(ctx context.Context, email string) {
	if err := s.session.CreateSession(ctx, email); err != nil {
		s.logger.Warn("session sync failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}
}

// asCredential keeps credential and network errors as they are and turns
// anything else into a credential error.
func asCredential(err error) error {
	if errors.Is(err, apperror.ErrCredential) || isNetwork(err) {
		return err
	}
	return apperror.Credential(err.Error(), err)
}

func isNetwork(err error) bool {
	return errors.Is(err, apperror.ErrNetwork) && !errors.Is(err, apperror.ErrCredential)
}
