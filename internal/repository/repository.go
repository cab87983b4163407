// Package repository defines the local persistence the client needs between
// runs: the identity provider's signed-in user and the HTTP cookie jar.
// Backend data (services, reviews) is never stored locally.
package repository

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/service-review/internal/model"
)

// ProviderUser is a provider's persisted sign-in.
type ProviderUser struct {
	Provider    string // e.g. "firebase"
	Identity    model.Identity
	Credentials model.Credentials
	UpdatedAt   time.Time
}

// UserStateRepository persists at most one signed-in user per provider.
type UserStateRepository interface {
	// LoadUser returns apperror.ErrNotFound when nobody is signed in.
	LoadUser(ctx context.Context, provider string) (*ProviderUser, error)
	SaveUser(ctx context.Context, user *ProviderUser) error
	ClearUser(ctx context.Context, provider string) error
}

// CookieRepository persists cookies per origin (scheme://host).
type CookieRepository interface {
	SaveCookies(ctx context.Context, origin string, cookies []*http.Cookie) error
	LoadCookies(ctx context.Context, origin string) ([]*http.Cookie, error)
}
