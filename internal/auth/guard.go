package auth

import (
	"context"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
)

// IdentityWaiter is the part of the session Store a guard needs.
type IdentityWaiter interface {
	Await(ctx context.Context) (*model.Identity, error)
}

// RequireIdentity guards a private operation (My Services, My Reviews, Add
// Service, posting a review).
//
// It waits while the store is still resolving, so a user with a restored
// session is never mistaken for an anonymous one at startup. Anonymous
// callers get apperror.ErrUnauthenticated.
func RequireIdentity(ctx context.Context, store IdentityWaiter) (*model.Identity, error) {
	identity, err := store.Await(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, apperror.Unauthenticated()
	}
	return identity, nil
}
