// Package auth keeps the client's view of "who is signed in" in step with an
// external identity provider and with the backend's session cookie.
//
// TWO HALVES OF ONE LOGIN:
// Signing in happens twice, against two different systems:
//  1. The identity provider (Firebase, or the in-memory provider offline)
//     verifies the password or the Google account and owns the Identity.
//  2. The backend mints a Session Token cookie for the identity's email
//     (POST /api/auth/login). The cookie is HttpOnly: this code never reads it,
//     the cookie jar simply sends it back on every request.
//
// The provider is the source of truth for UI state. The Store mirrors it and
// is written only from the provider's state-change callback.
package auth

import (
	"context"
	"slices"
	"sync"

	"github.com/sakif/service-review/internal/model"
)

// StateFunc receives the provider's current identity. A nil identity means
// nobody is signed in.
type StateFunc func(identity *model.Identity)

// Provider is the identity provider capability the rest of the client relies
// on. Implementations: IdentityToolkit (Firebase REST) and MemoryProvider.
type Provider interface {
	// CreateUser creates an account and signs it in.
	CreateUser(ctx context.Context, email, password string) (*model.Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error)
	// SignInWithFederated runs the provider's interactive flow (Google).
	SignInWithFederated(ctx context.Context) (*model.Identity, error)
	SignOut(ctx context.Context) error
	// UpdateProfile sets display name and photo URL of the signed-in user.
	UpdateProfile(ctx context.Context, displayName, photoURL string) (*model.Identity, error)
	// OnStateChanged registers fn and returns a function that unregisters it.
	// Calls are delivered in order, one at a time, and a new subscriber first
	// receives the current state once the provider has resolved it.
	OnStateChanged(fn StateFunc) (unsubscribe func())
}

// FederatedFlow runs an interactive sign-in with an external account and
// returns the OpenID Connect ID token it produced.
type FederatedFlow interface {
	IDToken(ctx context.Context) (string, error)
	// ProviderID is the identity provider's name for the account type,
	// e.g. "google.com".
	ProviderID() string
}

// stateBroadcaster is the ordered callback dispatcher shared by providers.
//
// deliverMu serialises deliveries so two publishes never interleave and a
// subscriber never sees an older state after a newer one. Callbacks run with
// deliverMu held and must not publish from inside the callback.
type stateBroadcaster struct {
	deliverMu sync.Mutex

	mu       sync.Mutex
	current  *model.Identity
	resolved bool
	nextID   int
	subs     map[int]StateFunc
}

func (b *stateBroadcaster) subscribe(fn StateFunc) func() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]StateFunc)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	resolved, current := b.resolved, copyIdentity(b.current)
	b.mu.Unlock()

	if resolved {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// publish records identity as the current state and delivers it to every
// subscriber in subscription order.
func (b *stateBroadcaster) publish(identity *model.Identity) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.current = copyIdentity(identity)
	b.resolved = true
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	fns := make([]StateFunc, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(identity))
	}
}

func (b *stateBroadcaster) snapshot() *model.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyIdentity(b.current)
}

func copyIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
