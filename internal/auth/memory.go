package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/xid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
)

// defaultCost is the bcrypt work factor for stored passwords.
//
// MemoryProvider only lives as long as the process, but it still hashes: a
// password kept in memory in plain text ends up in core dumps and debug logs.
const defaultCost = bcrypt.DefaultCost

// minPasswordLength matches Firebase's weak-password rule.
const minPasswordLength = 6

type memoryAccount struct {
	passwordHash string
	identity     model.Identity
}

// MemoryProvider is an in-process identity provider for offline development
// and tests. Accounts disappear when the process exits.
type MemoryProvider struct {
	states stateBroadcaster

	mu        sync.Mutex
	cost      int
	accounts  map[string]*memoryAccount // keyed by lower-cased email
	current   string                    // email of the signed-in account, "" if none
	federated *model.Identity
	signOut   error
}

// MemoryOption configures a MemoryProvider.
type MemoryOption func(*MemoryProvider)

// WithBcryptCost sets the bcrypt work factor. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) MemoryOption {
	return func(p *MemoryProvider) { p.cost = cost }
}

// WithFederatedIdentity makes SignInWithFederated succeed as identity.
// Without it, the federated flow reports that it is unavailable.
func WithFederatedIdentity(identity model.Identity) MemoryOption {
	return func(p *MemoryProvider) { p.federated = &identity }
}

// WithSignOutError makes every SignOut fail with err.
func WithSignOutError(err error) MemoryOption {
	return func(p *MemoryProvider) { p.signOut = err }
}

// NewMemoryProvider returns a provider with no accounts and nobody signed in.
// It resolves immediately: subscribers get "no identity" right away.
func NewMemoryProvider(opts ...MemoryOption) *MemoryProvider {
	p := &MemoryProvider{
		cost:     defaultCost,
		accounts: make(map[string]*memoryAccount),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.states.publish(nil)
	return p
}

func (p *MemoryProvider) CreateUser(ctx context.Context, email, password string) (*model.Identity, error) {
	email = strings.TrimSpace(email)
	key := strings.ToLower(email)
	if !strings.Contains(email, "@") {
		return nil, apperror.Credential("invalid email address", nil)
	}
	if len(password) < minPasswordLength {
		return nil, apperror.Credential(
			fmt.Sprintf("password should be at least %d characters", minPasswordLength), nil)
	}
	// bcrypt silently truncates longer passwords.
	if len(password) > 72 {
		return nil, apperror.Credential("password must be 72 bytes or fewer", nil)
	}

	p.mu.Lock()
	if _, exists := p.accounts[key]; exists {
		p.mu.Unlock()
		return nil, apperror.Credential("email already in use", nil)
	}
	cost := p.cost
	p.mu.Unlock()

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hashing password: %w", err)
	}

	account := &memoryAccount{
		passwordHash: string(hashed),
		identity: model.Identity{
			UID:        xid.New().String(),
			Email:      email,
			ProviderID: "password",
		},
	}

	p.mu.Lock()
	if _, exists := p.accounts[key]; exists {
		p.mu.Unlock()
		return nil, apperror.Credential("email already in use", nil)
	}
	p.accounts[key] = account
	p.current = key
	identity := account.identity
	p.mu.Unlock()

	p.states.publish(&identity)
	return &identity, nil
}

func (p *MemoryProvider) SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	account, ok := p.accounts[key]
	p.mu.Unlock()
	if !ok {
		return nil, apperror.Credential("no account for this email", nil)
	}

	// CompareHashAndPassword compares in constant time.
	if err := bcrypt.CompareHashAndPassword([]byte(account.passwordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, apperror.Credential("wrong password", nil)
		}
		return nil, fmt.Errorf("auth: comparing password hash: %w", err)
	}

	p.mu.Lock()
	p.current = key
	identity := account.identity
	p.mu.Unlock()

	p.states.publish(&identity)
	return &identity, nil
}

func (p *MemoryProvider) SignInWithFederated(ctx context.Context) (*model.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Credential("sign-in cancelled", err)
	}

	p.mu.Lock()
	if p.federated == nil {
		p.mu.Unlock()
		return nil, apperror.Credential("federated sign-in is not available", nil)
	}
	identity := *p.federated
	if identity.ProviderID == "" {
		identity.ProviderID = "google.com"
	}
	key := strings.ToLower(identity.Email)
	if existing, ok := p.accounts[key]; ok {
		identity.UID = existing.identity.UID
	} else {
		if identity.UID == "" {
			identity.UID = xid.New().String()
		}
		p.accounts[key] = &memoryAccount{identity: identity}
	}
	p.current = key
	p.mu.Unlock()

	p.states.publish(&identity)
	return &identity, nil
}

func (p *MemoryProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	if p.signOut != nil {
		err := p.signOut
		p.mu.Unlock()
		return err
	}
	p.current = ""
	p.mu.Unlock()

	p.states.publish(nil)
	return nil
}

func (p *MemoryProvider) UpdateProfile(ctx context.Context, displayName, photoURL string) (*model.Identity, error) {
	p.mu.Lock()
	account, ok := p.accounts[p.current]
	if p.current == "" || !ok {
		p.mu.Unlock()
		return nil, apperror.Credential("no user is signed in", nil)
	}
	account.identity.DisplayName = displayName
	account.identity.PhotoURL = photoURL
	identity := account.identity
	p.mu.Unlock()

	p.states.publish(&identity)
	return &identity, nil
}

func (p *MemoryProvider) OnStateChanged(fn StateFunc) func() {
	return p.states.subscribe(fn)
}

// Invalidate signs the current user out from the provider side, the way a
// revoked or expired account would.
func (p *MemoryProvider) Invalidate() {
	p.mu.Lock()
	p.current = ""
	p.mu.Unlock()
	p.states.publish(nil)
}
