package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
)

func newTestMemoryProvider(opts ...MemoryOption) *MemoryProvider {
	// bcrypt.MinCost keeps hashing fast in tests.
	return NewMemoryProvider(append([]MemoryOption{WithBcryptCost(bcrypt.MinCost)}, opts...)...)
}

func TestMemoryProvider_CreateAndSignIn(t *testing.T) {
	p := newTestMemoryProvider()
	ctx := context.Background()

	created, err := p.CreateUser(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", created.Email)
	assert.Equal(t, "password", created.ProviderID)
	assert.NotEmpty(t, created.UID)

	require.NoError(t, p.SignOut(ctx))

	signedIn, err := p.SignInWithPassword(ctx, "ANA@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, created.UID, signedIn.UID)
}

func TestMemoryProvider_CreateUserRejections(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantMsg  string
	}{
		{name: "weak password", email: "a@example.com", password: "123", wantMsg: "password should be at least 6 characters"},
		{name: "invalid email", email: "not-an-email", password: "secret123", wantMsg: "invalid email address"},
		{name: "email in use", email: "taken@example.com", password: "secret123", wantMsg: "email already in use"},
	}

	p := newTestMemoryProvider()
	_, err := p.CreateUser(context.Background(), "taken@example.com", "secret123")
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreateUser(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrCredential))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestMemoryProvider_WrongPassword(t *testing.T) {
	p := newTestMemoryProvider()
	_, err := p.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)

	_, err = p.SignInWithPassword(context.Background(), "ana@example.com", "wrong-password")

	assert.True(t, errors.Is(err, apperror.ErrCredential))
}

func TestMemoryProvider_UpdateProfilePublishes(t *testing.T) {
	p := newTestMemoryProvider()
	var r recorder
	p.OnStateChanged(r.record)

	_, err := p.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	updated, err := p.UpdateProfile(context.Background(), "Ana", "https://img.example.com/ana.png")
	require.NoError(t, err)

	assert.Equal(t, "Ana", updated.DisplayName)
	require.Len(t, r.states, 3) // initial nil, created, updated
	assert.Nil(t, r.states[0])
	assert.Equal(t, "Ana", r.states[2].DisplayName)
}

func TestMemoryProvider_UpdateProfileRequiresUser(t *testing.T) {
	p := newTestMemoryProvider()

	_, err := p.UpdateProfile(context.Background(), "Ana", "")

	assert.True(t, errors.Is(err, apperror.ErrCredential))
}

func TestMemoryProvider_Federated(t *testing.T) {
	t.Run("unavailable by default", func(t *testing.T) {
		_, err := newTestMemoryProvider().SignInWithFederated(context.Background())
		assert.True(t, errors.Is(err, apperror.ErrCredential))
	})

	t.Run("configured identity", func(t *testing.T) {
		p := newTestMemoryProvider(WithFederatedIdentity(model.Identity{
			Email:       "gina@example.com",
			DisplayName: "Gina",
		}))

		identity, err := p.SignInWithFederated(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "gina@example.com", identity.Email)
		assert.Equal(t, "google.com", identity.ProviderID)
		assert.Equal(t, "gina@example.com", p.states.snapshot().Email)
	})

	t.Run("cancelled context", func(t *testing.T) {
		p := newTestMemoryProvider(WithFederatedIdentity(model.Identity{Email: "gina@example.com"}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.SignInWithFederated(ctx)
		assert.True(t, errors.Is(err, apperror.ErrCredential))
		assert.Nil(t, p.states.snapshot())
	})
}

func TestMemoryProvider_SignOutError(t *testing.T) {
	boom := errors.New("storage unavailable")
	p := newTestMemoryProvider(WithSignOutError(boom))

	assert.ErrorIs(t, p.SignOut(context.Background()), boom)
}
