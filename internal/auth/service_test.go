package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/notify"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeSession records calls to the backend session endpoints.
type fakeSession struct {
	created   []string
	deleted   int
	createErr error
	deleteErr error
}

func (f *fakeSession) CreateSession(ctx context.Context, email string) error {
	f.created = append(f.created, email)
	return f.createErr
}

func (f *fakeSession) DeleteSession(ctx context.Context) error {
	f.deleted++
	return f.deleteErr
}

// countingProvider wraps MemoryProvider and counts profile updates.
type countingProvider struct {
	*MemoryProvider
	createErr      error
	signInErr      error
	profileUpdates int
}

func (p *countingProvider) CreateUser(ctx context.Context, email, password string) (*model.Identity, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.MemoryProvider.CreateUser(ctx, email, password)
}

func (p *countingProvider) SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	return p.MemoryProvider.SignInWithPassword(ctx, email, password)
}

func (p *countingProvider) UpdateProfile(ctx context.Context, displayName, photoURL string) (*model.Identity, error) {
	p.profileUpdates++
	return p.MemoryProvider.UpdateProfile(ctx, displayName, photoURL)
}

type serviceFixture struct {
	provider *countingProvider
	session  *fakeSession
	notes    *notify.Recorder
	store    *Store
	svc      *Service
}

func newServiceFixture(t *testing.T, opts ...MemoryOption) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		provider: &countingProvider{MemoryProvider: newTestMemoryProvider(opts...)},
		session:  &fakeSession{},
		notes:    &notify.Recorder{},
	}
	f.store = NewStore(f.provider, discardLogger())
	f.store.Start()
	t.Cleanup(f.store.Close)
	f.svc = NewService(f.provider, f.session, f.notes, discardLogger())
	return f
}

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister_Success(t *testing.T) {
	f := newServiceFixture(t)

	identity, err := f.svc.Register(context.Background(), " ana@example.com ", "secret123", "Ana", "https://img.example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, "Ana", identity.DisplayName)
	assert.Equal(t, []string{"ana@example.com"}, f.session.created)
	assert.Equal(t, "Ana", f.store.Identity().DisplayName)
	assert.Equal(t, notify.Message{Kind: notify.KindSuccess, Text: "Registration successful!"}, f.notes.Last())
}

func TestRegister_ProviderRejectionSkipsProfileAndSync(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.provider.MemoryProvider.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, f.provider.SignOut(context.Background()))

	_, err = f.svc.Register(context.Background(), "ana@example.com", "secret123", "Ana", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrCredential))
	assert.Equal(t, 0, f.provider.profileUpdates)
	assert.Empty(t, f.session.created)
	assert.Nil(t, f.store.Identity())
	assert.Equal(t, notify.Message{Kind: notify.KindError, Text: "email already in use"}, f.notes.Last())
}

func TestRegister_UnknownProviderErrorBecomesCredentialError(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.createErr = errors.New("quota exceeded")

	_, err := f.svc.Register(context.Background(), "ana@example.com", "secret123", "Ana", "")

	assert.True(t, errors.Is(err, apperror.ErrCredential))
}

// =========================================================================
// LOGIN
// =========================================================================

func TestLogin_RejectionsAreIndistinguishable(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.provider.MemoryProvider.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, f.provider.SignOut(context.Background()))

	_, wrongPassword := f.svc.Login(context.Background(), "ana@example.com", "nope-nope")
	_, noAccount := f.svc.Login(context.Background(), "bob@example.com", "secret123")

	for _, err := range []error{wrongPassword, noAccount} {
		assert.True(t, errors.Is(err, apperror.ErrInvalidCredentials))
		assert.Equal(t, "invalid email or password", err.Error())
	}
	assert.Empty(t, f.session.created)
	assert.Equal(t, "Invalid email or password", f.notes.Last().Text)
}

func TestLogin_NetworkFailureIsNotReportedAsBadPassword(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.signInErr = apperror.Network("auth: accounts:signInWithPassword", errors.New("dial tcp: refused"))

	_, err := f.svc.Login(context.Background(), "ana@example.com", "secret123")

	assert.True(t, errors.Is(err, apperror.ErrNetwork))
	assert.False(t, errors.Is(err, apperror.ErrInvalidCredentials))
}

func TestLogin_SessionSyncFailureIsSwallowed(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.provider.MemoryProvider.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	f.session.createErr = apperror.Network("posting session", errors.New("connection refused"))

	identity, err := f.svc.Login(context.Background(), "ana@example.com", "secret123")

	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", identity.Email)
	assert.Equal(t, []string{"ana@example.com"}, f.session.created)
	assert.Equal(t, notify.KindSuccess, f.notes.Last().Kind)
}

// =========================================================================
// FEDERATED
// =========================================================================

func TestLoginWithFederatedProvider(t *testing.T) {
	f := newServiceFixture(t, WithFederatedIdentity(model.Identity{Email: "gina@example.com"}))

	identity, err := f.svc.LoginWithFederatedProvider(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "gina@example.com", identity.Email)
	assert.Equal(t, []string{"gina@example.com"}, f.session.created)
	assert.Equal(t, "Google login successful!", f.notes.Last().Text)
}

func TestLoginWithFederatedProvider_Cancelled(t *testing.T) {
	f := newServiceFixture(t, WithFederatedIdentity(model.Identity{Email: "gina@example.com"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.LoginWithFederatedProvider(ctx)

	assert.True(t, errors.Is(err, apperror.ErrCredential))
	assert.Empty(t, f.session.created)
	assert.Nil(t, f.store.Identity())
}

// =========================================================================
// PROFILE
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Register(context.Background(), "ana@example.com", "secret123", "Ana", "")
	require.NoError(t, err)

	identity, err := f.svc.UpdateProfile(context.Background(), " Ana B ", "https://img.example.com/b.png")

	require.NoError(t, err)
	assert.Equal(t, "Ana B", identity.DisplayName)
	assert.Equal(t, "https://img.example.com/b.png", f.store.Identity().PhotoURL)
	assert.Equal(t, "Profile updated successfully!", f.notes.Last().Text)
}

func TestUpdateProfile_SignedOut(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.UpdateProfile(context.Background(), "Ana", "")

	assert.True(t, errors.Is(err, apperror.ErrCredential))
	assert.Equal(t, notify.Message{Kind: notify.KindError, Text: "Failed to update profile"}, f.notes.Last())
}

// =========================================================================
// LOGOUT
// =========================================================================

func TestLoginThenLogout(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Register(context.Background(), "ana@example.com", "secret123", "Ana", "")
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, f.store.Status())

	require.NoError(t, f.svc.Logout(context.Background()))

	assert.Nil(t, f.store.Identity())
	assert.Equal(t, StatusAnonymous, f.store.Status())
	assert.Equal(t, 1, f.session.deleted)
	assert.Equal(t, "Logged out successfully!", f.notes.Last().Text)
}

func TestLogout_ProviderFailureSkipsServer(t *testing.T) {
	f := newServiceFixture(t, WithSignOutError(errors.New("keychain locked")))

	err := f.svc.Logout(context.Background())

	assert.True(t, errors.Is(err, apperror.ErrSignOut))
	assert.Equal(t, 0, f.session.deleted)
	assert.Equal(t, notify.KindError, f.notes.Last().Kind)
}

func TestLogout_ServerFailureStillClearsIdentity(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Register(context.Background(), "ana@example.com", "secret123", "Ana", "")
	require.NoError(t, err)
	f.session.deleteErr = apperror.FromStatus(500, "")

	require.NoError(t, f.svc.Logout(context.Background()))

	assert.Nil(t, f.store.Identity())
	assert.Equal(t, 1, f.session.deleted)
}
