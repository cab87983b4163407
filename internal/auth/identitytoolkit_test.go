package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/repository"
	sqliteRepo "github.com/sakif/service-review/internal/repository/sqlite"
)

const testAPIKey = "test-api-key"

// =========================================================================
// FAKE FIREBASE
// =========================================================================

type fakeAccount struct {
	uid         string
	email       string
	password    string
	displayName string
	photoURL    string
	provider    string
}

// fakeFirebase serves the Identity Toolkit and Secure Token endpoints the
// provider calls, backed by a map.
type fakeFirebase struct {
	t *testing.T

	mu            sync.Mutex
	accounts      map[string]*fakeAccount // by email
	refreshTokens map[string]string       // refresh token → email
	revoked       bool
	failWith      int // non-zero: every call returns this status
	refreshCalls  int
	lastIdpBody   url.Values

	server *httptest.Server
}

func newFakeFirebase(t *testing.T) *fakeFirebase {
	t.Helper()
	f := &fakeFirebase{
		t:             t,
		accounts:      make(map[string]*fakeAccount),
		refreshTokens: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(f.checkKey)
	r.Post("/v1/accounts:signUp", f.handleSignUp)
	r.Post("/v1/accounts:signInWithPassword", f.handleSignIn)
	r.Post("/v1/accounts:signInWithIdp", f.handleSignInWithIdp)
	r.Post("/v1/accounts:update", f.handleUpdate)
	r.Post("/v1/token", f.handleRefresh)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFirebase) checkKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != testAPIKey {
			f.fail(w, http.StatusBadRequest, "API_KEY_INVALID")
			return
		}
		f.mu.Lock()
		status := f.failWith
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeFirebase) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[req.Email]; ok {
		f.fail(w, http.StatusBadRequest, "EMAIL_EXISTS")
		return
	}
	if len(req.Password) < 6 {
		f.fail(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}
	acc := &fakeAccount{uid: xid.New().String(), email: req.Email, password: req.Password, provider: "password"}
	f.accounts[req.Email] = acc
	f.writeSession(w, acc)
}

func (f *fakeFirebase) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[req.Email]
	if !ok || acc.password != req.Password {
		f.fail(w, http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS")
		return
	}
	f.writeSession(w, acc)
}

func (f *fakeFirebase) handleSignInWithIdp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostBody string `json:"postBody"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	body, _ := url.ParseQuery(req.PostBody)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIdpBody = body
	if body.Get("id_token") != "google-id-token" {
		f.fail(w, http.StatusBadRequest, "INVALID_IDP_RESPONSE")
		return
	}
	acc := &fakeAccount{uid: "google-uid", email: "gina@example.com", displayName: "Gina", provider: "google.com"}
	f.accounts[acc.email] = acc
	f.writeSession(w, acc)
}

func (f *fakeFirebase) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken     string `json:"idToken"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoUrl"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(req.IDToken, &claims); err != nil {
		f.fail(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[claims.Email]
	if !ok {
		f.fail(w, http.StatusBadRequest, "USER_NOT_FOUND")
		return
	}
	acc.displayName = req.DisplayName
	acc.photoURL = req.PhotoURL
	json.NewEncoder(w).Encode(map[string]any{
		"localId":     acc.uid,
		"email":       acc.email,
		"displayName": acc.displayName,
		"photoUrl":    acc.photoURL,
	})
}

func (f *fakeFirebase) handleRefresh(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	email, ok := f.refreshTokens[r.PostForm.Get("refresh_token")]
	if f.revoked || !ok || r.PostForm.Get("grant_type") != "refresh_token" {
		f.fail(w, http.StatusBadRequest, "TOKEN_EXPIRED")
		return
	}
	acc := f.accounts[email]
	refresh := xid.New().String()
	f.refreshTokens[refresh] = email
	json.NewEncoder(w).Encode(map[string]any{
		"id_token":      f.mintToken(acc),
		"refresh_token": refresh,
		"expires_in":    "3600",
		"user_id":       acc.uid,
	})
}

func (f *fakeFirebase) setRevoked() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = true
}

func (f *fakeFirebase) setFailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

func (f *fakeFirebase) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeFirebase) idpBody() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastIdpBody
}

// writeSession must be called with f.mu held.
func (f *fakeFirebase) writeSession(w http.ResponseWriter, acc *fakeAccount) {
	refresh := xid.New().String()
	f.refreshTokens[refresh] = acc.email
	json.NewEncoder(w).Encode(map[string]any{
		"localId":      acc.uid,
		"email":        acc.email,
		"displayName":  acc.displayName,
		"idToken":      f.mintToken(acc),
		"refreshToken": refresh,
		"expiresIn":    "3600",
	})
}

func (f *fakeFirebase) mintToken(acc *fakeAccount) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":        acc.uid,
		"sub":            acc.uid,
		"email":          acc.email,
		"email_verified": acc.provider == "google.com",
		"name":           acc.displayName,
		"picture":        acc.photoURL,
		"firebase":       map[string]any{"sign_in_provider": acc.provider},
		"exp":            time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("fake-firebase-signing-key"))
	if err != nil {
		f.t.Fatalf("minting token: %v", err)
	}
	return token
}

func (f *fakeFirebase) fail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

// fakeFlow stands in for the interactive Google flow.
type fakeFlow struct {
	token string
	err   error
}

func (f fakeFlow) IDToken(ctx context.Context) (string, error) { return f.token, f.err }
func (f fakeFlow) ProviderID() string                          { return "google.com" }

func newTestDB(t *testing.T) *sqliteRepo.DB {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestToolkit(t *testing.T, fb *fakeFirebase, users repository.UserStateRepository, flow FederatedFlow) *IdentityToolkit {
	t.Helper()
	p, err := NewIdentityToolkit(IdentityToolkitConfig{
		APIKey:     testAPIKey,
		BaseURL:    fb.server.URL + "/v1",
		TokenURL:   fb.server.URL + "/v1",
		HTTPClient: fb.server.Client(),
		Users:      users,
		Flow:       flow,
	}, discardLogger())
	require.NoError(t, err)
	return p
}

// =========================================================================
// TESTS
// =========================================================================

func TestNewIdentityToolkit_RequiresAPIKey(t *testing.T) {
	_, err := NewIdentityToolkit(IdentityToolkitConfig{}, discardLogger())
	assert.Error(t, err)
}

func TestIdentityToolkit_SignUpPersistsAndPublishes(t *testing.T) {
	fb := newFakeFirebase(t)
	db := newTestDB(t)
	p := newTestToolkit(t, fb, db, nil)
	var r recorder
	p.OnStateChanged(r.record)

	identity, err := p.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", identity.Email)
	assert.Equal(t, "password", identity.ProviderID)
	assert.NotEmpty(t, identity.UID)
	assert.Equal(t, []string{"ana@example.com"}, r.emails())

	saved, err := db.LoadUser(context.Background(), firebaseProvider)
	require.NoError(t, err)
	assert.Equal(t, identity.UID, saved.Identity.UID)
	assert.NotEmpty(t, saved.Credentials.RefreshToken)
	assert.True(t, saved.Credentials.ExpiresAt.After(time.Now()))
}

func TestIdentityToolkit_ProviderErrors(t *testing.T) {
	fb := newFakeFirebase(t)
	p := newTestToolkit(t, fb, nil, nil)
	_, err := p.CreateUser(context.Background(), "taken@example.com", "secret123")
	require.NoError(t, err)

	tests := []struct {
		name    string
		call    func() error
		wantMsg string
	}{
		{
			name: "email exists",
			call: func() error {
				_, err := p.CreateUser(context.Background(), "taken@example.com", "secret123")
				return err
			},
			wantMsg: "email already in use",
		},
		{
			name: "weak password",
			call: func() error {
				_, err := p.CreateUser(context.Background(), "new@example.com", "123")
				return err
			},
			wantMsg: "password should be at least 6 characters",
		},
		{
			name: "bad login",
			call: func() error {
				_, err := p.SignInWithPassword(context.Background(), "taken@example.com", "wrong")
				return err
			},
			wantMsg: "invalid email or password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrCredential))
			assert.False(t, errors.Is(err, apperror.ErrNetwork))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestIdentityToolkit_ServerErrorIsNetworkError(t *testing.T) {
	fb := newFakeFirebase(t)
	fb.setFailWith(http.StatusServiceUnavailable)
	p := newTestToolkit(t, fb, nil, nil)

	_, err := p.SignInWithPassword(context.Background(), "ana@example.com", "secret123")

	assert.True(t, errors.Is(err, apperror.ErrNetwork))
	assert.Equal(t, http.StatusServiceUnavailable, apperror.StatusOf(err))
}

func TestIdentityToolkit_RestoreWithoutPersistedUser(t *testing.T) {
	fb := newFakeFirebase(t)
	p := newTestToolkit(t, fb, newTestDB(t), nil)
	var r recorder
	p.OnStateChanged(r.record)

	require.NoError(t, p.Restore(context.Background()))

	require.Len(t, r.states, 1)
	assert.Nil(t, r.states[0])
}

func TestIdentityToolkit_RestoreValidSession(t *testing.T) {
	fb := newFakeFirebase(t)
	db := newTestDB(t)
	first := newTestToolkit(t, fb, db, nil)
	_, err := first.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)

	// A later run.
	second := newTestToolkit(t, fb, db, nil)
	store := NewStore(second, discardLogger())
	store.Start()
	defer store.Close()
	require.True(t, store.Resolving())

	require.NoError(t, second.Restore(context.Background()))

	assert.Equal(t, StatusAuthenticated, store.Status())
	assert.Equal(t, "ana@example.com", store.Identity().Email)
	assert.Equal(t, 0, fb.refreshCount())
}

func TestIdentityToolkit_RestoreRefreshesExpiredToken(t *testing.T) {
	fb := newFakeFirebase(t)
	db := newTestDB(t)
	first := newTestToolkit(t, fb, db, nil)
	_, err := first.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	before, err := db.LoadUser(context.Background(), firebaseProvider)
	require.NoError(t, err)

	second := newTestToolkit(t, fb, db, nil)
	second.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	require.NoError(t, second.Restore(context.Background()))

	assert.Equal(t, 1, fb.refreshCount())
	assert.Equal(t, "ana@example.com", second.states.snapshot().Email)
	after, err := db.LoadUser(context.Background(), firebaseProvider)
	require.NoError(t, err)
	assert.NotEqual(t, before.Credentials.RefreshToken, after.Credentials.RefreshToken)
}

func TestIdentityToolkit_RestoreRevokedSessionSignsOut(t *testing.T) {
	fb := newFakeFirebase(t)
	db := newTestDB(t)
	first := newTestToolkit(t, fb, db, nil)
	_, err := first.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	fb.setRevoked()

	second := newTestToolkit(t, fb, db, nil)
	second.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	var r recorder
	second.OnStateChanged(r.record)

	require.NoError(t, second.Restore(context.Background()))

	require.Len(t, r.states, 1)
	assert.Nil(t, r.states[0])
	_, err = db.LoadUser(context.Background(), firebaseProvider)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestIdentityToolkit_RestoreOfflineKeepsSession(t *testing.T) {
	fb := newFakeFirebase(t)
	db := newTestDB(t)
	first := newTestToolkit(t, fb, db, nil)
	_, err := first.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	fb.setFailWith(http.StatusBadGateway)

	second := newTestToolkit(t, fb, db, nil)
	second.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	require.NoError(t, second.Restore(context.Background()))

	assert.Equal(t, "ana@example.com", second.states.snapshot().Email)
}

func TestIdentityToolkit_UpdateProfile(t *testing.T) {
	fb := newFakeFirebase(t)
	db := newTestDB(t)
	p := newTestToolkit(t, fb, db, nil)
	_, err := p.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)

	identity, err := p.UpdateProfile(context.Background(), "Ana", "https://img.example.com/ana.png")
	require.NoError(t, err)

	assert.Equal(t, "Ana", identity.DisplayName)
	assert.Equal(t, "https://img.example.com/ana.png", identity.PhotoURL)
	assert.Equal(t, "Ana", p.states.snapshot().DisplayName)
	saved, err := db.LoadUser(context.Background(), firebaseProvider)
	require.NoError(t, err)
	assert.Equal(t, "Ana", saved.Identity.DisplayName)
}

func TestIdentityToolkit_UpdateProfileWithoutUser(t *testing.T) {
	p := newTestToolkit(t, newFakeFirebase(t), nil, nil)

	_, err := p.UpdateProfile(context.Background(), "Ana", "")

	assert.True(t, errors.Is(err, apperror.ErrCredential))
}

func TestIdentityToolkit_SignOutClearsPersistedUser(t *testing.T) {
	fb := newFakeFirebase(t)
	db := newTestDB(t)
	p := newTestToolkit(t, fb, db, nil)
	_, err := p.CreateUser(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(context.Background()))

	assert.Nil(t, p.states.snapshot())
	_, err = db.LoadUser(context.Background(), firebaseProvider)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestIdentityToolkit_Federated(t *testing.T) {
	t.Run("exchanges the flow's ID token", func(t *testing.T) {
		fb := newFakeFirebase(t)
		p := newTestToolkit(t, fb, nil, fakeFlow{token: "google-id-token"})

		identity, err := p.SignInWithFederated(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "gina@example.com", identity.Email)
		assert.Equal(t, "google.com", identity.ProviderID)
		assert.True(t, identity.EmailVerified)
		assert.Equal(t, "google.com", fb.idpBody().Get("providerId"))
	})

	t.Run("flow cancelled", func(t *testing.T) {
		cancelled := apperror.Credential("sign-in cancelled", nil)
		p := newTestToolkit(t, newFakeFirebase(t), nil, fakeFlow{err: cancelled})

		_, err := p.SignInWithFederated(context.Background())
		assert.ErrorIs(t, err, cancelled)
	})

	t.Run("not configured", func(t *testing.T) {
		p := newTestToolkit(t, newFakeFirebase(t), nil, nil)

		_, err := p.SignInWithFederated(context.Background())
		assert.True(t, errors.Is(err, apperror.ErrCredential))
	})
}

func TestIdentityFromToken(t *testing.T) {
	fb := newFakeFirebase(t)
	token := fb.mintToken(&fakeAccount{
		uid: "uid-1", email: "ana@example.com", displayName: "Ana",
		photoURL: "https://img.example.com/a.png", provider: "password",
	})

	identity, err := identityFromToken(token)
	require.NoError(t, err)

	assert.Equal(t, model.Identity{
		UID:         "uid-1",
		Email:       "ana@example.com",
		DisplayName: "Ana",
		PhotoURL:    "https://img.example.com/a.png",
		ProviderID:  "password",
	}, identity)

	_, err = identityFromToken("not-a-jwt")
	assert.True(t, errors.Is(err, apperror.ErrCredential))
}
