package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/repository"
)

const (
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"

	// firebaseProvider keys the persisted user in UserStateRepository.
	firebaseProvider = "firebase"
)

// IdentityToolkitConfig configures an IdentityToolkit.
type IdentityToolkitConfig struct {
	APIKey   string
	BaseURL  string // DefaultIdentityToolkitURL if empty
	TokenURL string // DefaultSecureTokenURL if empty

	HTTPClient *http.Client

	// Users persists the signed-in user between runs. Optional: without it
	// every run starts signed out.
	Users repository.UserStateRepository

	// Flow runs the interactive federated sign-in. Optional.
	Flow FederatedFlow
}

// IdentityToolkit is the Firebase Authentication provider, spoken over the
// Identity Toolkit REST API instead of the browser SDK.
//
// FIREBASE TOKENS:
// Every successful sign-in returns an ID token (a JWT, valid for an hour) and a
// refresh token (long-lived). The ID token's claims carry the user's email,
// name and picture, so no extra profile request is needed. When the ID token
// expires, the refresh token buys a new one from securetoken.googleapis.com.
// If the refresh is rejected, the account was disabled, deleted or had its
// sessions revoked: the provider treats that as a sign-out.
//
// We never verify the ID token's signature. We received it directly from
// Google over TLS and only read display claims from it; the backend does not
// trust it either (it trusts its own session cookie).
type IdentityToolkit struct {
	apiKey   string
	baseURL  string
	tokenURL string
	client   *http.Client
	users    repository.UserStateRepository
	flow     FederatedFlow
	logger   *slog.Logger
	now      func() time.Time

	states stateBroadcaster

	mu   sync.Mutex
	user *repository.ProviderUser
}

func NewIdentityToolkit(cfg IdentityToolkitConfig, logger *slog.Logger) (*IdentityToolkit, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("auth: Firebase API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultIdentityToolkitURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultSecureTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &IdentityToolkit{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL: strings.TrimRight(cfg.TokenURL, "/"),
		client:   cfg.HTTPClient,
		users:    cfg.Users,
		flow:     cfg.Flow,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Restore loads the user persisted by an earlier run and delivers the first
// state to subscribers. Until Restore returns, the provider is unresolved.
//
// An expired ID token is refreshed first. A rejected refresh signs the user
// out; a network failure keeps the persisted user, as the Firebase SDK does
// when offline.
func (p *IdentityToolkit) Restore(ctx context.Context) error {
	if p.users == nil {
		p.states.publish(nil)
		return nil
	}

	user, err := p.users.LoadUser(ctx, firebaseProvider)
	if errors.Is(err, apperror.ErrNotFound) {
		p.states.publish(nil)
		return nil
	}
	if err != nil {
		p.states.publish(nil)
		return fmt.Errorf("auth: loading persisted user: %w", err)
	}

	p.mu.Lock()
	p.user = user
	p.mu.Unlock()

	if user.Credentials.Expired(p.now()) {
		if err := p.refresh(ctx); err != nil {
			if errors.Is(err, apperror.ErrCredential) {
				p.logger.Info("persisted session was revoked", slog.String("error", err.Error()))
				p.invalidate(ctx)
				return nil
			}
			p.logger.Warn("could not refresh ID token, keeping persisted session",
				slog.String("error", err.Error()),
			)
		}
	}

	p.states.publish(p.currentIdentity())
	return nil
}

func (p *IdentityToolkit) CreateUser(ctx context.Context, email, password string) (*model.Identity, error) {
	var resp toolkitResponse
	err := p.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.signedIn(ctx, resp, "password")
}

func (p *IdentityToolkit) SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error) {
	var resp toolkitResponse
	err := p.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.signedIn(ctx, resp, "password")
}

// SignInWithFederated runs the configured flow and exchanges its ID token for
// a Firebase user.
func (p *IdentityToolkit) SignInWithFederated(ctx context.Context) (*model.Identity, error) {
	if p.flow == nil {
		return nil, apperror.Credential("federated sign-in is not configured", nil)
	}

	idpToken, err := p.flow.IDToken(ctx)
	if err != nil {
		return nil, err
	}

	postBody := url.Values{
		"id_token":   {idpToken},
		"providerId": {p.flow.ProviderID()},
	}
	var resp toolkitResponse
	err = p.post(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          "http://localhost",
		"returnIdpCredential": true,
		"returnSecureToken":   true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.signedIn(ctx, resp, p.flow.ProviderID())
}

// SignOut forgets the signed-in user. Firebase sign-out is local: the
// refresh token is simply dropped.
func (p *IdentityToolkit) SignOut(ctx context.Context) error {
	if p.users != nil {
		if err := p.users.ClearUser(ctx, firebaseProvider); err != nil {
			return fmt.Errorf("auth: clearing persisted user: %w", err)
		}
	}

	p.mu.Lock()
	p.user = nil
	p.mu.Unlock()

	p.states.publish(nil)
	return nil
}

func (p *IdentityToolkit) UpdateProfile(ctx context.Context, displayName, photoURL string) (*model.Identity, error) {
	idToken, err := p.Token(ctx)
	if err != nil {
		return nil, err
	}

	var resp toolkitResponse
	err = p.post(ctx, "accounts:update", map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"photoUrl":          photoURL,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.user == nil {
		p.mu.Unlock()
		return nil, apperror.Credential("no user is signed in", nil)
	}
	p.user.Identity.DisplayName = resp.DisplayName
	p.user.Identity.PhotoURL = resp.PhotoURL
	// accounts:update may rotate the tokens.
	if resp.IDToken != "" {
		p.user.Credentials = p.credentials(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	}
	p.user.UpdatedAt = p.now()
	user := *p.user
	p.mu.Unlock()

	p.persist(ctx, &user)
	identity := user.Identity
	p.states.publish(&identity)
	return &identity, nil
}

func (p *IdentityToolkit) OnStateChanged(fn StateFunc) func() {
	return p.states.subscribe(fn)
}

// Token returns a valid ID token for the signed-in user, refreshing it first
// if it has expired.
func (p *IdentityToolkit) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.user == nil {
		p.mu.Unlock()
		return "", apperror.Credential("no user is signed in", nil)
	}
	creds := p.user.Credentials
	p.mu.Unlock()

	if !creds.Expired(p.now()) {
		return creds.IDToken, nil
	}

	if err := p.refresh(ctx); err != nil {
		if errors.Is(err, apperror.ErrCredential) {
			p.invalidate(ctx)
		}
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return "", apperror.Credential("no user is signed in", nil)
	}
	return p.user.Credentials.IDToken, nil
}

// signedIn turns a successful sign-in response into the current user.
func (p *IdentityToolkit) signedIn(ctx context.Context, resp toolkitResponse, providerID string) (*model.Identity, error) {
	identity, err := identityFromToken(resp.IDToken)
	if err != nil {
		return nil, err
	}
	// Response fields are fresher than the token claims after a profile update.
	if resp.LocalID != "" {
		identity.UID = resp.LocalID
	}
	if resp.Email != "" {
		identity.Email = resp.Email
	}
	if resp.DisplayName != "" {
		identity.DisplayName = resp.DisplayName
	}
	if resp.PhotoURL != "" {
		identity.PhotoURL = resp.PhotoURL
	}
	if resp.EmailVerified {
		identity.EmailVerified = true
	}
	if identity.ProviderID == "" {
		identity.ProviderID = providerID
	}

	user := &repository.ProviderUser{
		Provider:    firebaseProvider,
		Identity:    identity,
		Credentials: p.credentials(resp.IDToken, resp.RefreshToken, resp.ExpiresIn),
		UpdatedAt:   p.now(),
	}

	p.mu.Lock()
	p.user = user
	p.mu.Unlock()

	p.persist(ctx, user)
	p.states.publish(&identity)

	out := identity
	return &out, nil
}

func (p *IdentityToolkit) refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.user == nil {
		p.mu.Unlock()
		return apperror.Credential("no user is signed in", nil)
	}
	refreshToken := p.user.Credentials.RefreshToken
	p.mu.Unlock()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.tokenURL+"/token?key="+url.QueryEscape(p.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("auth: creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := p.do(req, "token refresh", &resp); err != nil {
		return err
	}

	p.mu.Lock()
	if p.user == nil {
		p.mu.Unlock()
		return apperror.Credential("no user is signed in", nil)
	}
	p.user.Credentials = p.credentials(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	p.user.UpdatedAt = p.now()
	user := *p.user
	p.mu.Unlock()

	p.persist(ctx, &user)
	p.logger.Debug("ID token refreshed", slog.String("email", user.Identity.Email))
	return nil
}

// invalidate handles a provider-side sign-out (revoked refresh token).
func (p *IdentityToolkit) invalidate(ctx context.Context) {
	p.mu.Lock()
	p.user = nil
	p.mu.Unlock()

	if p.users != nil {
		if err := p.users.ClearUser(ctx, firebaseProvider); err != nil {
			p.logger.Warn("failed to clear revoked session", slog.String("error", err.Error()))
		}
	}
	p.states.publish(nil)
}

func (p *IdentityToolkit) persist(ctx context.Context, user *repository.ProviderUser) {
	if p.users == nil {
		return
	}
	// The sign-in already happened; losing persistence only costs the next
	// run a login.
	if err := p.users.SaveUser(ctx, user); err != nil {
		p.logger.Warn("failed to persist signed-in user", slog.String("error", err.Error()))
	}
}

func (p *IdentityToolkit) currentIdentity() *model.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return nil
	}
	identity := p.user.Identity
	return &identity
}

func (p *IdentityToolkit) credentials(idToken, refreshToken, expiresIn string) model.Credentials {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return model.Credentials{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    p.now().Add(time.Duration(seconds) * time.Second),
	}
}

func (p *IdentityToolkit) post(ctx context.Context, endpoint string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("auth: encoding %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/"+endpoint+"?key="+url.QueryEscape(p.apiKey), bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("auth: creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return p.do(req, endpoint, out)
}

// do sends req and decodes a 2xx body into out. 4xx responses with a
// Firebase error code become credential errors; everything else is a network
// error.
func (p *IdentityToolkit) do(req *http.Request, op string, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return apperror.Network("auth: "+op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var e toolkitError
		_ = json.Unmarshal(body, &e)
		if resp.StatusCode >= 500 || e.Error.Message == "" {
			return apperror.FromStatus(resp.StatusCode, "")
		}
		return providerError(e.Error.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: decoding %s response: %w", op, err)
	}
	return nil
}

// toolkitResponse covers the fields shared by signUp, signInWithPassword,
// signInWithIdp and update.
type toolkitResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	EmailVerified bool   `json:"emailVerified"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type toolkitError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// providerMessages are the user-facing texts for Firebase error codes.
var providerMessages = map[string]string{
	"EMAIL_EXISTS":                "email already in use",
	"INVALID_EMAIL":               "invalid email address",
	"WEAK_PASSWORD":               "password should be at least 6 characters",
	"OPERATION_NOT_ALLOWED":       "this sign-in method is disabled",
	"EMAIL_NOT_FOUND":             "no account for this email",
	"INVALID_PASSWORD":            "wrong password",
	"INVALID_LOGIN_CREDENTIALS":   "invalid email or password",
	"USER_DISABLED":               "this account has been disabled",
	"USER_NOT_FOUND":              "account no longer exists",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "too many attempts, try again later",
	"TOKEN_EXPIRED":               "session expired, please login again",
	"INVALID_ID_TOKEN":            "session expired, please login again",
	"INVALID_REFRESH_TOKEN":       "session expired, please login again",
	"INVALID_IDP_RESPONSE":        "the identity provider rejected the sign-in",
}

// providerError maps a Firebase error message such as
// "WEAK_PASSWORD : Password should be at least 6 characters" to a credential
// error. The raw code stays reachable as the cause.
func providerError(raw string) error {
	code, _, _ := strings.Cut(raw, " ")
	msg, ok := providerMessages[code]
	if !ok {
		msg = strings.ToLower(strings.ReplaceAll(code, "_", " "))
	}
	return apperror.Credential(msg, errors.New(raw))
}

// idTokenClaims are the Firebase ID token claims we read.
type idTokenClaims struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Firebase      struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
	jwt.RegisteredClaims
}

// identityFromToken reads the identity claims of a Firebase ID token without
// verifying its signature.
func identityFromToken(idToken string) (model.Identity, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return model.Identity{}, apperror.Credential("identity provider returned an unreadable ID token", err)
	}

	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	return model.Identity{
		UID:           uid,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
		ProviderID:    claims.Firebase.SignInProvider,
	}, nil
}
