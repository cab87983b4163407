package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/server"
)

// GoogleFlow runs the Google sign-in the way a desktop app does it: OAuth 2.0
// Authorization Code with PKCE and a loopback redirect.
//
// THE FLOW:
//  1. Start a callback server on 127.0.0.1:<random port>.
//  2. Send the user to Google's consent page (Open prints or launches the URL)
//     with a random state and the S256 challenge of a fresh PKCE verifier.
//  3. Google redirects to the callback with a one-time code.
//  4. Exchange code + verifier for tokens. We only need the ID token: Firebase
//     turns it into a Firebase user (accounts:signInWithIdp).
//
// WHY PKCE?
// An installed app cannot keep a client secret secret. PKCE binds the code to
// the process that started the flow, so an intercepted code is useless.
type GoogleFlow struct {
	config *oauth2.Config
	open   func(authURL string) error
	logger *slog.Logger
}

// Scopes: "openid" makes Google return an ID token; email and profile put
// the address, name and picture into it.
var googleScopes = []string{"openid", "email", "profile"}

// NewGoogleFlow creates a flow for the given OAuth client. open is called with
// the consent URL; a CLI typically prints it.
func NewGoogleFlow(clientID, clientSecret string, open func(authURL string) error, logger *slog.Logger) *GoogleFlow {
	return &GoogleFlow{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       googleScopes,
			Endpoint:     endpoints.Google,
		},
		open:   open,
		logger: logger,
	}
}

func (g *GoogleFlow) ProviderID() string { return "google.com" }

// IDToken runs the interactive flow and returns Google's ID token. Every
// failure, including the user declining and ctx expiring, is a credential
// error.
func (g *GoogleFlow) IDToken(ctx context.Context) (string, error) {
	state := xid.New().String()
	verifier := oauth2.GenerateVerifier()

	cb, err := server.New(state, g.logger)
	if err != nil {
		return "", apperror.Credential("could not start sign-in", err)
	}
	cb.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cb.Shutdown(shutdownCtx); err != nil {
			g.logger.Warn("callback server shutdown", slog.String("error", err.Error()))
		}
	}()

	// Copy: the redirect URL differs per run.
	cfg := *g.config
	cfg.RedirectURL = cb.RedirectURL()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	if err := g.open(authURL); err != nil {
		return "", apperror.Credential("could not open the sign-in page", err)
	}

	code, err := cb.Wait(ctx)
	if err != nil {
		switch {
		case errors.Is(err, server.ErrAccessDenied):
			return "", apperror.Credential("sign-in cancelled", err)
		case errors.Is(err, context.DeadlineExceeded):
			return "", apperror.Credential("sign-in timed out", err)
		case errors.Is(err, context.Canceled):
			return "", apperror.Credential("sign-in cancelled", err)
		}
		return "", apperror.Credential(fmt.Sprintf("sign-in failed: %v", err), err)
	}

	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", apperror.Credential("could not complete sign-in with Google", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return "", apperror.Credential("Google did not return an ID token", nil)
	}
	return idToken, nil
}
