// Package model defines the data structures used throughout the client.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Identity is the signed-in user as the identity provider reports it.
//
// It is owned by the provider and mirrored read-only into the session store.
// Nothing in this module constructs an Identity for a signed-in user except a
// provider implementation.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoURL"`
	EmailVerified bool   `json:"emailVerified"`
	ProviderID    string `json:"providerId"` // "password" or "google.com"
}

// Credentials is the provider-side session of an Identity: the ID token, the
// refresh token used to mint a new one, and when the ID token expires.
//
// Providers persist it between runs; it never leaves the auth package's
// provider implementations.
type Credentials struct {
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the ID token is at or past its expiry, with a small
// margin so a token is refreshed before the server starts rejecting it.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now.Add(30 * time.Second))
}
