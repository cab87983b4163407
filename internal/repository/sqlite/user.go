package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/repository"
)

// compile-time check that *DB implements repository.UserStateRepository
var _ repository.UserStateRepository = (*DB)(nil)

// SaveUser stores the provider's signed-in user, replacing any previous one.
// There is one row per provider; signing in as someone else overwrites it.
func (db *DB) SaveUser(ctx context.Context, u *repository.ProviderUser) error {
	u.UpdatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO provider_users
			(provider, uid, email, display_name, photo_url, email_verified, provider_id,
			 id_token, refresh_token, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
			uid = excluded.uid,
			email = excluded.email,
			display_name = excluded.display_name,
			photo_url = excluded.photo_url,
			email_verified = excluded.email_verified,
			provider_id = excluded.provider_id,
			id_token = excluded.id_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		u.Provider,
		u.Identity.UID,
		u.Identity.Email,
		u.Identity.DisplayName,
		u.Identity.PhotoURL,
		u.Identity.EmailVerified,
		u.Identity.ProviderID,
		u.Credentials.IDToken,
		u.Credentials.RefreshToken,
		u.Credentials.ExpiresAt,
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving user for provider %s: %w", u.Provider, err)
	}
	return nil
}

// LoadUser returns the persisted user for provider.
// Returns apperror.ErrNotFound if nobody is signed in.
func (db *DB) LoadUser(ctx context.Context, provider string) (*repository.ProviderUser, error) {
	u := repository.ProviderUser{Provider: provider}

	err := db.conn.QueryRowContext(ctx,
		`SELECT uid, email, display_name, photo_url, email_verified, provider_id,
		        id_token, refresh_token, expires_at, updated_at
		 FROM provider_users WHERE provider = ?`,
		provider,
	).Scan(
		&u.Identity.UID,
		&u.Identity.Email,
		&u.Identity.DisplayName,
		&u.Identity.PhotoURL,
		&u.Identity.EmailVerified,
		&u.Identity.ProviderID,
		&u.Credentials.IDToken,
		&u.Credentials.RefreshToken,
		&u.Credentials.ExpiresAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("provider user", provider)
		}
		return nil, fmt.Errorf("sqlite: loading user for provider %s: %w", provider, err)
	}

	return &u, nil
}

// ClearUser forgets the signed-in user. Clearing when nobody is signed in is
// not an error.
func (db *DB) ClearUser(ctx context.Context, provider string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM provider_users WHERE provider = ?`, provider,
	); err != nil {
		return fmt.Errorf("sqlite: clearing user for provider %s: %w", provider, err)
	}
	return nil
}
