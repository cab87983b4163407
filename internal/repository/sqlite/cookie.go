package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sakif/service-review/internal/repository"
)

var _ repository.CookieRepository = (*DB)(nil)

// SaveCookies applies a batch of Set-Cookie results for origin.
//
// A cookie whose MaxAge is negative, or whose Expires is in the past, is a
// deletion (that is how the backend's logout clears the session cookie), so
// its row is removed instead of written.
func (db *DB) SaveCookies(ctx context.Context, origin string, cookies []*http.Cookie) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning cookie transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}

		if isDeletion(c, now) {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cookies WHERE origin = ? AND name = ? AND path = ?`,
				origin, c.Name, path,
			); err != nil {
				return fmt.Errorf("sqlite: deleting cookie %s: %w", c.Name, err)
			}
			continue
		}

		var expires sql.NullTime
		switch {
		case c.MaxAge > 0:
			expires = sql.NullTime{Time: now.Add(time.Duration(c.MaxAge) * time.Second), Valid: true}
		case !c.Expires.IsZero():
			expires = sql.NullTime{Time: c.Expires.UTC(), Valid: true}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cookies (origin, name, path, value, domain, expires_at, secure, http_only, same_site)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(origin, name, path) DO UPDATE SET
				value = excluded.value,
				domain = excluded.domain,
				expires_at = excluded.expires_at,
				secure = excluded.secure,
				http_only = excluded.http_only,
				same_site = excluded.same_site`,
			origin, c.Name, path, c.Value, c.Domain, expires, c.Secure, c.HttpOnly, int(c.SameSite),
		); err != nil {
			return fmt.Errorf("sqlite: saving cookie %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing cookies: %w", err)
	}
	return nil
}

// LoadCookies returns the unexpired cookies stored for origin. Expired rows
// are pruned as a side effect.
func (db *DB) LoadCookies(ctx context.Context, origin string) ([]*http.Cookie, error) {
	// Expiries are stored in UTC so the text comparison below orders correctly.
	now := time.Now().UTC()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM cookies WHERE origin = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		origin, now,
	); err != nil {
		return nil, fmt.Errorf("sqlite: pruning expired cookies: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, path, value, domain, expires_at, secure, http_only, same_site
		 FROM cookies WHERE origin = ?
		 ORDER BY name, path`,
		origin,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading cookies: %w", err)
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		var (
			c        http.Cookie
			expires  sql.NullTime
			sameSite int
		)
		if err := rows.Scan(&c.Name, &c.Path, &c.Value, &c.Domain, &expires,
			&c.Secure, &c.HttpOnly, &sameSite); err != nil {
			return nil, fmt.Errorf("sqlite: scanning cookie row: %w", err)
		}
		if expires.Valid {
			c.Expires = expires.Time
		}
		c.SameSite = http.SameSite(sameSite)
		cookies = append(cookies, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating cookies: %w", err)
	}

	return cookies, nil
}

func isDeletion(c *http.Cookie, now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && !c.Expires.After(now) && c.MaxAge == 0
}
