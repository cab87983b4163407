package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/sakif/service-review/internal/repository"
)

// persistentJar is a cookie jar that survives between runs.
//
// The backend's session cookie is HttpOnly: in a browser, JavaScript cannot
// read it and the browser keeps it across page loads. Here, the standard
// library jar plays the browser and the repository plays the browser's cookie
// store. The client never looks at cookie values itself.
type persistentJar struct {
	jar    *cookiejar.Jar
	repo   repository.CookieRepository
	logger *slog.Logger
}

func newPersistentJar(repo repository.CookieRepository, logger *slog.Logger) (*persistentJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("api: creating cookie jar: %w", err)
	}
	return &persistentJar{jar: jar, repo: repo, logger: logger}, nil
}

// load restores the cookies persisted for u's origin.
func (j *persistentJar) load(ctx context.Context, u *url.URL) error {
	if j.repo == nil {
		return nil
	}
	cookies, err := j.repo.LoadCookies(ctx, origin(u))
	if err != nil {
		return fmt.Errorf("api: loading cookies: %w", err)
	}
	if len(cookies) > 0 {
		j.jar.SetCookies(u, cookies)
	}
	return nil
}

func (j *persistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	if j.repo == nil || len(cookies) == 0 {
		return
	}
	// http.CookieJar has no context; bound the write instead.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.repo.SaveCookies(ctx, origin(u), cookies); err != nil {
		j.logger.Warn("failed to persist cookies",
			slog.String("origin", origin(u)),
			slog.String("error", err.Error()),
		)
	}
}

func (j *persistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
