// Package app wires the client together and runs the reviewctl commands.
//
// THE COMPOSITION ROOT:
// This is the one place that knows every concrete type. New builds, in order:
//
//	config → logger → sqlite state → api.Client → identity provider
//	       → session Store → auth.Service → controllers (per command)
//
// Everything below this package takes interfaces, so tests can swap any piece.
//
// ONE PROCESS, ONE SESSION:
// The session Store lives as long as the App. A CLI invocation is short, so
// the things that must outlive it (the provider's signed-in user and the
// backend's session cookie) are kept in the sqlite state file and restored
// by New.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sakif/service-review/internal/api"
	"github.com/sakif/service-review/internal/auth"
	"github.com/sakif/service-review/internal/config"
	"github.com/sakif/service-review/internal/notify"
	sqliteRepo "github.com/sakif/service-review/internal/repository/sqlite"
)

// Options are the process-level inputs New cannot read from config.
type Options struct {
	In  io.Reader
	Out io.Writer // results and notifications
	Err io.Writer // logs

	// OpenBrowser shows the Google consent page. Defaults to printing the
	// URL and asking the OS to open it.
	OpenBrowser func(url string) error
}

// App is a configured client.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	client   *api.Client
	provider auth.Provider
	store    *auth.Store
	auth     *auth.Service
	notifier notify.Notifier

	in  *bufio.Reader
	out io.Writer
}

// New builds the App and restores the previous run's sign-in.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	out := &syncWriter{w: opts.Out}

	logger := slog.New(slog.NewTextHandler(opts.Err, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if cfg.StateDBPath != ":memory:" {
		dir := filepath.Dir(cfg.StateDBPath)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("app: creating state directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("app: opening state: %w", err)
	}

	client, err := api.New(ctx, api.Config{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.APIRateLimit,
		Cookies:   db,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: creating api client: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		client:   client,
		notifier: notify.NewWriter(out),
		in:       bufio.NewReader(opts.In),
		out:      out,
	}

	open := opts.OpenBrowser
	if open == nil {
		open = a.openBrowser
	}

	if err := a.startProvider(ctx, open); err != nil {
		db.Close()
		return nil, err
	}
	a.auth = auth.NewService(a.provider, client, a.notifier, logger)
	return a, nil
}

// startProvider creates the configured identity provider and resolves the
// session Store.
func (a *App) startProvider(ctx context.Context, open func(string) error) error {
	switch a.cfg.IdentityProvider {
	case config.ProviderMemory:
		p := auth.NewMemoryProvider()
		a.provider = p
		a.store = auth.NewStore(p, a.logger)
		a.store.Start()
		return nil

	case config.ProviderFirebase:
		tkCfg := auth.IdentityToolkitConfig{
			APIKey: a.cfg.FirebaseAPIKey,
			Users:  a.db,
		}
		if a.cfg.GoogleEnabled() {
			tkCfg.Flow = auth.NewGoogleFlow(a.cfg.GoogleClientID, a.cfg.GoogleClientSecret, open, a.logger)
		}
		p, err := auth.NewIdentityToolkit(tkCfg, a.logger)
		if err != nil {
			return fmt.Errorf("app: creating identity provider: %w", err)
		}
		a.provider = p
		a.store = auth.NewStore(p, a.logger)
		a.store.Start()
		if err := p.Restore(ctx); err != nil {
			a.store.Close()
			return fmt.Errorf("app: restoring sign-in: %w", err)
		}
		return nil
	}
	return fmt.Errorf("app: unknown identity provider %q", a.cfg.IdentityProvider)
}

// Close releases the session Store and the state file.
func (a *App) Close() error {
	a.store.Close()
	return a.db.Close()
}

// readLine returns the next input line without its newline. At the end of
// input it returns the last partial line, if any, with io.EOF.
func (a *App) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

// prompt asks for one line of input.
func (a *App) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.readLine()
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("app: reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// confirm is the Confirmer used by delete commands without --yes.
func (a *App) confirm(_ context.Context, question string) (bool, error) {
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	line, err := a.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("app: reading confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// openBrowser prints url and asks the desktop to open it. The printed URL is
// enough on a headless machine, so a failed launch is only logged.
func (a *App) openBrowser(url string) error {
	fmt.Fprintf(a.out, "Opening Google sign-in. If no browser appears, visit:\n  %s\n", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		a.logger.Debug("could not launch browser", slog.String("error", err.Error()))
		return nil
	}
	go cmd.Wait()
	return nil
}

// syncWriter serialises writes from the debounce goroutine and the command
// goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
