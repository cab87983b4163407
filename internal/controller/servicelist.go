package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/notify"
)

// DefaultDebounce is how long the search text must stay unchanged before it
// is sent.
const DefaultDebounce = 500 * time.Millisecond

// ServiceListState is what the All Services view renders.
type ServiceListState struct {
	Filter   model.ServiceFilter // the filter Services was fetched with
	Services []model.Service
	Loading  bool
	Loaded   bool // at least one fetch succeeded

	version uint64
}

// Empty reports whether the view should show its empty-state: a fetch
// succeeded and returned nothing. An empty list is not an error.
func (s ServiceListState) Empty() bool {
	return s.Loaded && len(s.Services) == 0
}

// ServiceListOption configures a ServiceList.
type ServiceListOption func(*ServiceList)

// WithDebounce sets the search quiet period.
func WithDebounce(d time.Duration) ServiceListOption {
	return func(l *ServiceList) { l.debounce = d }
}

// WithListener registers fn to receive every state change, including the
// ones caused by debounced fetches. fn is called from the fetching
// goroutine, one call at a time.
func WithListener(fn func(ServiceListState)) ServiceListOption {
	return func(l *ServiceList) { l.listener = fn }
}

// ServiceList is the All Services view: a search box, a category selector
// and the matching services.
//
// SEARCH vs CATEGORY:
// Typing is continuous, so SetQuery waits for the text to be stable for the
// debounce period and sends one request for the final text. A category is a
// discrete choice, so SetCategory fetches right away. It does not cancel a
// pending debounced search; that search still fires and uses the new
// category too.
//
// STALE RESPONSES:
// Every fetch gets a sequence number. Starting a fetch cancels the one in
// flight, and a response whose number is no longer the latest is dropped
// even if it arrives. A slow "a" can never overwrite a fast "ab".
//
// LIFETIME:
// Close is the view unmounting: the pending timer is stopped, the in-flight
// request is cancelled, and nothing is applied afterwards.
type ServiceList struct {
	backend  Backend
	notifier notify.Notifier
	logger   *slog.Logger
	debounce time.Duration
	listener func(ServiceListState)

	root       context.Context
	cancelRoot context.CancelFunc

	mu       sync.Mutex
	filter   model.ServiceFilter // the filter being edited
	shown    model.ServiceFilter // the filter services was fetched with
	services []model.Service
	loaded   bool
	loading  bool
	seq      uint64
	inflight context.CancelFunc
	timer    *time.Timer
	pending  uint64 // generation of the armed timer
	closed   bool

	emitMu  sync.Mutex
	emitted uint64
}

func NewServiceList(backend Backend, notifier notify.Notifier, logger *slog.Logger, opts ...ServiceListOption) *ServiceList {
	root, cancel := context.WithCancel(context.Background())
	l := &ServiceList{
		backend:    backend,
		notifier:   notifier,
		logger:     logger,
		debounce:   DefaultDebounce,
		root:       root,
		cancelRoot: cancel,
		filter:     model.ServiceFilter{Category: model.CategoryAll},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fetch replaces the filter and fetches right away.
func (l *ServiceList) Fetch(ctx context.Context, filter model.ServiceFilter) error {
	if err := checkFilterCategory(filter.Category); err != nil {
		return err
	}
	l.mu.Lock()
	l.filter = filter
	l.mu.Unlock()
	return l.fetch(ctx, filter)
}

// SetQuery records a change of the search text. The fetch happens once the
// text has been left alone for the debounce period.
func (l *ServiceList) SetQuery(q string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.filter.Search = q
	if l.timer != nil {
		l.timer.Stop()
	}
	l.pending++
	gen := l.pending
	l.timer = time.AfterFunc(l.debounce, func() { l.fire(gen) })
}

// fire runs the debounced fetch on the timer's goroutine. A timer that was
// replaced after it had already fired finds a newer generation and does
// nothing.
func (l *ServiceList) fire(gen uint64) {
	l.mu.Lock()
	if gen != l.pending || l.closed {
		l.mu.Unlock()
		return
	}
	filter := l.filter
	l.timer = nil
	l.mu.Unlock()

	// Failures were already notified; stale and closed results need nothing.
	_ = l.fetch(l.root, filter)
}

// Flush runs a pending debounced search now instead of waiting out the quiet
// period. Without a pending search it does nothing.
func (l *ServiceList) Flush(ctx context.Context) error {
	l.mu.Lock()
	if l.timer == nil || l.closed {
		l.mu.Unlock()
		return nil
	}
	l.timer.Stop()
	l.timer = nil
	l.pending++
	filter := l.filter
	l.mu.Unlock()

	return l.fetch(ctx, filter)
}

// SetCategory switches the category and fetches immediately.
func (l *ServiceList) SetCategory(ctx context.Context, category string) error {
	if err := checkFilterCategory(category); err != nil {
		return err
	}
	l.mu.Lock()
	l.filter.Category = category
	filter := l.filter
	l.mu.Unlock()
	return l.fetch(ctx, filter)
}

// State returns a snapshot of what the view shows.
func (l *ServiceList) State() ServiceListState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

// Close stops the pending debounce and discards any in-flight result.
func (l *ServiceList) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.cancelRoot()
}

func (l *ServiceList) fetch(ctx context.Context, filter model.ServiceFilter) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.seq++
	seq := l.seq
	if l.inflight != nil {
		l.inflight()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.root, cancel)
	l.inflight = cancel
	l.loading = true
	state := l.stateLocked()
	l.mu.Unlock()

	defer stop()
	defer cancel()
	l.emit(state)

	services, err := l.backend.ListServices(reqCtx, filter)

	l.mu.Lock()
	if seq != l.seq || l.closed {
		l.mu.Unlock()
		l.logger.Debug("discarding superseded service list",
			slog.Uint64("seq", seq),
			slog.String("search", filter.Search),
		)
		return ErrSuperseded
	}
	l.inflight = nil
	l.loading = false
	if err != nil {
		state = l.stateLocked()
		l.mu.Unlock()

		l.logger.Warn("failed to load services",
			slog.String("search", filter.Search),
			slog.String("category", filter.Category),
			slog.String("error", err.Error()),
		)
		l.notifier.Error("Failed to load services")
		l.emit(state)
		return fmt.Errorf("controller: listing services: %w", err)
	}
	l.services = services
	l.shown = filter
	l.loaded = true
	state = l.stateLocked()
	l.mu.Unlock()

	l.emit(state)
	return nil
}

func (l *ServiceList) stateLocked() ServiceListState {
	services := make([]model.Service, len(l.services))
	copy(services, l.services)
	return ServiceListState{
		Filter:   l.shown,
		Services: services,
		Loading:  l.loading,
		Loaded:   l.loaded,
		version:  l.seq,
	}
}

// emit delivers state unless a newer one was already delivered.
func (l *ServiceList) emit(state ServiceListState) {
	if l.listener == nil {
		return
	}
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	if state.version < l.emitted {
		return
	}
	l.emitted = state.version
	l.listener(state)
}

func checkFilterCategory(c string) error {
	if c == "" || c == model.CategoryAll || model.IsCategory(c) {
		return nil
	}
	return apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", c))
}

// IsSuperseded reports whether err only means a newer fetch took over.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, ErrClosed)
}
