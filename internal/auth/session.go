package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sakif/service-review/internal/model"
)

// Status is the session state machine:
//
//	Unknown ──first provider callback──▶ Authenticated | Anonymous
//	Authenticated ◀──────────────────▶ Anonymous
//
// Nothing leads back to Unknown.
type Status int

const (
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Listener is notified after every change of the store.
type Listener func(status Status, identity *model.Identity)

// Store mirrors the provider's identity for the rest of the client.
//
// It exposes no setter. The only writer is the provider callback registered in
// Start, so the store cannot drift from what the provider believes.
type Store struct {
	provider Provider
	logger   *slog.Logger

	mu          sync.RWMutex
	identity    *model.Identity
	status      Status
	unsubscribe func()
	listeners   map[int]Listener
	nextID      int

	resolved     chan struct{}
	resolvedOnce sync.Once
}

func NewStore(provider Provider, logger *slog.Logger) *Store {
	return &Store{
		provider:  provider,
		logger:    logger,
		listeners: make(map[int]Listener),
		resolved:  make(chan struct{}),
	}
}

// Start subscribes to the provider's state stream. Calling Start twice is a
// no-op.
func (s *Store) Start() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	// Placeholder so a callback delivered synchronously inside
	// OnStateChanged does not see a second Start as allowed.
	s.unsubscribe = func() {}
	s.mu.Unlock()

	unsubscribe := s.provider.OnStateChanged(s.onStateChanged)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// Close unsubscribes from the provider. The last known identity stays
// readable.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) onStateChanged(identity *model.Identity) {
	s.mu.Lock()
	s.identity = copyIdentity(identity)
	if identity != nil {
		s.status = StatusAuthenticated
	} else {
		s.status = StatusAnonymous
	}
	status := s.status
	listeners := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if l, ok := s.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	s.resolvedOnce.Do(func() { close(s.resolved) })

	if identity != nil {
		s.logger.Debug("session identity changed", slog.String("email", identity.Email))
	} else {
		s.logger.Debug("session identity cleared")
	}

	for _, l := range listeners {
		l(status, copyIdentity(identity))
	}
}

// Identity returns a copy of the signed-in identity, or nil.
func (s *Store) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIdentity(s.identity)
}

// Resolving reports whether the provider has not delivered its first state
// yet. A resolving store is neither signed in nor signed out.
func (s *Store) Resolving() bool {
	return s.Status() == StatusUnknown
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Await blocks until the first provider callback has been delivered and then
// returns the current identity (nil when anonymous).
func (s *Store) Await(ctx context.Context) (*model.Identity, error) {
	select {
	case <-s.resolved:
		return s.Identity(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers fn for every future change and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
