package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/service-review/internal/model"
	"github.com/sakif/service-review/internal/notify"
)

// Home is the landing page: featured services and the site counters.
type Home struct {
	backend  Backend
	notifier notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	featured []model.Service
	stats    model.Stats
}

func NewHome(backend Backend, notifier notify.Notifier, logger *slog.Logger) *Home {
	return &Home{backend: backend, notifier: notifier, logger: logger}
}

// Load fetches both halves concurrently and replaces them together.
func (h *Home) Load(ctx context.Context) error {
	var (
		featured []model.Service
		stats    *model.Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		featured, err = h.backend.FeaturedServices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = h.backend.Stats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Warn("failed to load home page", slog.String("error", err.Error()))
		h.notifier.Error("Failed to load services")
		return fmt.Errorf("controller: loading home: %w", err)
	}

	h.mu.Lock()
	h.featured = featured
	h.stats = *stats
	h.mu.Unlock()
	return nil
}

func (h *Home) Featured() []model.Service {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.Service, len(h.featured))
	copy(out, h.featured)
	return out
}

func (h *Home) Stats() model.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
