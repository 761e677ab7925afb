// Package feed runs the listing change-feed listener: every listing creation
// or modification is re-matched against the active alerts.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"unihousing-notifier/pkg/housing"
	"unihousing-notifier/store"
)

// Watcher subscribes to the listing change feed.
type Watcher interface {
	WatchListings(ctx context.Context) (<-chan store.ListingEvent, error)
}

// AlertSource loads the active alerts.
type AlertSource interface {
	ActiveAlerts(ctx context.Context) ([]*housing.Alert, error)
}

// Pipeline runs a matching pass for one changed listing.
type Pipeline interface {
	PassForListing(ctx context.Context, listing *housing.Listing, alerts []*housing.Alert) []*housing.MatchGroup
}

// Dispatcher delivers one match group.
type Dispatcher interface {
	Dispatch(ctx context.Context, group *housing.MatchGroup) error
}

// Listener supervises the change-feed subscription. It owns the only piece
// of mutable process state in the service: whether the subscription is
// currently running. Running more than one instance without leader election
// is wasteful but safe — the duplicate-send ledger is the real guard.
type Listener struct {
	watcher    Watcher
	alerts     AlertSource
	pipeline   Pipeline
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a change-feed listener.
func New(watcher Watcher, alerts AlertSource, pipeline Pipeline, dispatcher Dispatcher, logger *slog.Logger) *Listener {
	return &Listener{
		watcher:    watcher,
		alerts:     alerts,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start begins consuming the change feed. Calling Start while the listener is
// already running is a no-op, not an error.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.logger.Info("Change-feed listener already running, ignoring start")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, err := l.watcher.WatchListings(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("watch listings: %w", err)
	}

	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go l.run(runCtx, events, l.done)

	l.logger.Info("Change-feed listener started")
	return nil
}

// Stop cancels the subscription and waits for any in-flight matching pass to
// finish. Stopping a listener that is not running is a no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	l.logger.Info("Change-feed listener stopped")
}

// IsRunning reports whether the subscription is active.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) run(ctx context.Context, events <-chan store.ListingEvent, done chan struct{}) {
	defer func() {
		l.mu.Lock()
		l.running = false
		l.cancel()
		l.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				// Feed failure: exit cleanly so a restart can resubscribe.
				l.logger.Warn("Change feed closed, listener exiting")
				return
			}
			l.handle(ctx, event)
		}
	}
}

// handle runs one matching pass. Every failure here is log-and-continue: a
// transient store error means no matches this pass, and the next event for
// the listing retries.
func (l *Listener) handle(ctx context.Context, event store.ListingEvent) {
	listing := event.Listing

	alerts, err := l.alerts.ActiveAlerts(ctx)
	if err != nil {
		l.logger.Warn("Active alert load failed, skipping pass",
			"listing_id", listing.ID,
			"error", err)
		return
	}

	groups := l.pipeline.PassForListing(ctx, listing, alerts)
	if len(groups) == 0 {
		return
	}

	l.logger.Info("Listing change matched alerts",
		"listing_id", listing.ID,
		"kind", event.Kind,
		"matches", len(groups))

	for _, group := range groups {
		if err := l.dispatcher.Dispatch(ctx, group); err != nil {
			l.logger.Warn("Dispatch failed",
				"listing_id", listing.ID,
				"alert_id", group.Alert.ID,
				"error", err)
		}
	}
}
