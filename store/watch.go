package store

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"unihousing-notifier/pkg/housing"
)

// EventKind classifies a change-feed event.
type EventKind int

const (
	// EventCreated is a newly created listing.
	EventCreated EventKind = iota
	// EventModified is an edit to an existing listing.
	EventModified
)

// ListingEvent is one creation or modification observed on the listing
// collection. Deletions are never delivered; deleted listings are not
// matched against.
type ListingEvent struct {
	Listing *housing.Listing
	Kind    EventKind
}

// WatchListings subscribes to the listing change feed. The channel closes
// when ctx is cancelled or the underlying stream fails; callers restart by
// subscribing again.
//
// In Firestore mode the first snapshot replays every existing listing as a
// creation event. That replay is deliberate: the duplicate-send ledger makes
// re-matching idempotent, and it doubles as a catch-up scan for anything
// missed while the process was down. Events arrive in commit order per
// listing; no ordering holds across listings.
func (s *Store) WatchListings(ctx context.Context) (<-chan ListingEvent, error) {
	ch := make(chan ListingEvent, 64)

	if s.localPath != "" {
		s.mu.Lock()
		s.subs[ch] = struct{}{}
		s.mu.Unlock()

		go func() {
			<-ctx.Done()
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		}()
		return ch, nil
	}

	snaps := s.client.Collection(colListings).Snapshots(ctx)

	go func() {
		defer close(ch)
		defer snaps.Stop()

		for {
			snap, err := snaps.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled || ctx.Err() != nil {
					s.logger.Info("Listing snapshot stream closed")
					return
				}
				s.logger.Warn("Listing snapshot stream failed", "error", err)
				return
			}

			for _, change := range snap.Changes {
				var kind EventKind
				switch change.Kind {
				case firestore.DocumentAdded:
					kind = EventCreated
				case firestore.DocumentModified:
					kind = EventModified
				default:
					continue
				}

				event := ListingEvent{
					Listing: listingFromData(change.Doc.Ref.ID, change.Doc.Data()),
					Kind:    kind,
				}
				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// publish fans a local-mode write out to subscribers. A subscriber that has
// fallen 64 events behind misses the event; the ledger-backed rescan path
// covers the gap.
func (s *Store) publish(event ListingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.logger.Warn("Change-feed subscriber behind, dropping event", "listing_id", event.Listing.ID)
		}
	}
}
