// Package store handles persistence of alerts, listings, user profiles, and
// the duplicate-send ledger. It runs against Firestore in production and a
// local JSON directory in development, selected by configuration.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"unihousing-notifier/pkg/housing"
)

const (
	colAlerts   = "alerts"
	colListings = "listings"
	colSent     = "sent_notifications"
	colProfiles = "profiles"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("store: document not found")

// IsNotFound checks if an error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || status.Code(err) == codes.NotFound
}

// Store handles document persistence.
type Store struct {
	client    *firestore.Client
	logger    *slog.Logger
	localPath string

	mu   sync.Mutex
	subs map[chan ListingEvent]struct{} // local-mode change-feed subscribers
}

// New creates a storage handler. When localPath is non-empty the store runs
// against the local filesystem and client may be nil.
func New(client *firestore.Client, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		subs:      make(map[chan ListingEvent]struct{}),
	}
}

// withWriteRetry runs a remote write with the standard retry policy.
func (s *Store) withWriteRetry(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(
		fn,
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying store write after error", "op", op, "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s after retries: %w", op, err)
	}
	return nil
}

// SaveAlert persists an alert, overwriting any previous version.
func (s *Store) SaveAlert(ctx context.Context, alert *housing.Alert) error {
	if alert.ID == "" {
		return errors.New("alert ID required")
	}

	if s.localPath != "" {
		return s.writeLocal(colAlerts, alert.ID, alert)
	}

	return s.withWriteRetry(ctx, "save alert", func() error {
		_, err := s.client.Collection(colAlerts).Doc(alert.ID).Set(ctx, alert)
		return err
	})
}

// Alert loads a single alert by ID.
func (s *Store) Alert(ctx context.Context, id string) (*housing.Alert, error) {
	if s.localPath != "" {
		var alert housing.Alert
		if err := s.readLocal(colAlerts, id, &alert); err != nil {
			return nil, err
		}
		return &alert, nil
	}

	doc, err := s.client.Collection(colAlerts).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alertFromDoc(doc.Ref.ID, doc)
}

// AlertByOwner returns the owner's alert, or ErrNotFound. The product allows
// one alert per user.
func (s *Store) AlertByOwner(ctx context.Context, ownerID string) (*housing.Alert, error) {
	if s.localPath != "" {
		alerts, err := s.localAlerts()
		if err != nil {
			return nil, err
		}
		for _, alert := range alerts {
			if alert.OwnerID == ownerID {
				return alert, nil
			}
		}
		return nil, fmt.Errorf("alert for owner %s: %w", ownerID, ErrNotFound)
	}

	it := s.client.Collection(colAlerts).Where("ownerId", "==", ownerID).Limit(1).Documents(ctx)
	defer it.Stop()

	doc, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("alert for owner %s: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query alert by owner: %w", err)
	}
	return alertFromDoc(doc.Ref.ID, doc)
}

// ActiveAlerts returns every alert with active == true.
func (s *Store) ActiveAlerts(ctx context.Context) ([]*housing.Alert, error) {
	if s.localPath != "" {
		all, err := s.localAlerts()
		if err != nil {
			return nil, err
		}
		var active []*housing.Alert
		for _, alert := range all {
			if alert.Active {
				active = append(active, alert)
			}
		}
		return active, nil
	}

	it := s.client.Collection(colAlerts).Where("active", "==", true).Documents(ctx)
	defer it.Stop()

	var alerts []*housing.Alert
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate alerts: %w", err)
		}
		alert, err := alertFromDoc(doc.Ref.ID, doc)
		if err != nil {
			s.logger.Warn("Failed to decode alert", "id", doc.Ref.ID, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// DeleteAlert removes an alert. Deleting a missing alert is not an error.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	if s.localPath != "" {
		return s.deleteLocal(colAlerts, id)
	}

	return s.withWriteRetry(ctx, "delete alert", func() error {
		_, err := s.client.Collection(colAlerts).Doc(id).Delete(ctx)
		return err
	})
}

// SaveListing persists a listing. In local mode the write is published to
// change-feed subscribers; in Firestore mode the snapshot stream does that
// server-side.
func (s *Store) SaveListing(ctx context.Context, listing *housing.Listing) error {
	if listing.ID == "" {
		return errors.New("listing ID required")
	}

	if s.localPath != "" {
		existed := s.localExists(colListings, listing.ID)
		if err := s.writeLocal(colListings, listing.ID, listing); err != nil {
			return err
		}
		kind := EventCreated
		if existed {
			kind = EventModified
		}
		s.publish(ListingEvent{Listing: listing, Kind: kind})
		return nil
	}

	return s.withWriteRetry(ctx, "save listing", func() error {
		_, err := s.client.Collection(colListings).Doc(listing.ID).Set(ctx, listing)
		return err
	})
}

// Listing loads a single listing by ID.
func (s *Store) Listing(ctx context.Context, id string) (*housing.Listing, error) {
	if s.localPath != "" {
		data, err := s.readLocalMap(colListings, id)
		if err != nil {
			return nil, err
		}
		return listingFromData(id, data), nil
	}

	doc, err := s.client.Collection(colListings).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return listingFromData(doc.Ref.ID, doc.Data()), nil
}

// Listings returns every listing currently in the store.
func (s *Store) Listings(ctx context.Context) ([]*housing.Listing, error) {
	if s.localPath != "" {
		return s.localListings()
	}

	it := s.client.Collection(colListings).Documents(ctx)
	defer it.Stop()

	var listings []*housing.Listing
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate listings: %w", err)
		}
		listings = append(listings, listingFromData(doc.Ref.ID, doc.Data()))
	}
	return listings, nil
}

// DeleteListing removes a listing. Missing is success.
func (s *Store) DeleteListing(ctx context.Context, id string) error {
	if s.localPath != "" {
		return s.deleteLocal(colListings, id)
	}

	return s.withWriteRetry(ctx, "delete listing", func() error {
		_, err := s.client.Collection(colListings).Doc(id).Delete(ctx)
		return err
	})
}

// PurgeListing removes a listing and best-effort cleans up its ledger rows so
// no suppression state outlives the listing. Ledger cleanup failures are
// logged and skipped: an orphaned ledger row only suppresses mail for a
// listing that no longer exists.
func (s *Store) PurgeListing(ctx context.Context, id string) error {
	if err := s.DeleteListing(ctx, id); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}

	keys, err := s.sentKeysForListing(ctx, id)
	if err != nil {
		s.logger.Warn("Ledger cleanup query failed, leaving rows behind", "listing_id", id, "error", err)
		return nil
	}

	var failed int
	for _, key := range keys {
		if err := s.deleteSent(ctx, key); err != nil {
			failed++
			s.logger.Warn("Ledger row cleanup failed", "key", key, "error", err)
		}
	}

	s.logger.Info("Listing purged", "listing_id", id, "ledger_rows", len(keys), "cleanup_failures", failed)
	return nil
}

// Profile loads the notification-relevant slice of a user record.
func (s *Store) Profile(ctx context.Context, userID string) (*housing.Profile, error) {
	if s.localPath != "" {
		var profile housing.Profile
		if err := s.readLocal(colProfiles, userID, &profile); err != nil {
			return nil, err
		}
		profile.UserID = userID
		return &profile, nil
	}

	doc, err := s.client.Collection(colProfiles).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var profile housing.Profile
	if err := doc.DataTo(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	profile.UserID = userID
	return &profile, nil
}

// SaveProfile persists a user profile. The application shell syncs these from
// the identity provider; the notifier only reads them.
func (s *Store) SaveProfile(ctx context.Context, profile *housing.Profile) error {
	if profile.UserID == "" {
		return errors.New("profile user ID required")
	}

	if s.localPath != "" {
		return s.writeLocal(colProfiles, profile.UserID, profile)
	}

	return s.withWriteRetry(ctx, "save profile", func() error {
		_, err := s.client.Collection(colProfiles).Doc(profile.UserID).Set(ctx, profile)
		return err
	})
}
