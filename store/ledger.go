package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"unihousing-notifier/pkg/housing"
)

// The duplicate-send ledger guarantees at most one notification per
// (listing, alert) pair. Uniqueness rides on a conditional create: Firestore
// Create fails with AlreadyExists for a present key, and local mode uses
// O_EXCL file creation. A losing writer in a concurrent race treats the
// existing record as success, so a feed event and a backward scan hitting
// the same pair at the same moment produce exactly one record.

var errAlreadyRecorded = errors.New("store: notification already recorded")

// sentKey builds the composite ledger key. IDs are UUIDs, so the separator
// cannot collide.
func sentKey(listingID, alertID string) string {
	return listingID + "__" + alertID
}

// HasSent reports whether a notification for the pair has ever been sent.
func (s *Store) HasSent(ctx context.Context, listingID, alertID string) (bool, error) {
	key := sentKey(listingID, alertID)

	if s.localPath != "" {
		return s.localExists(colSent, key), nil
	}

	_, err := s.client.Collection(colSent).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("get ledger record: %w", err)
	}
	return true, nil
}

// RecordSent writes the ledger record for a delivered notification. Callers
// invoke this only after the email transport confirms delivery; the write is
// retried and an existing record makes the call a no-op.
func (s *Store) RecordSent(ctx context.Context, listingID, alertID, recipientEmail string) error {
	key := sentKey(listingID, alertID)
	record := &housing.SentRecord{
		ListingID:      listingID,
		AlertID:        alertID,
		RecipientEmail: recipientEmail,
		SentAt:         time.Now().UTC(),
	}

	if s.localPath != "" {
		return s.recordSentLocal(key, record)
	}

	err := retry.Do(
		func() error {
			_, createErr := s.client.Collection(colSent).Doc(key).Create(ctx, record)
			if status.Code(createErr) == codes.AlreadyExists {
				return retry.Unrecoverable(errAlreadyRecorded)
			}
			return createErr
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying ledger write after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if errors.Is(err, errAlreadyRecorded) {
		s.logger.Debug("Ledger record already exists", "key", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record sent after retries: %w", err)
	}

	s.logger.Info("Notification recorded", "listing_id", listingID, "alert_id", alertID, "recipient", recipientEmail)
	return nil
}

func (s *Store) recordSentLocal(key string, record *housing.SentRecord) error {
	dir := s.localDir(colSent)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create local collection dir: %w", err)
	}

	f, err := os.OpenFile(s.localFile(colSent, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			s.logger.Debug("Ledger record already exists", "key", key)
			return nil
		}
		return fmt.Errorf("create ledger record: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warn("Failed to close ledger file", "key", key, "error", closeErr)
		}
	}()

	if err := writeJSON(f, record); err != nil {
		return fmt.Errorf("write ledger record: %w", err)
	}
	return nil
}

// sentKeysForListing returns the ledger keys referencing a listing, used by
// PurgeListing.
func (s *Store) sentKeysForListing(ctx context.Context, listingID string) ([]string, error) {
	if s.localPath != "" {
		ids, err := s.localIDs(colSent)
		if err != nil {
			return nil, err
		}
		var keys []string
		for _, id := range ids {
			if strings.HasPrefix(id, listingID+"__") {
				keys = append(keys, id)
			}
		}
		return keys, nil
	}

	it := s.client.Collection(colSent).Where("listingId", "==", listingID).Documents(ctx)
	defer it.Stop()

	var keys []string
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query ledger by listing: %w", err)
		}
		keys = append(keys, doc.Ref.ID)
	}
	return keys, nil
}

func (s *Store) deleteSent(ctx context.Context, key string) error {
	if s.localPath != "" {
		return s.deleteLocal(colSent, key)
	}

	_, err := s.client.Collection(colSent).Doc(key).Delete(ctx)
	if err != nil {
		return fmt.Errorf("delete ledger record: %w", err)
	}
	return nil
}
