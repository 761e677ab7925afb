// Package email composes and delivers listing match notifications via a
// pluggable provider.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"unihousing-notifier/pkg/housing"
)

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send sends an email with the given parameters.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ProfileSource loads the recipient slice of a user record.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (*housing.Profile, error)
}

// Recorder writes duplicate-send ledger entries.
type Recorder interface {
	RecordSent(ctx context.Context, listingID, alertID, recipientEmail string) error
}

// Sender turns match groups into notification emails. Ledger entries are
// written only after the provider confirms delivery; a crash in between
// risks one duplicate email, never a silent drop.
type Sender struct {
	provider Provider
	profiles ProfileSource
	recorder Recorder
	logger   *slog.Logger
	baseURL  string // For links in emails
	fromAddr string // From address for emails
}

// New creates an email sender with the given provider.
func New(provider Provider, profiles ProfileSource, recorder Recorder, logger *slog.Logger, baseURL, fromAddr string) *Sender {
	return &Sender{
		provider: provider,
		profiles: profiles,
		recorder: recorder,
		logger:   logger,
		baseURL:  baseURL,
		fromAddr: fromAddr,
	}
}

// Dispatch emails one match group to the alert's owner and records each
// (listing, alert) pair as sent. Owners with notifications switched off are
// skipped without recording, so the pairs deliver if they opt back in.
func (s *Sender) Dispatch(ctx context.Context, group *housing.MatchGroup) error {
	if group == nil || len(group.Listings) == 0 {
		return nil
	}
	alert := group.Alert

	profile, err := s.profiles.Profile(ctx, alert.OwnerID)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", alert.OwnerID, err)
	}

	if !profile.EmailNotificationsEnabled || profile.Email == "" {
		s.logger.Info("Notifications disabled for owner, skipping send",
			"owner_id", alert.OwnerID,
			"alert_id", alert.ID)
		return nil
	}

	subject := s.formatSubject(alert, group.Listings)
	body := s.formatDigestBody(profile, alert, group.Listings)

	s.logger.Info("Sending match notification",
		"to", profile.Email,
		"alert_id", alert.ID,
		"listing_count", len(group.Listings))

	if err := s.provider.Send(ctx, profile.Email, subject, body); err != nil {
		return fmt.Errorf("send to %s: %w", profile.Email, err)
	}

	for _, listing := range group.Listings {
		if err := s.recorder.RecordSent(ctx, listing.ID, alert.ID, profile.Email); err != nil {
			// The email went out but the ledger write failed. Worst case is
			// one duplicate email on a later pass.
			s.logger.Error("Failed to record sent notification",
				"listing_id", listing.ID,
				"alert_id", alert.ID,
				"error", err)
		}
	}

	return nil
}
