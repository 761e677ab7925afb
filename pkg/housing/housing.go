// Package housing contains the core domain types for the listing alert service.
package housing

import (
	"errors"
	"fmt"
	"time"
)

// Alert is a user's standing request to be notified about listings matching
// city, apartment type, and date criteria. The UI assumes one alert per user.
type Alert struct {
	DesiredFrom   time.Time `firestore:"desiredFrom" json:"desired_from"`     // Start of the desired stay
	DesiredTo     time.Time `firestore:"desiredTo" json:"desired_to"`         // End of the desired stay
	CreatedAt     time.Time `firestore:"createdAt" json:"created_at"`         // Creation timestamp
	ID            string    `firestore:"-" json:"id"`                         // Document ID
	OwnerID       string    `firestore:"ownerId" json:"owner_id"`             // Owning user
	City          string    `firestore:"city" json:"city"`                    // Free text as entered
	ApartmentType string    `firestore:"apartmentType" json:"apartment_type"` // Token such as "1b1b", "2b2b", "studio"
	Active        bool      `firestore:"active" json:"active"`                // Inactive alerts are retained but never matched
}

// Listing is a host's posted housing availability record. The descriptive
// fields are opaque to matching and pass through to notifications.
type Listing struct {
	AvailableFrom time.Time `firestore:"availableFrom" json:"available_from"` // Zero when the host left it blank
	AvailableTo   time.Time `firestore:"availableTo" json:"available_to"`     // Zero when the host left it blank
	CreatedAt     time.Time `firestore:"createdAt" json:"created_at"`
	ID            string    `firestore:"-" json:"id"`
	OwnerID       string    `firestore:"ownerId" json:"owner_id"`
	City          string    `firestore:"city" json:"city"`
	ApartmentType string    `firestore:"apartmentType" json:"apartment_type"`
	Title         string    `firestore:"title" json:"title"`
	Address       string    `firestore:"address" json:"address"`
	PropertyName  string    `firestore:"propertyName" json:"property_name"`
	Rent          int64     `firestore:"rent" json:"rent"` // Monthly rent in whole dollars
}

// Profile is the slice of a user record the notification path needs.
type Profile struct {
	UserID                    string `firestore:"-" json:"user_id"`
	Email                     string `firestore:"email" json:"email"`
	DisplayName               string `firestore:"displayName" json:"display_name"`
	EmailNotificationsEnabled bool   `firestore:"emailNotificationsEnabled" json:"email_notifications_enabled"`
}

// SentRecord is one duplicate-send ledger entry. At most one record exists
// per (listing, alert) pair, ever.
type SentRecord struct {
	SentAt         time.Time `firestore:"sentAt" json:"sent_at"`
	ListingID      string    `firestore:"listingId" json:"listing_id"`
	AlertID        string    `firestore:"alertId" json:"alert_id"`
	RecipientEmail string    `firestore:"recipientEmail" json:"recipient_email"` // Denormalized for audit
}

// MatchGroup is one pending notification: an alert and the listings that
// matched it in a single pass. The change-feed path always carries one
// listing; backward scans may batch several into a digest.
type MatchGroup struct {
	Alert    *Alert
	Listings []*Listing
}

// ValidationError reports malformed alert input. It is surfaced synchronously
// to the caller and never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
