// Package match decides whether listings satisfy alerts and runs the shared
// matching pipeline used by the change-feed listener and backward scans.
package match

import (
	"unihousing-notifier/pkg/housing"
)

// MissingDatePolicy names the behavior when a listing is missing either
// availability date.
type MissingDatePolicy int

const (
	// MatchIfMissing treats the coverage check as satisfied when the listing
	// has no usable availability window ("always notify if dates unknown").
	// This is the long-standing production behavior.
	MatchIfMissing MissingDatePolicy = iota

	// NoMatchIfMissing rejects listings without a complete availability window.
	NoMatchIfMissing
)

// Canonicalizer normalizes free-text city names.
type Canonicalizer interface {
	Canonicalize(raw string) string
}

// Matcher applies the alert/listing matching rules.
type Matcher struct {
	cities Canonicalizer
	policy MissingDatePolicy
}

// New creates a matcher.
func New(cities Canonicalizer, policy MissingDatePolicy) *Matcher {
	return &Matcher{
		cities: cities,
		policy: policy,
	}
}

// Matches reports whether the listing satisfies the alert. The caller is
// responsible for filtering inactive alerts.
//
// All three rules must pass, checked cheapest-miss first:
//  1. canonical city equality,
//  2. exact apartment-type token equality (case-sensitive; "2B2B" and "2b2b"
//     deliberately do not match),
//  3. full containment: the listing's availability window must enclose the
//     alert's desired window, boundaries inclusive. Overlap is not enough —
//     a tenant wants housing for their whole stay.
func (m *Matcher) Matches(alert *housing.Alert, listing *housing.Listing) bool {
	if m.cities.Canonicalize(alert.City) != m.cities.Canonicalize(listing.City) {
		return false
	}

	if alert.ApartmentType != listing.ApartmentType {
		return false
	}

	if listing.AvailableFrom.IsZero() || listing.AvailableTo.IsZero() {
		return m.policy == MatchIfMissing
	}

	return !listing.AvailableFrom.After(alert.DesiredFrom) &&
		!listing.AvailableTo.Before(alert.DesiredTo)
}
