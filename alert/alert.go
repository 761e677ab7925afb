// Package alert implements alert lifecycle operations: create with an
// immediate backward scan, toggle, delete, and the periodic rescan.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"unihousing-notifier/pkg/housing"
	"unihousing-notifier/store"
)

// Store is the persistence surface the manager needs.
type Store interface {
	SaveAlert(ctx context.Context, alert *housing.Alert) error
	Alert(ctx context.Context, id string) (*housing.Alert, error)
	AlertByOwner(ctx context.Context, ownerID string) (*housing.Alert, error)
	ActiveAlerts(ctx context.Context) ([]*housing.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	Listing(ctx context.Context, id string) (*housing.Listing, error)
	Listings(ctx context.Context) ([]*housing.Listing, error)
}

// Pipeline runs matching passes.
type Pipeline interface {
	PassForAlert(ctx context.Context, alert *housing.Alert, listings []*housing.Listing) (*housing.MatchGroup, bool)
	PassForListing(ctx context.Context, listing *housing.Listing, alerts []*housing.Alert) []*housing.MatchGroup
}

// Dispatcher delivers one match group.
type Dispatcher interface {
	Dispatch(ctx context.Context, group *housing.MatchGroup) error
}

// Manager owns alert lifecycle operations.
type Manager struct {
	store      Store
	pipeline   Pipeline
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New creates an alert manager.
func New(store Store, pipeline Pipeline, dispatcher Dispatcher, logger *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Create validates and persists a new active alert, then backward-scans the
// existing listings for immediate matches. The product allows one alert per
// user, so creating replaces any alert the owner already has. A backward-scan
// or dispatch failure never rolls the alert back — the change-feed listener
// still catches future matches.
func (m *Manager) Create(ctx context.Context, ownerID, cityName, apartmentType string, desiredFrom, desiredTo time.Time) (*housing.Alert, error) {
	if err := validate(ownerID, cityName, apartmentType, desiredFrom, desiredTo); err != nil {
		return nil, err
	}

	if existing, err := m.store.AlertByOwner(ctx, ownerID); err == nil {
		m.logger.Info("Replacing existing alert", "owner_id", ownerID, "old_alert_id", existing.ID)
		if err := m.store.DeleteAlert(ctx, existing.ID); err != nil {
			m.logger.Warn("Failed to delete replaced alert", "alert_id", existing.ID, "error", err)
		}
	} else if !store.IsNotFound(err) {
		m.logger.Warn("Existing alert lookup failed, creating anyway", "owner_id", ownerID, "error", err)
	}

	alert := &housing.Alert{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		City:          cityName,
		ApartmentType: apartmentType,
		DesiredFrom:   desiredFrom,
		DesiredTo:     desiredTo,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}

	m.logger.Info("Alert created",
		"alert_id", alert.ID,
		"owner_id", ownerID,
		"city", cityName,
		"apartment_type", apartmentType)

	if err := m.backwardScan(ctx, alert); err != nil {
		m.logger.Warn("Backward scan failed after alert creation", "alert_id", alert.ID, "error", err)
	}

	return alert, nil
}

func validate(ownerID, cityName, apartmentType string, desiredFrom, desiredTo time.Time) error {
	switch {
	case strings.TrimSpace(ownerID) == "":
		return &housing.ValidationError{Field: "ownerId", Reason: "required"}
	case strings.TrimSpace(cityName) == "":
		return &housing.ValidationError{Field: "city", Reason: "required"}
	case strings.TrimSpace(apartmentType) == "":
		return &housing.ValidationError{Field: "apartmentType", Reason: "required"}
	case desiredFrom.IsZero():
		return &housing.ValidationError{Field: "desiredFrom", Reason: "required"}
	case desiredTo.IsZero():
		return &housing.ValidationError{Field: "desiredTo", Reason: "required"}
	case desiredFrom.After(desiredTo):
		return &housing.ValidationError{Field: "desiredFrom", Reason: "must not be after desiredTo"}
	}
	return nil
}

// backwardScan matches one new alert against every current listing and sends
// a single digest for whatever is unseen.
func (m *Manager) backwardScan(ctx context.Context, alert *housing.Alert) error {
	listings, err := m.store.Listings(ctx)
	if err != nil {
		return fmt.Errorf("list listings: %w", err)
	}

	group, ok := m.pipeline.PassForAlert(ctx, alert, listings)
	if !ok {
		return nil
	}

	m.logger.Info("Backward scan found matches", "alert_id", alert.ID, "listings", len(group.Listings))

	if err := m.dispatcher.Dispatch(ctx, group); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// ToggleActive flips an alert's active flag. Inactive alerts are excluded
// from all future matching but retained.
func (m *Manager) ToggleActive(ctx context.Context, alertID string) (*housing.Alert, error) {
	alert, err := m.store.Alert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("load alert: %w", err)
	}

	alert.Active = !alert.Active
	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}

	m.logger.Info("Alert toggled", "alert_id", alertID, "active", alert.Active)
	return alert, nil
}

// Delete removes an alert. Deleting a nonexistent alert is a success state.
func (m *Manager) Delete(ctx context.Context, alertID string) error {
	if err := m.store.DeleteAlert(ctx, alertID); err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete alert: %w", err)
	}
	m.logger.Info("Alert deleted", "alert_id", alertID)
	return nil
}

// RescanAll matches every active alert against the current listings. This is
// the periodic hardening pass that re-delivers anything a failed send left
// behind; the ledger keeps it from re-sending what already went out.
func (m *Manager) RescanAll(ctx context.Context) error {
	alerts, err := m.store.ActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}

	listings, err := m.store.Listings(ctx)
	if err != nil {
		return fmt.Errorf("list listings: %w", err)
	}

	m.logger.Info("Rescan starting", "alerts", len(alerts), "listings", len(listings))

	var dispatched, failed int
	for _, alert := range alerts {
		if ctx.Err() != nil {
			m.logger.Info("Context cancelled, stopping rescan", "error", ctx.Err())
			return ctx.Err()
		}

		group, ok := m.pipeline.PassForAlert(ctx, alert, listings)
		if !ok {
			continue
		}
		if err := m.dispatcher.Dispatch(ctx, group); err != nil {
			failed++
			m.logger.Warn("Rescan dispatch failed", "alert_id", alert.ID, "error", err)
			continue
		}
		dispatched++
	}

	m.logger.Info("Rescan completed", "dispatched", dispatched, "failed", failed)
	return nil
}

// RecheckListing re-runs matching for one listing, used by the listing-edit
// handler for an immediate re-check outside the change feed.
func (m *Manager) RecheckListing(ctx context.Context, listingID string) error {
	listing, err := m.store.Listing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("load listing: %w", err)
	}

	alerts, err := m.store.ActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}

	for _, group := range m.pipeline.PassForListing(ctx, listing, alerts) {
		if err := m.dispatcher.Dispatch(ctx, group); err != nil {
			m.logger.Warn("Recheck dispatch failed",
				"listing_id", listingID,
				"alert_id", group.Alert.ID,
				"error", err)
		}
	}
	return nil
}
