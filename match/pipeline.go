package match

import (
	"context"
	"log/slog"

	"unihousing-notifier/pkg/housing"
)

// Ledger reports whether a (listing, alert) pair has already been notified.
type Ledger interface {
	HasSent(ctx context.Context, listingID, alertID string) (bool, error)
}

// Pipeline runs matching passes. It never dispatches anything itself; callers
// orchestrate delivery so the pipeline stays pure and testable.
type Pipeline struct {
	matcher *Matcher
	ledger  Ledger
	logger  *slog.Logger
}

// NewPipeline creates a matching pipeline.
func NewPipeline(matcher *Matcher, ledger Ledger, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		matcher: matcher,
		ledger:  ledger,
		logger:  logger,
	}
}

// PassForListing matches one changed listing against a set of alerts and
// returns a single-listing group per alert that matched and has not been
// notified yet. Inactive alerts are skipped. A ledger read failure skips the
// pair for this pass only — the next trigger for the listing retries it.
func (p *Pipeline) PassForListing(ctx context.Context, listing *housing.Listing, alerts []*housing.Alert) []*housing.MatchGroup {
	var groups []*housing.MatchGroup

	for _, alert := range alerts {
		if !alert.Active {
			continue
		}
		if !p.matcher.Matches(alert, listing) {
			continue
		}

		sent, err := p.ledger.HasSent(ctx, listing.ID, alert.ID)
		if err != nil {
			p.logger.Warn("Ledger read failed, skipping pair this pass",
				"listing_id", listing.ID,
				"alert_id", alert.ID,
				"error", err)
			continue
		}
		if sent {
			continue
		}

		groups = append(groups, &housing.MatchGroup{
			Alert:    alert,
			Listings: []*housing.Listing{listing},
		})
	}

	return groups
}

// PassForAlert gathers every unseen listing that satisfies one alert into a
// single digest group, used by the backward scan at alert creation and by the
// periodic rescan. Returns false when nothing needs sending.
func (p *Pipeline) PassForAlert(ctx context.Context, alert *housing.Alert, listings []*housing.Listing) (*housing.MatchGroup, bool) {
	if !alert.Active {
		return nil, false
	}

	var matched []*housing.Listing
	for _, listing := range listings {
		if !p.matcher.Matches(alert, listing) {
			continue
		}

		sent, err := p.ledger.HasSent(ctx, listing.ID, alert.ID)
		if err != nil {
			p.logger.Warn("Ledger read failed, skipping pair this pass",
				"listing_id", listing.ID,
				"alert_id", alert.ID,
				"error", err)
			continue
		}
		if sent {
			continue
		}

		matched = append(matched, listing)
	}

	if len(matched) == 0 {
		return nil, false
	}

	return &housing.MatchGroup{Alert: alert, Listings: matched}, true
}
