package match

import (
	"testing"
	"time"

	"unihousing-notifier/city"
	"unihousing-notifier/pkg/housing"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func baseAlert() *housing.Alert {
	return &housing.Alert{
		ID:            "alert-1",
		OwnerID:       "user-1",
		City:          "NYC",
		ApartmentType: "2b2b",
		DesiredFrom:   date(2025, 9, 1),
		DesiredTo:     date(2025, 12, 1),
		Active:        true,
	}
}

func baseListing() *housing.Listing {
	return &housing.Listing{
		ID:            "listing-1",
		OwnerID:       "host-1",
		City:          "New York City",
		ApartmentType: "2b2b",
		AvailableFrom: date(2025, 8, 15),
		AvailableTo:   date(2025, 12, 15),
	}
}

func TestMatches(t *testing.T) {
	m := New(city.New(), MatchIfMissing)

	tests := []struct {
		name   string
		mutate func(a *housing.Alert, l *housing.Listing)
		want   bool
	}{
		{
			name:   "alias city with full coverage",
			mutate: func(a *housing.Alert, l *housing.Listing) {},
			want:   true,
		},
		{
			name: "different city",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.City = "Boston"
			},
			want: false,
		},
		{
			name: "different apartment type",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.ApartmentType = "studio"
			},
			want: false,
		},
		{
			name: "apartment type match is case-sensitive",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.ApartmentType = "2B2B"
			},
			want: false,
		},
		{
			name: "listing starts too late to cover the window",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.AvailableFrom = date(2025, 9, 15)
			},
			want: false,
		},
		{
			name: "listing ends too early to cover the window",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.AvailableTo = date(2025, 11, 1)
			},
			want: false,
		},
		{
			name: "exact boundary equality on both ends",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.AvailableFrom = a.DesiredFrom
				l.AvailableTo = a.DesiredTo
			},
			want: true,
		},
		{
			name: "overlap without containment does not match",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.AvailableFrom = date(2025, 10, 1)
				l.AvailableTo = date(2026, 3, 1)
			},
			want: false,
		},
		{
			name: "missing start date matches under default policy",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.AvailableFrom = time.Time{}
			},
			want: true,
		},
		{
			name: "missing end date matches under default policy",
			mutate: func(a *housing.Alert, l *housing.Listing) {
				l.AvailableTo = time.Time{}
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, l := baseAlert(), baseListing()
			tt.mutate(a, l)
			if got := m.Matches(a, l); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesNoMatchIfMissingPolicy(t *testing.T) {
	m := New(city.New(), NoMatchIfMissing)

	a, l := baseAlert(), baseListing()
	l.AvailableFrom = time.Time{}
	if m.Matches(a, l) {
		t.Error("Matches() = true for missing start date under NoMatchIfMissing")
	}

	a, l = baseAlert(), baseListing()
	if !m.Matches(a, l) {
		t.Error("Matches() = false for complete window under NoMatchIfMissing")
	}
}
