package email

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"unihousing-notifier/pkg/housing"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type capturedEmail struct {
	to      string
	subject string
	body    string
}

// captureProvider records sent emails, optionally failing.
type captureProvider struct {
	mu   sync.Mutex
	sent []capturedEmail
	err  error
}

func (p *captureProvider) Send(_ context.Context, to, subject, htmlBody string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, capturedEmail{to: to, subject: subject, body: htmlBody})
	return nil
}

type fakeProfiles struct {
	profile *housing.Profile
	err     error
}

func (f *fakeProfiles) Profile(context.Context, string) (*housing.Profile, error) {
	return f.profile, f.err
}

// captureRecorder tracks ledger writes, optionally failing.
type captureRecorder struct {
	mu    sync.Mutex
	pairs []string
	err   error
}

func (r *captureRecorder) RecordSent(_ context.Context, listingID, alertID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.pairs = append(r.pairs, listingID+"/"+alertID)
	return nil
}

func testAlert() *housing.Alert {
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

func testListing(id, title string) *housing.Listing {
	return &housing.Listing{
		ID:            id,
		City:          "New York City",
		ApartmentType: "2b2b",
		AvailableFrom: date(2025, 8, 15),
		AvailableTo:   date(2025, 12, 15),
		Rent:          1800,
		Title:         title,
		Address:       "12 College Ave",
		PropertyName:  "Maple Court",
	}
}

func enabledProfile() *housing.Profile {
	return &housing.Profile{
		UserID:                    "user-1",
		Email:                     "student@example.com",
		DisplayName:               "Sam Student",
		EmailNotificationsEnabled: true,
	}
}

func newSender(provider Provider, profiles ProfileSource, recorder Recorder) *Sender {
	return New(provider, profiles, recorder, slog.Default(), "https://housing.example.com", "alerts@housing.example.com")
}

func TestDispatchSendsAndRecords(t *testing.T) {
	provider := &captureProvider{}
	recorder := &captureRecorder{}
	s := newSender(provider, &fakeProfiles{profile: enabledProfile()}, recorder)

	group := &housing.MatchGroup{
		Alert:    testAlert(),
		Listings: []*housing.Listing{testListing("listing-1", "Sunny 2b2b near campus")},
	}
	if err := s.Dispatch(context.Background(), group); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(provider.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(provider.sent))
	}
	sent := provider.sent[0]
	if sent.to != "student@example.com" {
		t.Errorf("to = %q, want student@example.com", sent.to)
	}
	if want := "New housing match: Sunny 2b2b near campus"; sent.subject != want {
		t.Errorf("subject = %q, want %q", sent.subject, want)
	}

	if len(recorder.pairs) != 1 || recorder.pairs[0] != "listing-1/alert-1" {
		t.Errorf("recorded pairs = %v, want [listing-1/alert-1]", recorder.pairs)
	}
}

func TestDispatchDigestBody(t *testing.T) {
	provider := &captureProvider{}
	s := newSender(provider, &fakeProfiles{profile: enabledProfile()}, &captureRecorder{})

	group := &housing.MatchGroup{
		Alert: testAlert(),
		Listings: []*housing.Listing{
			testListing("listing-1", "Sunny 2b2b near campus"),
			testListing("listing-2", "Quiet place <great deal>"),
		},
	}
	if err := s.Dispatch(context.Background(), group); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(provider.sent) != 1 {
		t.Fatalf("sent %d emails, want 1 digest", len(provider.sent))
	}
	sent := provider.sent[0]
	if want := "2 new housing matches for your NYC alert"; sent.subject != want {
		t.Errorf("subject = %q, want %q", sent.subject, want)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sent.body))
	if err != nil {
		t.Fatalf("parse digest HTML: %v", err)
	}

	if got := doc.Find(".listing").Length(); got != 2 {
		t.Errorf("digest has %d listing blocks, want 2", got)
	}

	links := map[string]bool{}
	doc.Find(".listing h3 a").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		links[href] = true
	})
	for _, want := range []string{
		"https://housing.example.com/listings/listing-1",
		"https://housing.example.com/listings/listing-2",
	} {
		if !links[want] {
			t.Errorf("digest missing listing link %q, got %v", want, links)
		}
	}

	// Host-supplied text is escaped, never raw HTML.
	if strings.Contains(sent.body, "<great deal>") {
		t.Error("unescaped host-supplied markup in digest body")
	}
	if doc.Find("h3 a").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return strings.Contains(sel.Text(), "Quiet place <great deal>")
	}).Length() != 1 {
		t.Error("escaped listing title not rendered as text")
	}

	if got := doc.Find(".rent").First().Text(); got != "$1800/month" {
		t.Errorf("rent rendering = %q, want $1800/month", got)
	}
	if doc.Find(".footer a[href='https://housing.example.com/alerts']").Length() != 1 {
		t.Error("digest missing manage-alert footer link")
	}
}

func TestDispatchBlankDatesRendered(t *testing.T) {
	provider := &captureProvider{}
	s := newSender(provider, &fakeProfiles{profile: enabledProfile()}, &captureRecorder{})

	listing := testListing("listing-1", "Flexible dates")
	listing.AvailableFrom = time.Time{}
	listing.AvailableTo = time.Time{}

	group := &housing.MatchGroup{Alert: testAlert(), Listings: []*housing.Listing{listing}}
	if err := s.Dispatch(context.Background(), group); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !strings.Contains(provider.sent[0].body, "dates not specified") {
		t.Error("blank availability window not rendered")
	}
}

func TestDispatchSkipsDisabledProfile(t *testing.T) {
	provider := &captureProvider{}
	recorder := &captureRecorder{}
	profile := enabledProfile()
	profile.EmailNotificationsEnabled = false
	s := newSender(provider, &fakeProfiles{profile: profile}, recorder)

	group := &housing.MatchGroup{
		Alert:    testAlert(),
		Listings: []*housing.Listing{testListing("listing-1", "t")},
	}
	if err := s.Dispatch(context.Background(), group); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(provider.sent) != 0 {
		t.Errorf("sent %d emails for disabled profile, want 0", len(provider.sent))
	}
	// No record either: the pair should deliver if the user opts back in.
	if len(recorder.pairs) != 0 {
		t.Errorf("recorded %d pairs for skipped send, want 0", len(recorder.pairs))
	}
}

// TestDispatchSendFailureNotRecorded covers the ordering invariant: a failed
// send must leave no ledger entry, so a later pass retries.
func TestDispatchSendFailureNotRecorded(t *testing.T) {
	provider := &captureProvider{err: errors.New("provider down")}
	recorder := &captureRecorder{}
	s := newSender(provider, &fakeProfiles{profile: enabledProfile()}, recorder)

	group := &housing.MatchGroup{
		Alert:    testAlert(),
		Listings: []*housing.Listing{testListing("listing-1", "t")},
	}
	if err := s.Dispatch(context.Background(), group); err == nil {
		t.Fatal("Dispatch() error = nil, want send failure")
	}

	if len(recorder.pairs) != 0 {
		t.Errorf("recorded %d pairs after failed send, want 0", len(recorder.pairs))
	}
}

func TestDispatchRecordFailureStillSucceeds(t *testing.T) {
	provider := &captureProvider{}
	recorder := &captureRecorder{err: errors.New("ledger down")}
	s := newSender(provider, &fakeProfiles{profile: enabledProfile()}, recorder)

	group := &housing.MatchGroup{
		Alert:    testAlert(),
		Listings: []*housing.Listing{testListing("listing-1", "t")},
	}
	// The email went out; a record failure is logged, not returned.
	if err := s.Dispatch(context.Background(), group); err != nil {
		t.Errorf("Dispatch() error = %v, want nil after delivered send", err)
	}
	if len(provider.sent) != 1 {
		t.Errorf("sent %d emails, want 1", len(provider.sent))
	}
}

func TestDispatchProfileLoadFailure(t *testing.T) {
	provider := &captureProvider{}
	s := newSender(provider, &fakeProfiles{err: errors.New("store unavailable")}, &captureRecorder{})

	group := &housing.MatchGroup{
		Alert:    testAlert(),
		Listings: []*housing.Listing{testListing("listing-1", "t")},
	}
	if err := s.Dispatch(context.Background(), group); err == nil {
		t.Fatal("Dispatch() error = nil, want profile load failure")
	}
	if len(provider.sent) != 0 {
		t.Errorf("sent %d emails without a profile, want 0", len(provider.sent))
	}
}

func TestDispatchEmptyGroup(t *testing.T) {
	provider := &captureProvider{}
	s := newSender(provider, &fakeProfiles{profile: enabledProfile()}, &captureRecorder{})

	if err := s.Dispatch(context.Background(), nil); err != nil {
		t.Errorf("Dispatch(nil) error = %v", err)
	}
	if err := s.Dispatch(context.Background(), &housing.MatchGroup{Alert: testAlert()}); err != nil {
		t.Errorf("Dispatch(empty) error = %v", err)
	}
	if len(provider.sent) != 0 {
		t.Errorf("sent %d emails for empty groups, want 0", len(provider.sent))
	}
}

func TestSanitizeEmailHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"student@example.com", "student@example.com"},
		{"evil@example.com\r\nBcc: all@example.com", "evil@example.comBcc: all@example.com"},
		{"subject\nwith newline", "subjectwith newline"},
		{"tab\there", "tabhere"},
	}
	for _, tt := range tests {
		if got := sanitizeEmailHeader(tt.in); got != tt.want {
			t.Errorf("sanitizeEmailHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
