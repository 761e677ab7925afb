package email

import (
	"fmt"
	"strings"
	"time"

	"unihousing-notifier/pkg/housing"
)

func (s *Sender) formatSubject(alert *housing.Alert, listings []*housing.Listing) string {
	if len(listings) == 1 {
		l := listings[0]
		name := l.Title
		if name == "" {
			name = l.PropertyName
		}
		if name == "" {
			return fmt.Sprintf("New housing match in %s", l.City)
		}
		return fmt.Sprintf("New housing match: %s", name)
	}
	return fmt.Sprintf("%d new housing matches for your %s alert", len(listings), alert.City)
}

func (s *Sender) formatDigestBody(profile *housing.Profile, alert *housing.Alert, listings []*housing.Listing) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".header { border-bottom: 2px solid #2980b9; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".listing { margin-bottom: 25px; padding: 20px; background: #f8f9fa; border-radius: 8px; }\n")
	b.WriteString(".listing h3 { margin: 0 0 10px 0; }\n")
	b.WriteString(".rent { color: #27ae60; font-weight: 600; font-size: 1.1em; }\n")
	b.WriteString(".detail { color: #7f8c8d; font-size: 0.95em; margin: 4px 0; }\n")
	b.WriteString(".footer { margin-top: 20px; padding-top: 10px; border-top: 2px solid #ecf0f1; color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("a { color: #2980b9; text-decoration: none; }\n")
	b.WriteString("a:hover { text-decoration: underline; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".header { border-bottom-color: #5dade2; }\n")
	b.WriteString(".listing { background: #2a2a2a; }\n")
	b.WriteString(".detail { color: #a0a0a0; }\n")
	b.WriteString(".footer { border-top-color: #444; color: #a0a0a0; }\n")
	b.WriteString("a { color: #5dade2; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	if len(listings) == 1 {
		b.WriteString("<h2>A new listing matches your housing alert</h2>\n")
	} else {
		b.WriteString(fmt.Sprintf("<h2>%d listings match your housing alert</h2>\n", len(listings)))
	}
	b.WriteString(fmt.Sprintf("<p>Your alert: %s, %s, %s to %s</p>\n",
		escapeHTML(alert.City),
		escapeHTML(alert.ApartmentType),
		formatDate(alert.DesiredFrom),
		formatDate(alert.DesiredTo)))
	b.WriteString("</div>\n")

	for _, l := range listings {
		b.WriteString("<div class=\"listing\">\n")

		title := l.Title
		if title == "" {
			title = l.PropertyName
		}
		if title == "" {
			title = fmt.Sprintf("%s in %s", l.ApartmentType, l.City)
		}
		listingURL := fmt.Sprintf("%s/listings/%s", s.baseURL, l.ID)
		b.WriteString(fmt.Sprintf("<h3><a href=\"%s\">%s</a></h3>\n", escapeHTML(listingURL), escapeHTML(title)))

		if l.Rent > 0 {
			b.WriteString(fmt.Sprintf("<div class=\"rent\">$%d/month</div>\n", l.Rent))
		}
		if l.PropertyName != "" && l.PropertyName != title {
			b.WriteString(fmt.Sprintf("<div class=\"detail\">%s</div>\n", escapeHTML(l.PropertyName)))
		}
		if l.Address != "" {
			b.WriteString(fmt.Sprintf("<div class=\"detail\">%s</div>\n", escapeHTML(l.Address)))
		}
		b.WriteString(fmt.Sprintf("<div class=\"detail\">%s &bull; %s</div>\n",
			escapeHTML(l.City), escapeHTML(l.ApartmentType)))
		b.WriteString(fmt.Sprintf("<div class=\"detail\">Available %s</div>\n", formatWindow(l.AvailableFrom, l.AvailableTo)))

		b.WriteString("</div>\n")
	}

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString(fmt.Sprintf("<a href=\"%s/alerts\">Manage your alert</a>\n", escapeHTML(s.baseURL)))
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "any date"
	}
	return t.Format("Jan 2, 2006")
}

// formatWindow renders a listing availability range, tolerating the blank
// dates some hosts leave.
func formatWindow(from, to time.Time) string {
	switch {
	case from.IsZero() && to.IsZero():
		return "dates not specified"
	case to.IsZero():
		return fmt.Sprintf("from %s", formatDate(from))
	case from.IsZero():
		return fmt.Sprintf("until %s", formatDate(to))
	default:
		return fmt.Sprintf("%s to %s", formatDate(from), formatDate(to))
	}
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
