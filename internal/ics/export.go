package ics

import (
	"io"
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"roomcal/internal/model"
	"roomcal/internal/style"
)

// ExportOptions controls calendar export.
type ExportOptions struct {
	// BaseURL makes relative event URLs absolute. Optional.
	BaseURL string
	// Name is written as X-WR-CALNAME.
	Name string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// Export writes styled occurrences as a VCALENDAR. Each occurrence becomes
// its own VEVENT keyed by event id and start time.
func Export(w io.Writer, events []style.Styled, opts ExportOptions) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//roomcal//reservations//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var base *url.URL
	if opts.BaseURL != "" {
		base, _ = url.Parse(opts.BaseURL)
	}

	for _, ev := range events {
		id := ev.ID
		if id == "" {
			id = "unknown"
		}
		uid := id + "-" + ev.Start.UTC().Format("20060102T150405Z") + "@roomcal"

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Title)
		ve.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(ev.Type.String()))
		ve.SetProperty(ical.ComponentProperty("COLOR"), ev.Style.Fill)

		switch ev.Status {
		case model.StatusAccepted:
			ve.SetStatus(ical.ObjectStatusConfirmed)
		case model.StatusRejected:
			ve.SetStatus(ical.ObjectStatusCancelled)
		default:
			ve.SetStatus(ical.ObjectStatusTentative)
		}
		if !ev.Visible {
			ve.SetProperty(ical.ComponentPropertyClass, "PRIVATE")
		}
		if ev.URL != "" {
			link := ev.URL
			if base != nil {
				if ref, err := url.Parse(ev.URL); err == nil {
					link = base.ResolveReference(ref).String()
				}
			}
			ve.SetProperty(ical.ComponentPropertyUrl, link)
		}
	}

	return cal.SerializeTo(w)
}
