package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
)

// TermOptions controls how an Entry becomes reservation terms.
type TermOptions struct {
	// Location is the display zone terms are written in. Nil means time.Local.
	Location *time.Location

	// From and Until bound the occurrences taken from a recurring entry.
	// Zero values leave that side open. A single entry is always kept.
	From  time.Time
	Until time.Time

	// Max caps a recurring entry; zero means MaxWeeklyTerms.
	Max int
}

// Terms converts an entry into terms, one per occurrence, in the order they
// happen. All-day entries and entries crossing midnight cannot be reserved.
func Terms(e Entry, opts TermOptions) ([]model.Term, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Max <= 0 {
		opts.Max = MaxWeeklyTerms
	}
	if e.AllDay {
		return nil, fmt.Errorf("%s: all-day events cannot be reserved", e.UID)
	}
	if !e.End.After(e.Start) {
		return nil, fmt.Errorf("%s: end is not after start", e.UID)
	}
	if !opts.Until.IsZero() && opts.Until.Before(opts.From) {
		return nil, errors.New("expand: until is before from")
	}

	if e.RawRRule == "" {
		t, err := occurrenceTerm(e.Start, e.End, opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.UID, err)
		}
		return []model.Term{t}, nil
	}

	starts, err := occurrences(e, opts)
	if err != nil {
		return nil, err
	}
	dur := e.End.Sub(e.Start)
	out := make([]model.Term, 0, len(starts))
	for _, s := range starts {
		t, err := occurrenceTerm(s, s.Add(dur), opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.UID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func occurrences(e Entry, opts TermOptions) ([]time.Time, error) {
	r, err := rrule.StrToRRule(e.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", e.UID, "rrule", e.RawRRule)
		return nil, fmt.Errorf("%s: rrule: %w", e.UID, err)
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	var starts []time.Time
	iter := set.Iterator()
	for {
		s, ok := iter()
		if !ok {
			break
		}
		if !opts.Until.IsZero() && s.After(opts.Until) {
			break
		}
		if !opts.From.IsZero() && s.Before(opts.From) {
			continue
		}
		if len(starts) == opts.Max {
			appLog.Warn("expand: recurrence truncated", "uid", e.UID, "cap", opts.Max)
			break
		}
		starts = append(starts, s)
	}
	if len(starts) == 0 {
		return nil, fmt.Errorf("%s: no occurrences in range", e.UID)
	}
	return starts, nil
}

// occurrenceTerm rejects occurrences that run past the next midnight; an
// end at exactly midnight is clipped to 23:59.
func occurrenceTerm(start, end time.Time, loc *time.Location) (model.Term, error) {
	s, en := start.In(loc), end.In(loc)
	nextDay := time.Date(s.Year(), s.Month(), s.Day()+1, 0, 0, 0, 0, loc)
	if en.After(nextDay) {
		return model.Term{}, errors.New("occurrence spans midnight")
	}
	return model.TermFromRange(s, en, loc), nil
}
