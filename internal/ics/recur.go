package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
)

// MaxWeeklyTerms caps a weekly series. A semester is about 15 weeks, so the
// cap only stops runaway "until" dates.
const MaxWeeklyTerms = 60

// ExpandWeekly repeats t every week on the same weekday and clock times,
// from t.Day up to and including until (YYYY-MM-DD). The first element is
// t itself.
func ExpandWeekly(t model.Term, until string) ([]model.Term, error) {
	first, err := time.Parse(model.DayLayout, t.Day)
	if err != nil {
		return nil, fmt.Errorf("expand: term day: %w", err)
	}
	last, err := time.Parse(model.DayLayout, until)
	if err != nil {
		return nil, fmt.Errorf("expand: until: %w", err)
	}
	if last.Before(first) {
		return nil, errors.New("expand: until is before the first term")
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: first,
		// Inclusive of the whole last day.
		Until: last.Add(24*time.Hour - time.Second),
		Count: MaxWeeklyTerms + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	days := r.All()
	if len(days) > MaxWeeklyTerms {
		appLog.Warn("expand: weekly series truncated", "first", t.Day, "until", until, "cap", MaxWeeklyTerms)
		days = days[:MaxWeeklyTerms]
	}

	out := make([]model.Term, 0, len(days))
	for _, d := range days {
		term := t
		term.Day = d.Format(model.DayLayout)
		out = append(out, term)
	}
	return out, nil
}
