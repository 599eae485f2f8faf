package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DayLayout   = "2006-01-02"
	ClockLayout = "15:04"
)

// NoRoom is the room choice that switches a term to a free-text place.
const NoRoom = "-"

// LocationMode selects which location field of a term is authoritative.
type LocationMode int

const (
	LocationRoom LocationMode = iota
	LocationPlace
)

func (m LocationMode) String() string {
	if m == LocationPlace {
		return "place"
	}
	return "room"
}

// Term is one contiguous span of an event on a single day, [Start, End).
// While a form is being edited both Room and Place may hold text; Mode
// decides which one is submitted.
type Term struct {
	Day   string // YYYY-MM-DD
	Start string // HH:MM
	End   string // HH:MM
	Mode  LocationMode
	Room  string
	Place string
}

// SelectRoom applies a room choice. NoRoom switches to place mode and keeps
// whatever place text was typed.
func (t *Term) SelectRoom(room string) {
	if room == NoRoom {
		t.Mode = LocationPlace
		return
	}
	t.Mode = LocationRoom
	t.Room = room
}

// TermFromRange builds the default term for a selected calendar range in loc.
// A range that crosses midnight is clipped to the end of the first day.
func TermFromRange(start, end time.Time, loc *time.Location) Term {
	if loc == nil {
		loc = time.UTC
	}
	s := start.In(loc)
	e := end.In(loc)
	endClock := e.Format(ClockLayout)
	if s.Format(DayLayout) != e.Format(DayLayout) {
		endClock = "23:59"
	}
	return Term{
		Day:   s.Format(DayLayout),
		Start: s.Format(ClockLayout),
		End:   endClock,
		Mode:  LocationRoom,
	}
}

// TruncateClock normalizes a backend clock value to HH:MM, dropping seconds
// and fractions ("10:15:00" -> "10:15").
func TruncateClock(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 5 && v[2] == ':' && v[5] == ':' {
		return v[:5]
	}
	return v
}

// TermPayload is the wire form of a prepared term. Exactly one of Room and
// Place is set.
type TermPayload struct {
	Day   string  `json:"day"`
	Start string  `json:"start"`
	End   string  `json:"end"`
	Room  *string `json:"room,omitempty"`
	Place *string `json:"place,omitempty"`
}

// EventPayload is the body of create and update requests.
type EventPayload struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Visible     bool          `json:"visible"`
	Type        EventType     `json:"type"`
	Status      Status        `json:"status,omitempty"`
	Terms       []TermPayload `json:"terms"`
}

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError points at the offending form field, e.g. "terms[1].place".
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PrepareTerms validates terms and converts them to their wire form. The
// location field that is not selected is stripped, so every returned term
// carries exactly one of room or place. Create, update and multi-term flows
// all go through here.
func PrepareTerms(terms []Term) ([]TermPayload, error) {
	if len(terms) == 0 {
		return nil, invalid("terms", "at least one term is required")
	}
	out := make([]TermPayload, 0, len(terms))
	for i, t := range terms {
		p, err := prepareTerm(t, fmt.Sprintf("terms[%d]", i))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func prepareTerm(t Term, field string) (TermPayload, error) {
	day := strings.TrimSpace(t.Day)
	if _, err := time.Parse(DayLayout, day); err != nil {
		return TermPayload{}, invalid(field+".day", "expected YYYY-MM-DD")
	}
	start := TruncateClock(t.Start)
	end := TruncateClock(t.End)
	st, err := time.Parse(ClockLayout, start)
	if err != nil {
		return TermPayload{}, invalid(field+".start", "expected HH:MM")
	}
	et, err := time.Parse(ClockLayout, end)
	if err != nil {
		return TermPayload{}, invalid(field+".end", "expected HH:MM")
	}
	if !st.Before(et) {
		return TermPayload{}, invalid(field+".end", "must be after start")
	}

	p := TermPayload{Day: day, Start: start, End: end}
	switch t.Mode {
	case LocationRoom:
		room := strings.TrimSpace(t.Room)
		if room == "" || room == NoRoom {
			return TermPayload{}, invalid(field+".room", "room is required")
		}
		p.Room = &room
	case LocationPlace:
		place := strings.TrimSpace(t.Place)
		if place == "" {
			return TermPayload{}, invalid(field+".place", "place is required")
		}
		p.Place = &place
	default:
		return TermPayload{}, invalid(field, "unknown location mode")
	}
	return p, nil
}

// EventForm is the editable state of the create and edit surfaces.
type EventForm struct {
	Title       string
	Description string
	Visible     bool
	Type        EventType
	Status      Status
	Terms       []Term

	// RepeatUntil (YYYY-MM-DD) repeats every term weekly up to and
	// including that day. Only used by recurring reservations on create.
	RepeatUntil string
}

// FormFromEvent loads an event into an edit form. Terms arrive already
// normalized by the backend decoder.
func FormFromEvent(e Event) EventForm {
	terms := make([]Term, len(e.Terms))
	copy(terms, e.Terms)
	return EventForm{
		Title:       e.Title,
		Description: e.Description,
		Visible:     e.Visible,
		Type:        e.Type,
		Status:      e.Status,
		Terms:       terms,
	}
}

// Payload validates the form and returns the request body. withStatus adds
// the status field used by updates.
func (f EventForm) Payload(withStatus bool) (EventPayload, error) {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return EventPayload{}, invalid("title", "title is required")
	}
	if !f.Type.Editable() {
		return EventPayload{}, invalid("type", "type cannot be reserved")
	}
	terms, err := PrepareTerms(f.Terms)
	if err != nil {
		return EventPayload{}, err
	}
	p := EventPayload{
		Title:       title,
		Description: f.Description,
		Visible:     f.Visible,
		Type:        f.Type,
		Terms:       terms,
	}
	if withStatus {
		if !f.Status.Valid() {
			return EventPayload{}, invalid("status", "unknown status")
		}
		p.Status = f.Status
	}
	return p, nil
}

// Clone returns a deep copy so callers can hand out forms without sharing
// the terms slice.
func (f EventForm) Clone() EventForm {
	terms := make([]Term, len(f.Terms))
	copy(terms, f.Terms)
	f.Terms = terms
	return f
}

// ParseEventID extracts the numeric identifier embedded in an event URL,
// e.g. "/events/42/" -> 42. The last numeric path segment wins.
func ParseEventID(u string) (int, error) {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	parts := strings.Split(u, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		if n, err := strconv.Atoi(parts[i]); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no event id in url %q", u)
}

// IsTimetableURL reports whether a URL points at a course page rather than
// a reservation. Such events come from the timetable and are read-only.
func IsTimetableURL(u string) bool {
	return strings.Contains(u, "/course/") || strings.Contains(u, "/courses/")
}
