package model

import (
	"strings"
	"time"
)

// EventType is the backend code of an event kind. The set is closed.
type EventType string

const (
	TypeExam                 EventType = "0"
	TypeTest                 EventType = "1"
	TypeGenericEvent         EventType = "2"
	TypeClass                EventType = "3"
	TypeOther                EventType = "4"
	TypeRecurringReservation EventType = "5"
)

// AllTypes lists every event type in code order.
var AllTypes = []EventType{
	TypeExam,
	TypeTest,
	TypeGenericEvent,
	TypeClass,
	TypeOther,
	TypeRecurringReservation,
}

var typeNames = map[EventType]string{
	TypeExam:                 "exam",
	TypeTest:                 "test",
	TypeGenericEvent:         "event",
	TypeClass:                "class",
	TypeOther:                "other",
	TypeRecurringReservation: "recurring",
}

func (t EventType) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func (t EventType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "unknown(" + string(t) + ")"
}

// Editable reports whether events of this type can be created or changed
// through reservations. Classes come from the timetable.
func (t EventType) Editable() bool {
	return t.Valid() && t != TypeClass
}

// ParseEventType accepts either a backend code ("0".."5") or a name
// ("exam", "class", ...).
func ParseEventType(s string) (EventType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if EventType(s).Valid() {
		return EventType(s), true
	}
	for t, n := range typeNames {
		if n == s {
			return t, true
		}
	}
	return "", false
}

// Status is the moderation state of a reservation. Irrelevant for classes.
type Status string

const (
	StatusPending  Status = "0"
	StatusAccepted Status = "1"
	StatusRejected Status = "2"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusRejected
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown(" + string(s) + ")"
	}
}

// Kind is the subset of an event that determines how it is drawn.
type Kind struct {
	Type    EventType
	Status  Status
	Visible bool
}

// Event is a reservable occurrence with its full list of terms, as returned
// by the detail resource.
type Event struct {
	ID          string
	URL         string
	Title       string
	Description string
	Type        EventType
	Status      Status
	Visible     bool
	Terms       []Term

	// Read-only detail fields.
	Author    string
	Followers []string
}

func (e Event) Kind() Kind {
	return Kind{Type: e.Type, Status: e.Status, Visible: e.Visible}
}

// Occurrence is a single term of an event as returned by the listing
// resource. The calendar draws one box per occurrence.
type Occurrence struct {
	ID      string
	URL     string
	Title   string
	Type    EventType
	Status  Status
	Visible bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

func (o Occurrence) Kind() Kind {
	return Kind{Type: o.Type, Status: o.Status, Visible: o.Visible}
}

// Range is the visible calendar window, [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// AllRooms is the room filter sentinel meaning "do not filter by room".
const AllRooms = "all"

// Filters is the transient filter state of the calendar. It only affects
// the next fetch.
type Filters struct {
	Room  string
	Query string
	Types []EventType
}

// DefaultFilters shows every room and every event type.
func DefaultFilters() Filters {
	types := make([]EventType, len(AllTypes))
	copy(types, AllTypes)
	return Filters{Room: AllRooms, Types: types}
}

// Active reports whether t is among the active type toggles.
func (f Filters) Active(t EventType) bool {
	for _, x := range f.Types {
		if x == t {
			return true
		}
	}
	return false
}

// Toggle flips a type toggle and returns the updated filters.
func (f Filters) Toggle(t EventType) Filters {
	out := make([]EventType, 0, len(f.Types)+1)
	found := false
	for _, x := range f.Types {
		if x == t {
			found = true
			continue
		}
		out = append(out, x)
	}
	if !found {
		out = append(out, t)
	}
	f.Types = out
	return f
}
