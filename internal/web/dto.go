package web

import (
	"time"

	"roomcal/internal/model"
	"roomcal/internal/style"
)

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events          []eventDTO   `json:"events"`
	Draft           *eventDTO    `json:"draft,omitempty"`
	Types           []typeToggle `json:"types"`
	RangeStart      time.Time    `json:"range_start"`
	RangeEnd        time.Time    `json:"range_end"`
	DisplayTimeZone string       `json:"display_timezone"`
	WeekStart       string       `json:"week_start"`
	// Stale is set when a newer view superseded this request.
	Stale      bool      `json:"stale,omitempty"`
	RenderedAt time.Time `json:"rendered_at"`
}

// typeToggle is the state of one event type filter button.
type typeToggle struct {
	Code   model.EventType `json:"code"`
	Name   string          `json:"name"`
	Active bool            `json:"active"`
}

func toTypeToggles(f model.Filters) []typeToggle {
	out := make([]typeToggle, 0, len(model.AllTypes))
	for _, t := range model.AllTypes {
		out = append(out, typeToggle{Code: t, Name: t.String(), Active: f.Active(t)})
	}
	return out
}

// eventDTO is one rendered calendar entry.
type eventDTO struct {
	ID         string          `json:"id"`
	URL        string          `json:"url,omitempty"`
	Title      string          `json:"title"`
	Type       model.EventType `json:"type"`
	TypeName   string          `json:"type_name"`
	Status     model.Status    `json:"status"`
	StatusName string          `json:"status_name"`
	Visible    bool            `json:"visible"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Style      style.Style     `json:"style"`
}

func toEventDTO(ev style.Styled) eventDTO {
	return eventDTO{
		ID:         ev.ID,
		URL:        ev.URL,
		Title:      ev.Title,
		Type:       ev.Type,
		TypeName:   ev.Type.String(),
		Status:     ev.Status,
		StatusName: ev.Status.String(),
		Visible:    ev.Visible,
		Start:      ev.Start,
		End:        ev.End,
		Style:      ev.Style,
	}
}

func toEventDTOs(events []style.Styled) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventDTO(ev))
	}
	return out
}

// termDTO carries both location fields; mode says which one counts. A room
// of "-" also selects place mode.
type termDTO struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
	Mode  string `json:"mode"`
	Room  string `json:"room"`
	Place string `json:"place"`
}

type formDTO struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Visible     bool            `json:"visible"`
	Type        model.EventType `json:"type"`
	Status      model.Status    `json:"status,omitempty"`
	Terms       []termDTO       `json:"terms"`
	RepeatUntil string          `json:"repeat_until,omitempty"`
}

func toFormDTO(f model.EventForm) *formDTO {
	d := &formDTO{
		Title:       f.Title,
		Description: f.Description,
		Visible:     f.Visible,
		Type:        f.Type,
		Status:      f.Status,
		Terms:       make([]termDTO, 0, len(f.Terms)),
		RepeatUntil: f.RepeatUntil,
	}
	for _, t := range f.Terms {
		d.Terms = append(d.Terms, termDTO{
			Day:   t.Day,
			Start: t.Start,
			End:   t.End,
			Mode:  t.Mode.String(),
			Room:  t.Room,
			Place: t.Place,
		})
	}
	return d
}

// apply replaces the form contents with d.
func (d formDTO) apply(f *model.EventForm) {
	f.Title = d.Title
	f.Description = d.Description
	f.Visible = d.Visible
	f.Type = d.Type
	if d.Status != "" {
		f.Status = d.Status
	}
	f.RepeatUntil = d.RepeatUntil

	terms := make([]model.Term, 0, len(d.Terms))
	for _, td := range d.Terms {
		t := model.Term{Day: td.Day, Start: td.Start, End: td.End, Place: td.Place}
		if td.Room != model.NoRoom {
			t.Room = td.Room
		}
		if td.Mode == model.LocationPlace.String() {
			t.Mode = model.LocationPlace
		} else {
			t.SelectRoom(td.Room)
		}
		terms = append(terms, t)
	}
	f.Terms = terms
}

type draftView struct {
	State   string    `json:"state"`
	Form    *formDTO  `json:"form,omitempty"`
	Overlay *eventDTO `json:"overlay,omitempty"`
}

type editView struct {
	Handled bool     `json:"handled"`
	State   string   `json:"state"`
	Mode    string   `json:"mode,omitempty"`
	ID      string   `json:"id,omitempty"`
	URL     string   `json:"url,omitempty"`
	Author  string   `json:"author,omitempty"`
	Form    *formDTO `json:"form,omitempty"`
}

type selectRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type openRequest struct {
	ID   string          `json:"id"`
	URL  string          `json:"url"`
	Type model.EventType `json:"type"`
	// Mode is "view" or "edit".
	Mode string `json:"mode"`
}
