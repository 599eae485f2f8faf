package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"roomcal/internal/model"
)

// flexString accepts a JSON string or number. The backend is not consistent
// about how it encodes codes and identifiers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// occurrenceDTO is one row of the listing resource.
type occurrenceDTO struct {
	ID      flexString `json:"id"`
	Title   string     `json:"title"`
	Type    flexString `json:"type"`
	Status  flexString `json:"status"`
	Visible bool       `json:"visible"`
	URL     string     `json:"url"`
	Start   string     `json:"start"`
	End     string     `json:"end"`
}

type termDTO struct {
	Day    string      `json:"day"`
	DayAlt string      `json:"day:"` // older detail payloads carry the key with a colon
	Start  string      `json:"start"`
	End    string      `json:"end"`
	Room   *flexString `json:"room"`
	Place  *string     `json:"place"`
}

type eventDTO struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        flexString `json:"type"`
	Status      flexString `json:"status"`
	Visible     bool       `json:"visible"`
	URL         string     `json:"url"`
	Author      string     `json:"author"`
	Emails      []string   `json:"emails"`
	Terms       []termDTO  `json:"terms"`
}

// Naive timestamps are the backend's local time.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

func parseTimestamp(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func (d occurrenceDTO) toModel(loc *time.Location) (model.Occurrence, error) {
	start, err := parseTimestamp(d.Start, loc)
	if err != nil {
		return model.Occurrence{}, err
	}
	end, err := parseTimestamp(d.End, loc)
	if err != nil {
		return model.Occurrence{}, err
	}
	id := string(d.ID)
	if id == "" {
		if n, err := model.ParseEventID(d.URL); err == nil {
			id = strconv.Itoa(n)
		}
	}
	return model.Occurrence{
		ID:      id,
		URL:     d.URL,
		Title:   d.Title,
		Type:    model.EventType(d.Type),
		Status:  model.Status(d.Status),
		Visible: d.Visible,
		Start:   start,
		End:     end,
	}, nil
}

// toModel normalizes terms on load: clocks are cut to HH:MM and the
// location mode follows from whether a room is present.
func (d eventDTO) toModel() (model.Event, error) {
	if d.URL == "" {
		return model.Event{}, fmt.Errorf("event without url")
	}
	ev := model.Event{
		URL:         d.URL,
		Title:       d.Title,
		Description: d.Description,
		Type:        model.EventType(d.Type),
		Status:      model.Status(d.Status),
		Visible:     d.Visible,
		Author:      d.Author,
		Followers:   d.Emails,
		Terms:       make([]model.Term, 0, len(d.Terms)),
	}
	if n, err := model.ParseEventID(d.URL); err == nil {
		ev.ID = strconv.Itoa(n)
	}
	for i, t := range d.Terms {
		day := t.Day
		if day == "" {
			day = t.DayAlt
		}
		if day == "" {
			return model.Event{}, fmt.Errorf("term %d without day", i)
		}
		term := model.Term{
			Day:   day,
			Start: model.TruncateClock(t.Start),
			End:   model.TruncateClock(t.End),
		}
		if t.Place != nil {
			term.Place = *t.Place
		}
		if t.Room != nil && *t.Room != "" {
			term.Mode = model.LocationRoom
			term.Room = string(*t.Room)
		} else {
			term.Mode = model.LocationPlace
		}
		ev.Terms = append(ev.Terms, term)
	}
	return ev, nil
}
