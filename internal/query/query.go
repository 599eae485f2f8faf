package query

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"roomcal/internal/model"
)

// TimeLayout is the instant format the listing resource parses. Instants
// are always sent in UTC.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Query holds the parameters of one listing request.
type Query struct {
	Start       time.Time
	End         time.Time
	Room        string // empty when every room is requested
	TitleAuthor string
	Types       []model.EventType
}

// Build turns the visible range and filter state into a listing query.
// The second result is false when nothing should be fetched at all: an
// empty set of active types means "show nothing", not "show everything".
func Build(r model.Range, f model.Filters) (Query, bool) {
	types := activeTypes(f.Types)
	if len(types) == 0 {
		return Query{}, false
	}

	q := Query{
		Start: r.Start.UTC(),
		End:   r.End.UTC(),
		Types: types,
	}
	if room := strings.TrimSpace(f.Room); room != "" && room != model.AllRooms {
		q.Room = room
	}
	if strings.TrimSpace(f.Query) != "" {
		q.TitleAuthor = f.Query
	}
	return q, true
}

// activeTypes de-duplicates and sorts toggles so equal filter states give
// equal queries.
func activeTypes(in []model.EventType) []model.EventType {
	seen := make(map[model.EventType]struct{}, len(in))
	out := make([]model.EventType, 0, len(in))
	for _, t := range in {
		if !t.Valid() {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Values encodes the query as listing parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("start", q.Start.UTC().Format(TimeLayout))
	v.Set("end", q.End.UTC().Format(TimeLayout))
	if q.Room != "" {
		v.Set("rooms", q.Room)
	}
	if q.TitleAuthor != "" {
		v.Set("title_author", q.TitleAuthor)
	}
	for _, t := range q.Types {
		v.Add("types", string(t))
	}
	return v
}
