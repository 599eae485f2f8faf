package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareTermsExclusivity(t *testing.T) {
	terms := []Term{
		{Day: "2024-03-04", Start: "10:00", End: "11:00", Mode: LocationRoom, Room: "25", Place: "left over text"},
		{Day: "2024-03-05", Start: "12:00:00", End: "13:30:00", Mode: LocationPlace, Room: "104", Place: " Aula "},
	}

	got, err := PrepareTerms(terms)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, p := range got {
		hasRoom := p.Room != nil
		hasPlace := p.Place != nil
		assert.True(t, hasRoom != hasPlace, "term %d must carry exactly one location", i)
	}

	require.NotNil(t, got[0].Room)
	assert.Equal(t, "25", *got[0].Room)
	require.NotNil(t, got[1].Place)
	assert.Equal(t, "Aula", *got[1].Place)
	assert.Equal(t, "12:00", got[1].Start)
	assert.Equal(t, "13:30", got[1].End)
}

func TestPrepareTermsValidation(t *testing.T) {
	base := Term{Day: "2024-03-04", Start: "10:00", End: "11:00", Mode: LocationRoom, Room: "25"}

	tests := []struct {
		name  string
		terms func() []Term
		field string
	}{
		{"no terms", func() []Term { return nil }, "terms"},
		{"bad day", func() []Term { t := base; t.Day = "04.03.2024"; return []Term{t} }, "terms[0].day"},
		{"bad start", func() []Term { t := base; t.Start = "ten"; return []Term{t} }, "terms[0].start"},
		{"end before start", func() []Term { t := base; t.End = "09:00"; return []Term{t} }, "terms[0].end"},
		{"empty interval", func() []Term { t := base; t.End = "10:00"; return []Term{t} }, "terms[0].end"},
		{"room missing", func() []Term { t := base; t.Room = " "; return []Term{t} }, "terms[0].room"},
		{"sentinel as room", func() []Term { t := base; t.Room = NoRoom; return []Term{t} }, "terms[0].room"},
		{"place missing", func() []Term { t := base; t.Mode = LocationPlace; t.Place = ""; return []Term{t} }, "terms[0].place"},
		{"second term", func() []Term { t := base; t.Mode = LocationPlace; return []Term{base, t} }, "terms[1].place"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareTerms(tt.terms())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSelectRoomSentinel(t *testing.T) {
	term := Term{Mode: LocationRoom, Room: "25", Place: "Hall"}

	term.SelectRoom(NoRoom)
	assert.Equal(t, LocationPlace, term.Mode)
	assert.Equal(t, "Hall", term.Place)

	term.SelectRoom("104")
	assert.Equal(t, LocationRoom, term.Mode)
	assert.Equal(t, "104", term.Room)
}

func TestTermFromRange(t *testing.T) {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)

	term := TermFromRange(start, end, time.UTC)
	assert.Equal(t, Term{Day: "2024-03-04", Start: "10:00", End: "11:00", Mode: LocationRoom}, term)

	// Crossing midnight is clipped to the first day.
	late := TermFromRange(time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC), time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, "2024-03-04", late.Day)
	assert.Equal(t, "23:59", late.End)
}

func TestTruncateClock(t *testing.T) {
	assert.Equal(t, "10:15", TruncateClock("10:15:00"))
	assert.Equal(t, "10:15", TruncateClock("10:15:00.000000"))
	assert.Equal(t, "10:15", TruncateClock("10:15"))
	assert.Equal(t, "", TruncateClock(" "))
}

func TestFormPayload(t *testing.T) {
	form := EventForm{
		Title:   "  Seminar  ",
		Type:    TypeGenericEvent,
		Status:  StatusAccepted,
		Visible: true,
		Terms:   []Term{{Day: "2024-03-04", Start: "10:00", End: "11:00", Room: "25"}},
	}

	p, err := form.Payload(false)
	require.NoError(t, err)
	assert.Equal(t, "Seminar", p.Title)
	assert.Empty(t, p.Status)

	p, err = form.Payload(true)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, p.Status)

	form.Title = ""
	_, err = form.Payload(false)
	assert.ErrorIs(t, err, ErrValidation)

	form.Title = "Lecture"
	form.Type = TypeClass
	_, err = form.Payload(false)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
}

func TestParseEventID(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"/events/42/", 42, true},
		{"https://zapisy.example/events/7", 7, true},
		{"/events/42/?edit=1", 42, true},
		{"/events/", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseEventID(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestIsTimetableURL(t *testing.T) {
	assert.True(t, IsTimetableURL("/course/algorithms-2024/"))
	assert.True(t, IsTimetableURL("https://zapisy.example/courses/algorithms/"))
	assert.False(t, IsTimetableURL("/events/42/"))
}

func TestFiltersToggle(t *testing.T) {
	f := DefaultFilters()
	assert.Equal(t, AllRooms, f.Room)
	assert.Len(t, f.Types, len(AllTypes))

	f = f.Toggle(TypeClass)
	assert.False(t, f.Active(TypeClass))
	f = f.Toggle(TypeClass)
	assert.True(t, f.Active(TypeClass))
}

func TestParseEventType(t *testing.T) {
	got, ok := ParseEventType("exam")
	require.True(t, ok)
	assert.Equal(t, TypeExam, got)

	got, ok = ParseEventType("5")
	require.True(t, ok)
	assert.Equal(t, TypeRecurringReservation, got)

	_, ok = ParseEventType("party")
	assert.False(t, ok)
	assert.False(t, TypeClass.Editable())
	assert.True(t, TypeExam.Editable())
}
