package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/model"
)

func week() model.Range {
	warsaw := time.FixedZone("CET", 3600)
	return model.Range{
		Start: time.Date(2024, 3, 4, 0, 0, 0, 0, warsaw),
		End:   time.Date(2024, 3, 11, 0, 0, 0, 0, warsaw),
	}
}

func TestEmptyTypesMeansNoQuery(t *testing.T) {
	_, ok := Build(week(), model.Filters{Room: model.AllRooms, Types: []model.EventType{}})
	assert.False(t, ok)

	_, ok = Build(week(), model.Filters{Room: model.AllRooms})
	assert.False(t, ok)

	_, ok = Build(week(), model.Filters{Types: []model.EventType{"bogus"}})
	assert.False(t, ok)
}

func TestAllRoomsOmitsRooms(t *testing.T) {
	q, ok := Build(week(), model.DefaultFilters())
	require.True(t, ok)
	v := q.Values()
	_, has := v["rooms"]
	assert.False(t, has)

	f := model.DefaultFilters()
	f.Room = "25"
	q, ok = Build(week(), f)
	require.True(t, ok)
	assert.Equal(t, []string{"25"}, q.Values()["rooms"])
}

func TestRangeSerializedInUTC(t *testing.T) {
	q, ok := Build(week(), model.DefaultFilters())
	require.True(t, ok)
	v := q.Values()
	assert.Equal(t, "2024-03-03T23:00:00.000Z", v.Get("start"))
	assert.Equal(t, "2024-03-10T23:00:00.000Z", v.Get("end"))
}

func TestFreeText(t *testing.T) {
	f := model.DefaultFilters()
	f.Query = "   "
	q, _ := Build(week(), f)
	_, has := q.Values()["title_author"]
	assert.False(t, has)

	f.Query = " Jan Kowalski"
	q, _ = Build(week(), f)
	assert.Equal(t, " Jan Kowalski", q.Values().Get("title_author"))
}

func TestTypesAreSortedAndDeduplicated(t *testing.T) {
	f := model.Filters{Room: model.AllRooms, Types: []model.EventType{model.TypeOther, model.TypeExam, model.TypeOther}}
	q, ok := Build(week(), f)
	require.True(t, ok)
	assert.Equal(t, []string{"0", "4"}, q.Values()["types"])
}

func TestBuildIsDeterministic(t *testing.T) {
	f := model.Filters{Room: "104", Query: "exam", Types: []model.EventType{model.TypeTest, model.TypeExam}}
	a, _ := Build(week(), f)
	b, _ := Build(week(), f)
	assert.Equal(t, a, b)
	assert.Equal(t, a.Values().Encode(), b.Values().Encode())
}
