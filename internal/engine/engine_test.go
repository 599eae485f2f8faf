package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/model"
	"roomcal/internal/query"
	"roomcal/internal/style"
)

type fakeAdapter struct {
	mu        sync.Mutex
	renders   [][]style.Styled
	drafts    map[string]style.Styled
	removed   []string
	refetches int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{drafts: map[string]style.Styled{}}
}

func (a *fakeAdapter) Render(events []style.Styled) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renders = append(a.renders, events)
}

func (a *fakeAdapter) AddDraft(ev style.Styled) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drafts[ev.ID] = ev
}

func (a *fakeAdapter) RemoveDraft(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.drafts, id)
	a.removed = append(a.removed, id)
}

func (a *fakeAdapter) Refetch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refetches++
}

type fakeBackend struct {
	mu      sync.Mutex
	events  map[string]model.Event
	creates []model.EventPayload
	updates map[string]model.EventPayload
	deletes []int
	gets    int
	lists   int

	createErr error
	updateErr error
	deleteErr error
	getErr    error

	// block, when set, holds CreateEvent until closed. entered is
	// signalled once the call is in flight.
	block   chan struct{}
	entered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events:  map[string]model.Event{},
		updates: map[string]model.EventPayload{},
	}
}

func (b *fakeBackend) ListTerms(ctx context.Context, q query.Query) ([]model.Occurrence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	return nil, nil
}

func (b *fakeBackend) GetEvent(ctx context.Context, eventURL string) (model.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	if b.getErr != nil {
		return model.Event{}, b.getErr
	}
	ev, ok := b.events[eventURL]
	if !ok {
		return model.Event{}, errors.New("not found")
	}
	return ev, nil
}

func (b *fakeBackend) CreateEvent(ctx context.Context, p model.EventPayload) error {
	if b.block != nil {
		b.entered <- struct{}{}
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return b.createErr
	}
	b.creates = append(b.creates, p)
	return nil
}

func (b *fakeBackend) UpdateEvent(ctx context.Context, eventURL string, p model.EventPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updateErr != nil {
		return b.updateErr
	}
	b.updates[eventURL] = p
	return nil
}

func (b *fakeBackend) DeleteEvent(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deletes = append(b.deletes, id)
	return nil
}

func (b *fakeBackend) requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.creates) + len(b.updates) + len(b.deletes) + b.gets + b.lists
}

// gatedBackend holds every listing until its range is released.
type gatedBackend struct {
	*fakeBackend
	started chan string
	gates   map[string]chan struct{}
	results map[string][]model.Occurrence
}

func (g *gatedBackend) ListTerms(ctx context.Context, q query.Query) ([]model.Occurrence, error) {
	key := q.Start.Format(time.RFC3339)
	g.started <- key
	<-g.gates[key]
	return g.results[key], nil
}

func week(day int) model.Range {
	start := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
	return model.Range{Start: start, End: start.AddDate(0, 0, 7)}
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	r1, r2 := week(4), week(11)
	k1, k2 := r1.Start.Format(time.RFC3339), r2.Start.Format(time.RFC3339)
	g := &gatedBackend{
		fakeBackend: newFakeBackend(),
		started:     make(chan string, 2),
		gates:       map[string]chan struct{}{k1: make(chan struct{}), k2: make(chan struct{})},
		results: map[string][]model.Occurrence{
			k1: {{ID: "a", Type: model.TypeExam, Status: model.StatusAccepted, Start: r1.Start, End: r1.Start.Add(time.Hour)}},
			k2: {{ID: "b", Type: model.TypeTest, Status: model.StatusPending, Start: r2.Start, End: r2.Start.Add(time.Hour)}},
		},
	}
	a := newFakeAdapter()
	e := New(g, a, Options{})
	ctx := context.Background()

	doneA := make(chan bool, 1)
	go func() {
		_, applied := e.ChangeView(ctx, r1, model.DefaultFilters())
		doneA <- applied
	}()
	require.Equal(t, k1, <-g.started)

	doneB := make(chan bool, 1)
	go func() {
		_, applied := e.ChangeView(ctx, r2, model.DefaultFilters())
		doneB <- applied
	}()
	require.Equal(t, k2, <-g.started)

	close(g.gates[k2])
	assert.True(t, <-doneB)
	close(g.gates[k1])
	assert.False(t, <-doneA)

	events := e.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].ID)

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Len(t, a.renders, 1)
	assert.Equal(t, "b", a.renders[0][0].ID)

	view, _, ok := e.View()
	assert.True(t, ok)
	assert.Equal(t, r2, view)
}

func TestChangeViewWithoutTypesRendersEmpty(t *testing.T) {
	b := newFakeBackend()
	a := newFakeAdapter()
	e := New(b, a, Options{})

	events, applied := e.ChangeView(context.Background(), week(4), model.Filters{Room: model.AllRooms})
	assert.True(t, applied)
	assert.Empty(t, events)
	assert.Equal(t, 0, b.requests())
	require.Len(t, a.renders, 1)
	assert.Empty(t, a.renders[0])
}

func TestChangeViewCancelledKeepsLastRender(t *testing.T) {
	b := newFakeBackend()
	a := newFakeAdapter()
	e := New(b, a, Options{})

	_, applied := e.ChangeView(context.Background(), week(4), model.DefaultFilters())
	require.True(t, applied)
	require.Len(t, a.renders, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events, applied := e.ChangeView(ctx, week(11), model.DefaultFilters())
	assert.False(t, applied)
	assert.Nil(t, events)
	assert.Len(t, a.renders, 1)

	// The view still moves, so the next reload fetches it.
	view, _, ok := e.View()
	require.True(t, ok)
	assert.Equal(t, week(11), view)
	assert.True(t, e.Reload(context.Background()))
	assert.Len(t, a.renders, 2)
}

func TestDraftOverlayIsPending(t *testing.T) {
	e := New(newFakeBackend(), newFakeAdapter(), Options{})
	selectMorning(t, e)
	ov, ok := e.Draft().Overlay()
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, ov.Status)
}

func TestReloadBeforeFirstView(t *testing.T) {
	e := New(newFakeBackend(), newFakeAdapter(), Options{})
	assert.False(t, e.Reload(context.Background()))
}

func selectMorning(t *testing.T, e *Engine) {
	t.Helper()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, e.SelectSlot(start, start.Add(time.Hour)))
}

func TestDraftSelectAndCancel(t *testing.T) {
	b := newFakeBackend()
	a := newFakeAdapter()
	e := New(b, a, Options{})

	selectMorning(t, e)
	assert.Equal(t, DraftRangeSelected, e.Draft().State())

	form, ok := e.Draft().Form()
	require.True(t, ok)
	require.Len(t, form.Terms, 1)
	assert.Equal(t, model.Term{Day: "2024-03-04", Start: "10:00", End: "11:00", Mode: model.LocationRoom}, form.Terms[0])

	ov, ok := a.drafts[DraftID]
	require.True(t, ok)
	assert.Equal(t, style.DraftColor, ov.Style.Fill)

	require.NoError(t, e.Draft().Cancel())
	assert.Equal(t, DraftIdle, e.Draft().State())
	assert.Empty(t, a.drafts)
	assert.Equal(t, 0, b.requests())

	// A second cancel and a deselect are no-ops.
	require.NoError(t, e.Draft().Cancel())
	require.NoError(t, e.Deselect())
	assert.Equal(t, []string{DraftID}, a.removed)
}

func TestDraftSelectionInDisplayZone(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	e := New(newFakeBackend(), newFakeAdapter(), Options{Location: loc})

	selectMorning(t, e)
	form, _ := e.Draft().Form()
	assert.Equal(t, "11:00", form.Terms[0].Start)
	assert.Equal(t, "12:00", form.Terms[0].End)
}

func TestDraftNewSelectionSupersedes(t *testing.T) {
	a := newFakeAdapter()
	e := New(newFakeBackend(), a, Options{})

	selectMorning(t, e)
	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	require.NoError(t, e.SelectSlot(start, start.Add(2*time.Hour)))

	assert.Equal(t, []string{DraftID}, a.removed)
	require.Len(t, a.drafts, 1)
	assert.True(t, a.drafts[DraftID].Start.Equal(start))

	form, _ := e.Draft().Form()
	assert.Equal(t, "2024-03-05", form.Terms[0].Day)
}

func TestDraftRejectsEmptyRange(t *testing.T) {
	e := New(newFakeBackend(), newFakeAdapter(), Options{})
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	err := e.SelectSlot(start, start)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, DraftIdle, e.Draft().State())
}

func TestDraftSubmit(t *testing.T) {
	b := newFakeBackend()
	a := newFakeAdapter()
	e := New(b, a, Options{})
	d := e.Draft()

	selectMorning(t, e)
	require.NoError(t, d.Edit(func(f *model.EventForm) {
		f.Title = "  Seminar  "
		f.Terms[0].Place = "typed before choosing a room"
	}))
	require.NoError(t, d.SelectRoom(0, "25"))
	assert.Equal(t, DraftFormOpen, d.State())

	require.NoError(t, d.Submit(context.Background()))

	require.Len(t, b.creates, 1)
	p := b.creates[0]
	assert.Equal(t, "Seminar", p.Title)
	assert.Equal(t, model.TypeGenericEvent, p.Type)
	assert.Empty(t, p.Status)
	require.Len(t, p.Terms, 1)
	require.NotNil(t, p.Terms[0].Room)
	assert.Equal(t, "25", *p.Terms[0].Room)
	assert.Nil(t, p.Terms[0].Place)

	assert.Equal(t, DraftIdle, d.State())
	assert.Empty(t, a.drafts)
	assert.Equal(t, 1, a.refetches)
}

func TestDraftSubmitPlace(t *testing.T) {
	b := newFakeBackend()
	e := New(b, newFakeAdapter(), Options{})
	d := e.Draft()

	selectMorning(t, e)
	require.NoError(t, d.Edit(func(f *model.EventForm) {
		f.Title = "Open day"
		f.Terms[0].Room = "25"
		f.Terms[0].Place = "Main hall"
	}))
	require.NoError(t, d.SelectRoom(0, model.NoRoom))
	require.NoError(t, d.Submit(context.Background()))

	require.Len(t, b.creates, 1)
	term := b.creates[0].Terms[0]
	assert.Nil(t, term.Room)
	require.NotNil(t, term.Place)
	assert.Equal(t, "Main hall", *term.Place)
}

func TestDraftSubmitValidationKeepsForm(t *testing.T) {
	b := newFakeBackend()
	a := newFakeAdapter()
	e := New(b, a, Options{})
	d := e.Draft()

	selectMorning(t, e)
	require.NoError(t, d.Edit(func(f *model.EventForm) { f.Terms[0].Room = "25" }))

	err := d.Submit(context.Background())
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	assert.Equal(t, DraftFormOpen, d.State())
	assert.Empty(t, b.creates)
	assert.Contains(t, a.drafts, DraftID)
	assert.Equal(t, 0, a.refetches)
}

func TestDraftSubmitFailureKeepsForm(t *testing.T) {
	b := newFakeBackend()
	b.createErr = errors.New("boom")
	a := newFakeAdapter()
	e := New(b, a, Options{})
	d := e.Draft()

	selectMorning(t, e)
	require.NoError(t, d.Edit(func(f *model.EventForm) {
		f.Title = "Seminar"
		f.Terms[0].Room = "25"
	}))

	err := d.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, DraftFormOpen, d.State())
	form, ok := d.Form()
	require.True(t, ok)
	assert.Equal(t, "Seminar", form.Title)
	assert.Contains(t, a.drafts, DraftID)
	assert.Equal(t, 0, a.refetches)
}

func TestDraftBusyWhileSubmitting(t *testing.T) {
	b := newFakeBackend()
	b.block = make(chan struct{})
	b.entered = make(chan struct{}, 1)
	a := newFakeAdapter()
	e := New(b, a, Options{})
	d := e.Draft()

	selectMorning(t, e)
	require.NoError(t, d.Edit(func(f *model.EventForm) {
		f.Title = "Seminar"
		f.Terms[0].Room = "25"
	}))

	done := make(chan error, 1)
	go func() { done <- d.Submit(context.Background()) }()
	<-b.entered

	assert.Equal(t, DraftSubmitting, d.State())
	assert.ErrorIs(t, d.Cancel(), ErrBusy)
	assert.ErrorIs(t, d.Submit(context.Background()), ErrBusy)
	assert.ErrorIs(t, d.Edit(func(*model.EventForm) {}), ErrBusy)
	start := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, e.SelectSlot(start, start.Add(time.Hour)), ErrBusy)

	close(b.block)
	require.NoError(t, <-done)
	assert.Len(t, b.creates, 1)
	assert.Equal(t, 1, a.refetches)
}

func TestDraftRecurringExpandsWeekly(t *testing.T) {
	b := newFakeBackend()
	e := New(b, newFakeAdapter(), Options{})
	d := e.Draft()

	selectMorning(t, e)
	require.NoError(t, d.Edit(func(f *model.EventForm) {
		f.Title = "Lab"
		f.Type = model.TypeRecurringReservation
		f.Terms[0].Room = "104"
		f.RepeatUntil = "2024-03-18"
	}))
	require.NoError(t, d.Submit(context.Background()))

	require.Len(t, b.creates, 1)
	terms := b.creates[0].Terms
	require.Len(t, terms, 3)
	assert.Equal(t, "2024-03-04", terms[0].Day)
	assert.Equal(t, "2024-03-11", terms[1].Day)
	assert.Equal(t, "2024-03-18", terms[2].Day)
}

func TestDraftRepeatRequiresRecurringType(t *testing.T) {
	b := newFakeBackend()
	e := New(b, newFakeAdapter(), Options{})
	d := e.Draft()

	selectMorning(t, e)
	require.NoError(t, d.Edit(func(f *model.EventForm) {
		f.Title = "Lab"
		f.Terms[0].Room = "104"
		f.RepeatUntil = "2024-03-18"
	}))
	assert.ErrorIs(t, d.Submit(context.Background()), model.ErrValidation)
	assert.Empty(t, b.creates)
}

func TestDraftOpenBlank(t *testing.T) {
	a := newFakeAdapter()
	e := New(newFakeBackend(), a, Options{})
	d := e.Draft()

	now := time.Date(2024, 5, 17, 23, 30, 0, 0, time.UTC)
	require.NoError(t, d.OpenBlank(now))
	assert.Equal(t, DraftFormOpen, d.State())

	form, ok := d.Form()
	require.True(t, ok)
	require.Len(t, form.Terms, 1)
	assert.Equal(t, "2024-05-17", form.Terms[0].Day)
	assert.Empty(t, form.Title)
	assert.Empty(t, a.drafts)
}

func TestDraftEditRequiresDraft(t *testing.T) {
	e := New(newFakeBackend(), newFakeAdapter(), Options{})
	assert.ErrorIs(t, e.Draft().Edit(func(*model.EventForm) {}), ErrInvalidState)
	assert.ErrorIs(t, e.Draft().Submit(context.Background()), ErrInvalidState)
}

func seminar(u string) model.Event {
	return model.Event{
		ID:      "7",
		URL:     u,
		Title:   "Seminar",
		Type:    model.TypeGenericEvent,
		Status:  model.StatusPending,
		Visible: true,
		Terms: []model.Term{
			{Day: "2024-03-04", Start: "10:00", End: "11:00", Mode: model.LocationRoom, Room: "25"},
		},
	}
}

func TestClickOnTimetableIsDeclined(t *testing.T) {
	b := newFakeBackend()
	e := New(b, newFakeAdapter(), Options{})

	handled, err := e.ClickEvent(context.Background(), Click{ID: "3", URL: "/courses/course/algebra/", Type: model.TypeGenericEvent}, ModeEdit)
	require.NoError(t, err)
	assert.False(t, handled)

	handled, err = e.ClickEvent(context.Background(), Click{ID: "4", URL: "/events/4/", Type: model.TypeClass}, ModeEdit)
	require.NoError(t, err)
	assert.False(t, handled)

	assert.Equal(t, EditIdle, e.Edit().State())
	assert.Equal(t, 0, b.gets)
}

func TestEditOpenAndSubmit(t *testing.T) {
	b := newFakeBackend()
	b.events["/events/7/"] = seminar("/events/7/")
	a := newFakeAdapter()
	e := New(b, a, Options{})
	c := e.Edit()

	handled, err := e.ClickEvent(context.Background(), Click{ID: "7", URL: "/events/7/", Type: model.TypeGenericEvent}, ModeEdit)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, EditFormOpen, c.State())
	assert.Equal(t, ModeEdit, c.Mode())

	require.NoError(t, c.Edit(func(f *model.EventForm) {
		f.Title = "Seminar (moved)"
		f.Status = model.StatusAccepted
	}))
	require.NoError(t, c.SelectRoom(0, "104"))
	require.NoError(t, c.Submit(context.Background()))

	p, ok := b.updates["/events/7/"]
	require.True(t, ok)
	assert.Equal(t, "Seminar (moved)", p.Title)
	assert.Equal(t, model.StatusAccepted, p.Status)
	require.NotNil(t, p.Terms[0].Room)
	assert.Equal(t, "104", *p.Terms[0].Room)

	assert.Equal(t, EditIdle, c.State())
	assert.Equal(t, 1, a.refetches)
}

func TestEditViewModeIsReadOnly(t *testing.T) {
	b := newFakeBackend()
	b.events["/events/7/"] = seminar("/events/7/")
	e := New(b, newFakeAdapter(), Options{})
	c := e.Edit()

	_, err := c.Open(context.Background(), Click{ID: "7", URL: "/events/7/"}, ModeView)
	require.NoError(t, err)

	ev, ok := c.Event()
	require.True(t, ok)
	assert.Equal(t, "Seminar", ev.Title)

	assert.ErrorIs(t, c.Edit(func(*model.EventForm) {}), ErrReadOnly)
	assert.ErrorIs(t, c.Submit(context.Background()), ErrReadOnly)
	assert.ErrorIs(t, c.RequestDelete(), ErrReadOnly)
	require.NoError(t, c.Close())
	assert.Equal(t, EditIdle, c.State())
}

func TestEditLoadFailure(t *testing.T) {
	b := newFakeBackend()
	b.getErr = errors.New("gone")
	e := New(b, newFakeAdapter(), Options{})

	handled, err := e.Edit().Open(context.Background(), Click{ID: "7", URL: "/events/7/"}, ModeEdit)
	assert.True(t, handled)
	assert.Error(t, err)
	assert.Equal(t, EditIdle, e.Edit().State())
}

func TestEditUpdateFailurePreservesForm(t *testing.T) {
	b := newFakeBackend()
	b.events["/events/7/"] = seminar("/events/7/")
	b.updateErr = errors.New("server error")
	a := newFakeAdapter()
	e := New(b, a, Options{})
	c := e.Edit()

	_, err := c.Open(context.Background(), Click{ID: "7", URL: "/events/7/"}, ModeEdit)
	require.NoError(t, err)
	require.NoError(t, c.Edit(func(f *model.EventForm) { f.Title = "Renamed" }))

	require.Error(t, c.Submit(context.Background()))
	assert.Equal(t, EditFormOpen, c.State())
	form, ok := c.Form()
	require.True(t, ok)
	assert.Equal(t, "Renamed", form.Title)
	assert.Equal(t, 0, a.refetches)
}

func TestEditValidationKeepsForm(t *testing.T) {
	b := newFakeBackend()
	b.events["/events/7/"] = seminar("/events/7/")
	e := New(b, newFakeAdapter(), Options{})
	c := e.Edit()

	_, err := c.Open(context.Background(), Click{ID: "7", URL: "/events/7/"}, ModeEdit)
	require.NoError(t, err)
	require.NoError(t, c.SelectRoom(0, model.NoRoom))

	err = c.Submit(context.Background())
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "terms[0].place", verr.Field)
	assert.Equal(t, EditFormOpen, c.State())
	assert.Empty(t, b.updates)
}

func TestDeleteFlow(t *testing.T) {
	b := newFakeBackend()
	b.events["https://zapisy.example/events/42/"] = seminar("https://zapisy.example/events/42/")
	a := newFakeAdapter()
	e := New(b, a, Options{})
	c := e.Edit()

	_, err := c.Open(context.Background(), Click{ID: "42", URL: "https://zapisy.example/events/42/"}, ModeEdit)
	require.NoError(t, err)

	assert.ErrorIs(t, c.ConfirmDelete(context.Background()), ErrInvalidState)
	require.NoError(t, c.RequestDelete())
	require.NoError(t, c.CancelDelete())
	assert.Equal(t, EditFormOpen, c.State())

	require.NoError(t, c.RequestDelete())
	require.NoError(t, c.ConfirmDelete(context.Background()))

	assert.Equal(t, []int{42}, b.deletes)
	assert.Equal(t, 1, a.refetches)
	assert.Equal(t, EditIdle, c.State())
}

func TestDeleteFailureReturnsIdle(t *testing.T) {
	b := newFakeBackend()
	b.events["/events/42/"] = seminar("/events/42/")
	b.deleteErr = errors.New("forbidden")
	a := newFakeAdapter()
	e := New(b, a, Options{})
	c := e.Edit()

	_, err := c.Open(context.Background(), Click{ID: "42", URL: "/events/42/"}, ModeEdit)
	require.NoError(t, err)
	require.NoError(t, c.RequestDelete())

	err = c.ConfirmDelete(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
	assert.Equal(t, EditIdle, c.State())
	assert.Equal(t, 0, a.refetches)
}

func TestCloseIdleIsNoop(t *testing.T) {
	e := New(newFakeBackend(), newFakeAdapter(), Options{})
	require.NoError(t, e.Edit().Close())
	assert.Equal(t, EditIdle, e.Edit().State())
}
