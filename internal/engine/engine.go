// Package engine keeps a calendar view in sync with the reservation backend
// and drives the create and edit flows of reservations.
//
// An Engine is built once per calendar. The adapter that renders the
// calendar feeds it signals (view changes, slot selections, event clicks)
// and receives rendered events, the draft overlay and refetch requests back.
package engine

import (
	"context"
	"sync"
	"time"

	"roomcal/internal/fetcher"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/style"
)

// Backend is everything the engine needs from the reservation server.
type Backend interface {
	fetcher.Lister
	GetEvent(ctx context.Context, eventURL string) (model.Event, error)
	CreateEvent(ctx context.Context, p model.EventPayload) error
	UpdateEvent(ctx context.Context, eventURL string, p model.EventPayload) error
	DeleteEvent(ctx context.Context, id int) error
}

// Adapter is the rendering side of the calendar.
//
// The engine calls these methods while holding its own locks, so
// implementations must not call back into the engine synchronously.
// Refetch in particular should schedule the refetch, not perform it.
type Adapter interface {
	// Render replaces the rendered event set.
	Render(events []style.Styled)
	// AddDraft shows the temporary overlay of an event being created.
	AddDraft(ev style.Styled)
	// RemoveDraft hides the overlay with the given id. Removing an absent
	// overlay is a no-op.
	RemoveDraft(id string)
	// Refetch asks the adapter to reload its current view.
	Refetch()
}

// Options configures an Engine.
type Options struct {
	// Location is the display timezone used for selections and form
	// defaults. Nil means UTC.
	Location *time.Location
}

// Engine owns the adapter reference, the rendered event list and both
// controllers.
type Engine struct {
	fetch   *fetcher.Fetcher
	adapter Adapter

	mu      sync.Mutex
	issued  uint64
	events  []style.Styled
	view    model.Range
	filters model.Filters
	hasView bool

	draft *DraftController
	edit  *EditController
}

func New(b Backend, a Adapter, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{
		fetch:   fetcher.New(b),
		adapter: a,
		events:  []style.Styled{},
		draft:   newDraftController(b, a, opts.Location),
		edit:    newEditController(b, a),
	}
}

// ChangeView fetches the events for a new range or filter state. Each call
// takes the next sequence number; when its result arrives after a newer
// call has been issued it is discarded and nothing is rendered. The second
// result reports whether this call's events were applied.
func (e *Engine) ChangeView(ctx context.Context, r model.Range, f model.Filters) ([]style.Styled, bool) {
	e.mu.Lock()
	e.issued++
	seq := e.issued
	e.view, e.filters, e.hasView = r, f, true
	e.mu.Unlock()

	events := e.fetch.Fetch(ctx, r, f)

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.issued {
		appLog.Debug("discarding stale fetch", "seq", seq, "latest", e.issued)
		return nil, false
	}
	// A cancelled fetch says nothing about the view; keep the last render.
	if ctx.Err() != nil {
		appLog.Debug("discarding cancelled fetch", "seq", seq, "err", ctx.Err())
		return nil, false
	}
	e.events = events
	e.adapter.Render(events)
	return events, true
}

// Reload repeats the most recently requested view. It is a no-op before
// the first ChangeView.
func (e *Engine) Reload(ctx context.Context) bool {
	r, f, ok := e.View()
	if !ok {
		return false
	}
	_, applied := e.ChangeView(ctx, r, f)
	return applied
}

// View returns the most recently requested range and filters.
func (e *Engine) View() (model.Range, model.Filters, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view, e.filters, e.hasView
}

// Events returns a copy of the last applied event list.
func (e *Engine) Events() []style.Styled {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]style.Styled, len(e.events))
	copy(out, e.events)
	return out
}

// SelectSlot routes a slot selection into the draft flow.
func (e *Engine) SelectSlot(start, end time.Time) error {
	return e.draft.SelectRange(start, end)
}

// Deselect routes the adapter's unselect signal into the draft flow.
func (e *Engine) Deselect() error {
	return e.draft.Deselect()
}

// ClickEvent routes an event click into the edit flow. handled is false
// when the engine declines the click and the adapter should let its
// default action (e.g. following the link) proceed.
func (e *Engine) ClickEvent(ctx context.Context, c Click, mode Mode) (handled bool, err error) {
	return e.edit.Open(ctx, c, mode)
}

func (e *Engine) Draft() *DraftController { return e.draft }

func (e *Engine) Edit() *EditController { return e.edit }
