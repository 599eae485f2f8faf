package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
)

type EditState int

const (
	EditIdle EditState = iota
	EditLoading
	EditFormOpen
	EditSubmitting
	EditDeleteRequested
	EditDeleting
)

func (s EditState) String() string {
	switch s {
	case EditLoading:
		return "loading"
	case EditFormOpen:
		return "form_open"
	case EditSubmitting:
		return "submitting"
	case EditDeleteRequested:
		return "delete_requested"
	case EditDeleting:
		return "deleting"
	default:
		return "idle"
	}
}

// busy reports whether a request is in flight.
func (s EditState) busy() bool {
	return s == EditLoading || s == EditSubmitting || s == EditDeleting
}

// Mode is decided by the caller's permissions; the controller only
// enforces it.
type Mode int

const (
	ModeView Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "view"
}

// Click is what the adapter knows about a clicked event.
type Click struct {
	ID   string
	URL  string
	Type model.EventType
}

// timetable reports whether the click targets a read-only timetable entry.
func (c Click) timetable() bool {
	return c.Type == model.TypeClass || model.IsTimetableURL(c.URL)
}

// Editor is the backend surface of the edit flow.
type Editor interface {
	GetEvent(ctx context.Context, eventURL string) (model.Event, error)
	UpdateEvent(ctx context.Context, eventURL string, p model.EventPayload) error
	DeleteEvent(ctx context.Context, id int) error
}

// EditController drives viewing, updating and deleting an existing
// reservation.
type EditController struct {
	backend Editor
	adapter Adapter

	mu    sync.Mutex
	state EditState
	mode  Mode
	event model.Event
	form  model.EventForm
}

func newEditController(b Editor, a Adapter) *EditController {
	return &EditController{backend: b, adapter: a}
}

func (c *EditController) State() EditState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *EditController) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Event returns the loaded event. ok is false when nothing is open.
func (c *EditController) Event() (ev model.Event, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open() {
		return model.Event{}, false
	}
	return c.event, true
}

// Form returns a copy of the form being edited.
func (c *EditController) Form() (form model.EventForm, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open() {
		return model.EventForm{}, false
	}
	return c.form.Clone(), true
}

func (c *EditController) open() bool {
	return c.state != EditIdle && c.state != EditLoading
}

// Open loads the clicked event into the form. Timetable events are
// declined with handled == false and the controller stays where it was.
// An event already open without a request in flight is replaced.
func (c *EditController) Open(ctx context.Context, click Click, mode Mode) (handled bool, err error) {
	if click.ID == DraftID || click.timetable() {
		appLog.Debug("event click declined", "id", click.ID, "type", click.Type)
		return false, nil
	}
	if click.URL == "" {
		return true, &model.ValidationError{Field: "url", Reason: "event has no url"}
	}

	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return true, ErrBusy
	}
	c.state = EditLoading
	c.event = model.Event{}
	c.form = model.EventForm{}
	c.mu.Unlock()

	ev, err := c.backend.GetEvent(ctx, click.URL)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = EditIdle
		appLog.Error("load event failed", err, "url", click.URL)
		return true, fmt.Errorf("load event: %w", err)
	}
	if ev.Type == model.TypeClass {
		c.state = EditIdle
		return false, nil
	}
	if ev.URL == "" {
		ev.URL = click.URL
	}
	c.event = ev
	c.form = model.FormFromEvent(ev)
	c.mode = mode
	c.state = EditFormOpen
	return true, nil
}

// Edit applies fn to the form. Only allowed in edit mode.
func (c *EditController) Edit(fn func(*model.EventForm)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	fn(&c.form)
	return nil
}

// SelectRoom applies a room choice to term i.
func (c *EditController) SelectRoom(i int, room string) error {
	return c.Edit(func(f *model.EventForm) {
		if i >= 0 && i < len(f.Terms) {
			f.Terms[i].SelectRoom(room)
		}
	})
}

func (c *EditController) editableLocked() error {
	if c.state.busy() {
		return ErrBusy
	}
	if c.state != EditFormOpen {
		return ErrInvalidState
	}
	if c.mode != ModeEdit {
		return ErrReadOnly
	}
	return nil
}

// Submit validates every term and updates the event. On failure the form
// stays open with its data.
func (c *EditController) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	payload, err := c.form.Payload(true)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	target := c.event.URL
	c.state = EditSubmitting
	c.mu.Unlock()

	err = c.backend.UpdateEvent(ctx, target, payload)

	c.mu.Lock()
	if err != nil {
		c.state = EditFormOpen
		c.mu.Unlock()
		appLog.Error("update reservation failed", err, "url", target)
		return fmt.Errorf("update reservation: %w", err)
	}
	c.resetLocked()
	c.mu.Unlock()

	appLog.Info("reservation updated", "url", target)
	c.adapter.Refetch()
	return nil
}

// RequestDelete asks for confirmation before deleting.
func (c *EditController) RequestDelete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.state = EditDeleteRequested
	return nil
}

// CancelDelete returns to the form.
func (c *EditController) CancelDelete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != EditDeleteRequested {
		return ErrInvalidState
	}
	c.state = EditFormOpen
	return nil
}

// ConfirmDelete deletes the event. Both outcomes end Idle; a success
// triggers exactly one refetch.
func (c *EditController) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state != EditDeleteRequested {
		c.mu.Unlock()
		return ErrInvalidState
	}
	target := c.event.URL
	id, err := model.ParseEventID(target)
	if err != nil {
		c.state = EditFormOpen
		c.mu.Unlock()
		return errors.Join(&model.ValidationError{Field: "url", Reason: "no event id"}, err)
	}
	c.state = EditDeleting
	c.mu.Unlock()

	err = c.backend.DeleteEvent(ctx, id)

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	if err != nil {
		appLog.Error("delete reservation failed", err, "id", id)
		return fmt.Errorf("delete reservation %d: %w", id, err)
	}
	appLog.Info("reservation deleted", "id", id)
	c.adapter.Refetch()
	return nil
}

// Close discards the open form. Closing an idle controller is a no-op;
// closing while a request is in flight is refused.
func (c *EditController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.busy() {
		return ErrBusy
	}
	c.resetLocked()
	return nil
}

func (c *EditController) resetLocked() {
	c.state = EditIdle
	c.mode = ModeView
	c.event = model.Event{}
	c.form = model.EventForm{}
}
