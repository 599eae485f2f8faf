package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomcal/internal/ics"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/style"
)

// DraftID identifies the temporary overlay of an event being created.
const DraftID = "temp"

type DraftState int

const (
	DraftIdle DraftState = iota
	DraftRangeSelected
	DraftFormOpen
	DraftSubmitting
)

func (s DraftState) String() string {
	switch s {
	case DraftRangeSelected:
		return "range_selected"
	case DraftFormOpen:
		return "form_open"
	case DraftSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

// Creator is the backend call the draft flow commits with.
type Creator interface {
	CreateEvent(ctx context.Context, p model.EventPayload) error
}

// DraftController drives the create flow. At most one draft exists at a
// time and its overlay never outlives it.
type DraftController struct {
	backend Creator
	adapter Adapter
	loc     *time.Location

	mu      sync.Mutex
	state   DraftState
	form    model.EventForm
	overlay *style.Styled
}

func newDraftController(b Creator, a Adapter, loc *time.Location) *DraftController {
	return &DraftController{backend: b, adapter: a, loc: loc}
}

func blankForm() model.EventForm {
	return model.EventForm{
		Visible: true,
		Type:    model.TypeGenericEvent,
	}
}

// State returns the current state.
func (d *DraftController) State() DraftState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Form returns a copy of the form. ok is false when no draft exists.
func (d *DraftController) Form() (form model.EventForm, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DraftIdle {
		return model.EventForm{}, false
	}
	return d.form.Clone(), true
}

// Overlay returns the overlay currently shown, if any.
func (d *DraftController) Overlay() (style.Styled, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.overlay == nil {
		return style.Styled{}, false
	}
	return *d.overlay, true
}

// SelectRange starts a draft from a selected calendar range. A previous
// draft that has not been submitted is superseded.
func (d *DraftController) SelectRange(start, end time.Time) error {
	if !end.After(start) {
		return &model.ValidationError{Field: "range", Reason: "end must be after start"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DraftSubmitting {
		return ErrBusy
	}
	d.removeOverlayLocked()

	form := blankForm()
	form.Terms = []model.Term{model.TermFromRange(start, end, d.loc)}
	d.form = form

	ov := style.Styled{
		Occurrence: model.Occurrence{
			ID:      DraftID,
			Title:   "New reservation",
			Type:    form.Type,
			Status:  model.StatusPending,
			Visible: true,
			Start:   start,
			End:     end,
		},
		Style: style.Draft(),
	}
	d.overlay = &ov
	d.adapter.AddDraft(ov)
	d.state = DraftRangeSelected
	return nil
}

// OpenBlank opens an empty form with a single term on the day of now and
// no overlay.
func (d *DraftController) OpenBlank(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DraftSubmitting {
		return ErrBusy
	}
	d.removeOverlayLocked()

	form := blankForm()
	form.Terms = []model.Term{{
		Day:  now.In(d.loc).Format(model.DayLayout),
		Mode: model.LocationRoom,
	}}
	d.form = form
	d.state = DraftFormOpen
	return nil
}

// Edit applies fn to the form and moves the draft to FormOpen.
func (d *DraftController) Edit(fn func(*model.EventForm)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case DraftIdle:
		return ErrInvalidState
	case DraftSubmitting:
		return ErrBusy
	}
	fn(&d.form)
	d.state = DraftFormOpen
	return nil
}

// SelectRoom applies a room choice to term i. model.NoRoom switches the
// term to a free-text place.
func (d *DraftController) SelectRoom(i int, room string) error {
	return d.Edit(func(f *model.EventForm) {
		if i >= 0 && i < len(f.Terms) {
			f.Terms[i].SelectRoom(room)
		}
	})
}

// Submit validates the form and creates the event. A validation error keeps
// the form open without a request. On backend failure the form is kept
// with its data and the error is returned.
func (d *DraftController) Submit(ctx context.Context) error {
	d.mu.Lock()
	switch d.state {
	case DraftIdle:
		d.mu.Unlock()
		return ErrInvalidState
	case DraftSubmitting:
		d.mu.Unlock()
		return ErrBusy
	}
	payload, err := createPayload(d.form)
	if err != nil {
		d.state = DraftFormOpen
		d.mu.Unlock()
		return err
	}
	d.state = DraftSubmitting
	d.mu.Unlock()

	err = d.backend.CreateEvent(ctx, payload)

	d.mu.Lock()
	if err != nil {
		d.state = DraftFormOpen
		d.mu.Unlock()
		appLog.Error("create reservation failed", err, "title", payload.Title)
		return fmt.Errorf("create reservation: %w", err)
	}
	d.removeOverlayLocked()
	d.form = model.EventForm{}
	d.state = DraftIdle
	d.mu.Unlock()

	appLog.Info("reservation created", "title", payload.Title, "terms", len(payload.Terms))
	d.adapter.Refetch()
	return nil
}

// Cancel abandons the draft without any request. Cancelling an idle
// controller is a no-op.
func (d *DraftController) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DraftSubmitting {
		return ErrBusy
	}
	d.removeOverlayLocked()
	d.form = model.EventForm{}
	d.state = DraftIdle
	return nil
}

// Deselect is the adapter's unselect signal; it cancels the draft.
func (d *DraftController) Deselect() error {
	return d.Cancel()
}

func (d *DraftController) removeOverlayLocked() {
	if d.overlay == nil {
		return
	}
	d.overlay = nil
	d.adapter.RemoveDraft(DraftID)
}

// createPayload validates the form and expands a recurring reservation into
// weekly terms.
func createPayload(form model.EventForm) (model.EventPayload, error) {
	payload, err := form.Payload(false)
	if err != nil {
		return model.EventPayload{}, err
	}
	if form.RepeatUntil == "" {
		return payload, nil
	}
	if form.Type != model.TypeRecurringReservation {
		return model.EventPayload{}, &model.ValidationError{Field: "repeat_until", Reason: "only recurring reservations repeat"}
	}

	var terms []model.Term
	for _, t := range form.Terms {
		weekly, err := ics.ExpandWeekly(t, form.RepeatUntil)
		if err != nil {
			return model.EventPayload{}, &model.ValidationError{Field: "repeat_until", Reason: err.Error()}
		}
		terms = append(terms, weekly...)
	}
	form.Terms = terms
	return form.Payload(false)
}
