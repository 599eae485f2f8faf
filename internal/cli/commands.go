package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"roomcal/internal/credentials"
	"roomcal/internal/engine"
	"roomcal/internal/ics"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/refresh"
	"roomcal/internal/web"
)

// ServeCmd runs the HTTP calendar adapter with periodic refresh.
type ServeCmd struct{}

func (c *ServeCmd) Run(ctx *Context) error {
	b, err := ctx.backend()
	if err != nil {
		return err
	}
	if err := refresh.Validate(ctx.Config.RefreshCron); err != nil {
		return err
	}

	srv := web.NewServer(ctx.Ctx, ctx.Config, b)
	stop, err := refresh.Start(ctx.Ctx, ctx.Config.RefreshCron, ctx.Config.Location(), ctx.Config.RequestTimeout(),
		func(rctx context.Context) { srv.Engine().Reload(rctx) })
	if err != nil {
		return err
	}
	defer stop()

	return srv.Serve(ctx.Ctx)
}

// EventsCmd prints the calendar for a window.
type EventsCmd struct {
	ViewFlags `embed:""`
}

func (c *EventsCmd) Run(ctx *Context) error {
	eng, con, err := ctx.engine()
	if err != nil {
		return err
	}
	r, f, err := c.resolve(ctx.Config.Location(), time.Now())
	if err != nil {
		return err
	}
	eng.ChangeView(ctx.Ctx, r, f)
	con.Print()
	return nil
}

// ShowCmd prints one reservation.
type ShowCmd struct {
	URL string `arg:"" help:"Event URL, e.g. https://zapisy.example/events/42/."`
}

func (c *ShowCmd) Run(ctx *Context) error {
	eng, _, err := ctx.engine()
	if err != nil {
		return err
	}
	handled, err := eng.ClickEvent(ctx.Ctx, engine.Click{URL: c.URL}, engine.ModeView)
	if err != nil {
		return err
	}
	if !handled {
		fmt.Fprintf(ctx.Out, "%s is a timetable entry; open it in the browser.\n", c.URL)
		return nil
	}
	defer eng.Edit().Close()

	form, _ := eng.Edit().Form()
	printForm(ctx.Out, form)
	if ev, ok := eng.Edit().Event(); ok && ev.Author != "" {
		fmt.Fprintf(ctx.Out, "  author:  %s\n", ev.Author)
	}
	return nil
}

// CreateCmd creates a reservation with a single term, optionally repeated
// weekly.
type CreateCmd struct {
	Title       string `required:"" help:"Reservation title."`
	Description string `help:"Free-text description."`
	Type        string `help:"Event type (exam, test, event, other, recurring)." default:"event"`
	Day         string `required:"" help:"Day (YYYY-MM-DD)."`
	Start       string `required:"" help:"Start time (HH:MM)."`
	End         string `required:"" help:"End time (HH:MM)."`
	Room        string `help:"Room id." xor:"location" required:""`
	Place       string `help:"Free-text place when no room applies." xor:"location" required:""`
	Hidden      bool   `help:"Hide the reservation from the public calendar."`
	RepeatUntil string `help:"Repeat weekly until this day (recurring reservations only)." placeholder:"DAY"`
}

func (c *CreateCmd) Run(ctx *Context) error {
	typ, ok := model.ParseEventType(c.Type)
	if !ok {
		return fmt.Errorf("unknown event type %q", c.Type)
	}
	eng, _, err := ctx.engine()
	if err != nil {
		return err
	}

	d := eng.Draft()
	if err := d.OpenBlank(time.Now()); err != nil {
		return err
	}
	if err := d.Edit(func(f *model.EventForm) {
		f.Title = c.Title
		f.Description = c.Description
		f.Type = typ
		f.Visible = !c.Hidden
		f.RepeatUntil = c.RepeatUntil

		t := model.Term{Day: c.Day, Start: c.Start, End: c.End}
		if c.Place != "" {
			t.Place = c.Place
			t.SelectRoom(model.NoRoom)
		} else {
			t.SelectRoom(c.Room)
		}
		f.Terms = []model.Term{t}
	}); err != nil {
		return err
	}

	form, _ := d.Form()
	if err := d.Submit(ctx.Ctx); err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, "Created reservation:")
	printForm(ctx.Out, form)
	return nil
}

// DeleteCmd deletes a reservation.
type DeleteCmd struct {
	URL string `arg:"" help:"Event URL."`
	Yes bool   `short:"y" help:"Confirm the deletion. Deleting cannot be undone."`
}

func (c *DeleteCmd) Run(ctx *Context) error {
	if !c.Yes {
		return errors.New("refusing to delete without --yes")
	}
	eng, _, err := ctx.engine()
	if err != nil {
		return err
	}
	handled, err := eng.ClickEvent(ctx.Ctx, engine.Click{URL: c.URL}, engine.ModeEdit)
	if err != nil {
		return err
	}
	if !handled {
		return fmt.Errorf("%s is a timetable entry and cannot be deleted here", c.URL)
	}

	ev, _ := eng.Edit().Event()
	if err := eng.Edit().RequestDelete(); err != nil {
		return err
	}
	if err := eng.Edit().ConfirmDelete(ctx.Ctx); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Deleted reservation: %s\n", ev.Title)
	return nil
}

// ExportCmd writes the calendar window as iCalendar.
type ExportCmd struct {
	ViewFlags `embed:""`
	Output    string `short:"o" help:"Output file, or - for stdout." default:"-"`
	Name      string `help:"Calendar name." default:"roomcal"`
}

func (c *ExportCmd) Run(ctx *Context) error {
	eng, con, err := ctx.engine()
	if err != nil {
		return err
	}
	r, f, err := c.resolve(ctx.Config.Location(), time.Now())
	if err != nil {
		return err
	}
	eng.ChangeView(ctx.Ctx, r, f)

	var w io.Writer = ctx.Out
	if c.Output != "-" {
		file, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	events := con.Events()
	if err := ics.Export(w, events, ics.ExportOptions{BaseURL: ctx.Config.BaseURL, Name: c.Name}); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	appLog.Info("calendar exported", "events", len(events), "output", c.Output)
	return nil
}

// SessionCmd manages the backend session cookie in the OS keyring.
type SessionCmd struct {
	Set   SessionSetCmd   `cmd:"" help:"Store the session cookie value."`
	Clear SessionClearCmd `cmd:"" help:"Remove the stored session cookie."`
}

type SessionSetCmd struct {
	Value string `arg:"" help:"Value of the backend session cookie."`
}

func (c *SessionSetCmd) Run(ctx *Context) error {
	if ctx.Config.BaseURL == "" {
		return errors.New("base_url is not configured")
	}
	if err := credentials.SetSession(ctx.Config.BaseURL, c.Value); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Session stored for %s\n", ctx.Config.BaseURL)
	return nil
}

type SessionClearCmd struct{}

func (c *SessionClearCmd) Run(ctx *Context) error {
	err := credentials.ClearSession(ctx.Config.BaseURL)
	if errors.Is(err, credentials.ErrNotFound) {
		fmt.Fprintln(ctx.Out, "No session stored")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Session removed for %s\n", ctx.Config.BaseURL)
	return nil
}

// ImportCmd creates one reservation per event of an iCalendar file or feed.
type ImportCmd struct {
	Source string `arg:"" help:"Calendar file or http(s) URL."`
	Room   string `help:"Room id for every imported term." xor:"location"`
	Place  string `help:"Place for every imported term. Defaults to each event's LOCATION." xor:"location"`
	Type   string `help:"Event type. Defaults to recurring for repeating events and event otherwise."`
	From   string `help:"Skip occurrences before this day (YYYY-MM-DD)." placeholder:"DAY"`
	Until  string `help:"Skip occurrences after this day (YYYY-MM-DD)." placeholder:"DAY"`
	Hidden bool   `help:"Hide the reservations from the public calendar."`
	DryRun bool   `help:"Print the reservations without creating them." name:"dry-run"`
}

func (c *ImportCmd) Run(ctx *Context) error {
	loc := ctx.Config.Location()
	opts := ics.TermOptions{Location: loc}
	if c.From != "" {
		t, err := time.ParseInLocation(model.DayLayout, c.From, loc)
		if err != nil {
			return fmt.Errorf("invalid --from %q: expected YYYY-MM-DD", c.From)
		}
		opts.From = t
	}
	if c.Until != "" {
		t, err := time.ParseInLocation(model.DayLayout, c.Until, loc)
		if err != nil {
			return fmt.Errorf("invalid --until %q: expected YYYY-MM-DD", c.Until)
		}
		opts.Until = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	var typ model.EventType
	if c.Type != "" {
		t, ok := model.ParseEventType(c.Type)
		if !ok {
			return fmt.Errorf("unknown event type %q", c.Type)
		}
		typ = t
	}

	body, err := ics.Fetch(ctx.Ctx, nil, c.Source)
	if err != nil {
		return fmt.Errorf("read calendar: %w", err)
	}
	entries, err := ics.Parse(bytes.NewReader(body), loc)
	if err != nil {
		return fmt.Errorf("parse calendar: %w", err)
	}

	var eng *engine.Engine
	if !c.DryRun {
		if eng, _, err = ctx.engine(); err != nil {
			return err
		}
	}

	created, failed := 0, 0
	for _, e := range entries {
		form, err := c.form(e, typ, opts)
		if err == nil && eng != nil {
			err = submitForm(ctx.Ctx, eng.Draft(), form)
		}
		if err != nil {
			failed++
			appLog.Error("import: entry skipped", err, "uid", e.UID, "summary", e.Summary)
			fmt.Fprintf(ctx.Out, "Skipped %s: %v\n", e.Summary, err)
			continue
		}
		created++
		printForm(ctx.Out, form)
	}

	verb := "Imported"
	if c.DryRun {
		verb = "Would import"
	}
	fmt.Fprintf(ctx.Out, "%s %d of %d events\n", verb, created, len(entries))
	if failed > 0 {
		return fmt.Errorf("%d events could not be imported", failed)
	}
	return nil
}

func (c *ImportCmd) form(e ics.Entry, typ model.EventType, opts ics.TermOptions) (model.EventForm, error) {
	terms, err := ics.Terms(e, opts)
	if err != nil {
		return model.EventForm{}, err
	}
	if typ == "" {
		typ = model.TypeGenericEvent
		if e.RawRRule != "" {
			typ = model.TypeRecurringReservation
		}
	}
	place := c.Place
	if c.Room == "" && place == "" {
		place = e.Location
	}
	if c.Room == "" && place == "" {
		return model.EventForm{}, &model.ValidationError{Field: "terms[0].place", Reason: "event has no location; pass --room or --place"}
	}
	for i := range terms {
		if c.Room != "" {
			terms[i].SelectRoom(c.Room)
			continue
		}
		terms[i].Place = place
		terms[i].SelectRoom(model.NoRoom)
	}

	form := model.EventForm{
		Title:       e.Summary,
		Description: e.Description,
		Visible:     !c.Hidden,
		Type:        typ,
		Terms:       terms,
	}
	if _, err := form.Payload(false); err != nil {
		return model.EventForm{}, err
	}
	return form, nil
}

// submitForm runs a prepared form through the draft controller.
func submitForm(ctx context.Context, d *engine.DraftController, form model.EventForm) error {
	if err := d.OpenBlank(time.Now()); err != nil {
		return err
	}
	if err := d.Edit(func(f *model.EventForm) { *f = form.Clone() }); err != nil {
		d.Cancel()
		return err
	}
	if err := d.Submit(ctx); err != nil {
		d.Cancel()
		return err
	}
	return nil
}
