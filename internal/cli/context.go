// Package cli holds the roomcal subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"roomcal/internal/backend"
	"roomcal/internal/config"
	"roomcal/internal/credentials"
	"roomcal/internal/engine"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
)

// Context is shared by every command.
type Context struct {
	Ctx    context.Context
	Config *config.Config
	Out    io.Writer

	// Backend overrides the HTTP client; tests use it.
	Backend engine.Backend
}

// backend builds the reservation client from the config. The session comes
// from ROOMCAL_SESSION or the keyring.
func (c *Context) backend() (engine.Backend, error) {
	if c.Backend != nil {
		return c.Backend, nil
	}
	if err := c.Config.Validate(); err != nil {
		return nil, err
	}
	session := credentials.Resolve(c.Config.BaseURL, c.Config.Session)
	if session == "" {
		appLog.Warn("no backend session; only public events will be visible", "base_url", c.Config.BaseURL)
	}
	cl, err := backend.New(backend.Options{
		BaseURL:  c.Config.BaseURL,
		Location: c.Config.Location(),
		Timeout:  c.Config.RequestTimeout(),
		Endpoints: backend.Endpoints{
			Terms:  c.Config.Endpoints.Terms,
			Events: c.Config.Endpoints.Events,
			Delete: c.Config.Endpoints.Delete,
		},
		CSRFCookie:    c.Config.CSRF.Cookie,
		CSRFHeader:    c.Config.CSRF.Header,
		SessionCookie: c.Config.SessionCookie,
		Session:       session,
	})
	if err != nil {
		return nil, err
	}
	return cl, nil
}

// engine builds a one-shot engine rendering to a console adapter.
func (c *Context) engine() (*engine.Engine, *Console, error) {
	b, err := c.backend()
	if err != nil {
		return nil, nil, err
	}
	con := NewConsole(c.Out, c.Config.Location())
	return engine.New(b, con, engine.Options{Location: c.Config.Location()}), con, nil
}

// ViewFlags select a calendar window and filters.
type ViewFlags struct {
	From  string   `help:"First day (YYYY-MM-DD). Defaults to today." placeholder:"DAY"`
	Days  int      `help:"Number of days to show." default:"7"`
	Room  string   `help:"Room id, or 'all'." default:"all"`
	Query string   `help:"Free text matched against title and author." short:"q"`
	Types []string `help:"Event types to include (codes or names, e.g. exam,test). Defaults to all." sep:","`
}

func (v ViewFlags) resolve(loc *time.Location, now time.Time) (model.Range, model.Filters, error) {
	day := now.In(loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	if v.From != "" {
		t, err := time.ParseInLocation(model.DayLayout, v.From, loc)
		if err != nil {
			return model.Range{}, model.Filters{}, fmt.Errorf("invalid --from %q: expected YYYY-MM-DD", v.From)
		}
		start = t
	}
	days := v.Days
	if days <= 0 {
		days = 7
	}

	filters := model.DefaultFilters()
	if strings.TrimSpace(v.Room) != "" {
		filters.Room = v.Room
	}
	filters.Query = v.Query
	if len(v.Types) > 0 {
		filters.Types = nil
		for _, s := range v.Types {
			t, ok := model.ParseEventType(s)
			if !ok {
				return model.Range{}, model.Filters{}, fmt.Errorf("unknown event type %q", s)
			}
			filters.Types = append(filters.Types, t)
		}
	}
	return model.Range{Start: start, End: start.AddDate(0, 0, days)}, filters, nil
}
