package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/style"
)

var (
	dayHeader = lipgloss.NewStyle().Bold(true).Underline(true)
	faint     = lipgloss.NewStyle().Faint(true)
)

// Console is a terminal calendar adapter. It keeps what the engine renders
// and prints it on demand.
type Console struct {
	w   io.Writer
	loc *time.Location

	mu        sync.Mutex
	events    []style.Styled
	draft     *style.Styled
	refetches int
}

func NewConsole(w io.Writer, loc *time.Location) *Console {
	if loc == nil {
		loc = time.Local
	}
	return &Console{w: w, loc: loc}
}

func (c *Console) Render(events []style.Styled) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = events
}

func (c *Console) AddDraft(ev style.Styled) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = &ev
}

func (c *Console) RemoveDraft(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft != nil && c.draft.ID == id {
		c.draft = nil
	}
}

// Refetch is only counted; console commands are one-shot.
func (c *Console) Refetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refetches++
	appLog.Debug("console: refetch requested")
}

func (c *Console) Events() []style.Styled {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]style.Styled, len(c.events))
	copy(out, c.events)
	return out
}

// Print writes the rendered events grouped by day.
func (c *Console) Print() {
	events := c.Events()
	if len(events) == 0 {
		fmt.Fprintln(c.w, "No events found")
		return
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	var day string
	for _, ev := range events {
		start := ev.Start.In(c.loc)
		if d := start.Format("Mon 2006-01-02"); d != day {
			if day != "" {
				fmt.Fprintln(c.w)
			}
			day = d
			fmt.Fprintln(c.w, dayHeader.Render(day))
		}
		fmt.Fprintf(c.w, "  %s-%s  %s  %s\n",
			start.Format(model.ClockLayout),
			ev.End.In(c.loc).Format(model.ClockLayout),
			style.Lipgloss(ev.Style).Render(" "+ev.Title+" "),
			faint.Render(describe(ev)),
		)
	}
}

func describe(ev style.Styled) string {
	parts := []string{ev.Type.String()}
	if ev.Type != model.TypeClass {
		parts = append(parts, ev.Status.String())
	}
	if !ev.Visible {
		parts = append(parts, "hidden")
	}
	if ev.URL != "" {
		parts = append(parts, ev.URL)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// printForm writes a reservation form for show/create output.
func printForm(w io.Writer, f model.EventForm) {
	fmt.Fprintf(w, "%s\n", dayHeader.Render(f.Title))
	fmt.Fprintf(w, "  type:    %s\n", f.Type)
	if f.Type != model.TypeClass {
		fmt.Fprintf(w, "  status:  %s\n", f.Status)
	}
	fmt.Fprintf(w, "  visible: %t\n", f.Visible)
	if f.Description != "" {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimSpace(f.Description), "\n", "\n  "))
	}
	for _, t := range f.Terms {
		where := "room " + t.Room
		if t.Mode == model.LocationPlace {
			where = t.Place
		}
		fmt.Fprintf(w, "  %s %s-%s  %s\n", t.Day, t.Start, t.End, where)
	}
}
