// Package style maps an event's type, status and visibility to the colors
// the calendar draws it with.
package style

import (
	"github.com/charmbracelet/lipgloss"

	"roomcal/internal/model"
)

// Style is the display record of one calendar box. An empty Text means the
// adapter's default text color.
type Style struct {
	Fill   string `json:"fill_color"`
	Border string `json:"border_color"`
	Text   string `json:"text_color,omitempty"`
}

const (
	// InvisibleColor replaces the type color of hidden events.
	InvisibleColor = "#9E9E9E"
	// ExamTextColor keeps exam titles readable on their light fill.
	ExamTextColor = "#000000"
	// DraftColor marks the uncommitted event while it is being created.
	DraftColor = "#FF8C00"
)

var typeFill = map[model.EventType]string{
	model.TypeExam:                 "#FFD966",
	model.TypeTest:                 "#3D85C6",
	model.TypeGenericEvent:         "#3A87AD",
	model.TypeClass:                "#6AA84F",
	model.TypeOther:                "#8E7CC3",
	model.TypeRecurringReservation: "#C27BA0",
}

var statusBorder = map[model.Status]string{
	model.StatusPending:  "#F1C232",
	model.StatusAccepted: "#274E13",
	model.StatusRejected: "#CC0000",
}

// Resolve returns the style for k. It never fails: unknown types draw like
// TypeOther and unknown statuses like StatusPending.
func Resolve(k model.Kind) Style {
	fill, ok := typeFill[k.Type]
	if !ok {
		fill = typeFill[model.TypeOther]
	}
	if !k.Visible {
		fill = InvisibleColor
	}

	border, ok := statusBorder[k.Status]
	if !ok {
		border = statusBorder[model.StatusPending]
	}

	s := Style{Fill: fill, Border: border}
	if k.Type == model.TypeExam {
		s.Text = ExamTextColor
	}
	return s
}

// Draft is the style of the temporary overlay event.
func Draft() Style {
	return Style{Fill: DraftColor, Border: DraftColor}
}

// Styled is an occurrence annotated with its resolved style.
type Styled struct {
	model.Occurrence
	Style Style
}

// Annotate resolves the style of every occurrence. The input is not modified.
func Annotate(occs []model.Occurrence) []Styled {
	out := make([]Styled, 0, len(occs))
	for _, o := range occs {
		out = append(out, Styled{Occurrence: o, Style: Resolve(o.Kind())})
	}
	return out
}

// Lipgloss converts a style for terminal output.
func Lipgloss(s Style) lipgloss.Style {
	ls := lipgloss.NewStyle().
		Background(lipgloss.Color(s.Fill)).
		BorderForeground(lipgloss.Color(s.Border))
	if s.Text != "" {
		ls = ls.Foreground(lipgloss.Color(s.Text))
	} else {
		ls = ls.Foreground(lipgloss.Color("#FFFFFF"))
	}
	return ls
}
