package web

import (
	"context"
	"time"

	"roomcal/internal/style"
)

// The engine calls these with its locks held; none of them call back into
// the engine synchronously.

func (s *Server) Render(events []style.Styled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendered = events
	s.renderAt = time.Now()
}

func (s *Server) AddDraft(ev style.Styled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay = &ev
}

func (s *Server) RemoveDraft(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay != nil && s.overlay.ID == id {
		s.overlay = nil
	}
}

// Refetch reloads the current view in the background.
func (s *Server) Refetch() {
	s.pending.Go(func() {
		ctx, cancel := context.WithTimeout(s.base, s.cfg.RequestTimeout())
		defer cancel()
		s.eng.Reload(ctx)
	})
}

func (s *Server) snapshot() ([]style.Styled, *style.Styled, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]style.Styled, len(s.rendered))
	copy(events, s.rendered)
	var overlay *style.Styled
	if s.overlay != nil {
		ov := *s.overlay
		overlay = &ov
	}
	return events, overlay, s.renderAt
}
