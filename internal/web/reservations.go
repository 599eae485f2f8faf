package web

import (
	"fmt"
	"net/http"
	"time"

	"roomcal/internal/engine"
	"roomcal/internal/model"
)

func (s *Server) draftView() draftView {
	d := s.eng.Draft()
	v := draftView{State: d.State().String()}
	if form, ok := d.Form(); ok {
		v.Form = toFormDTO(form)
	}
	if ov, ok := d.Overlay(); ok {
		dto := toEventDTO(ov)
		v.Overlay = &dto
	}
	return v
}

func (s *Server) editView(handled bool) editView {
	c := s.eng.Edit()
	v := editView{Handled: handled, State: c.State().String()}
	if ev, ok := c.Event(); ok {
		v.Mode = c.Mode().String()
		v.ID = ev.ID
		v.URL = ev.URL
		v.Author = ev.Author
	}
	if form, ok := c.Form(); ok {
		v.Form = toFormDTO(form)
	}
	return v
}

func (s *Server) handleDraftGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.draftView())
}

// POST /api/draft/select {"start": RFC 3339, "end": RFC 3339}
func (s *Server) handleDraftSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.eng.SelectSlot(req.Start, req.End); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.draftView())
}

func (s *Server) handleDraftOpen(w http.ResponseWriter, _ *http.Request) {
	if err := s.eng.Draft().OpenBlank(time.Now()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.draftView())
}

func (s *Server) handleDraftForm(w http.ResponseWriter, r *http.Request) {
	var req formDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.checkRooms(req); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.eng.Draft().Edit(req.apply); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.draftView())
}

func (s *Server) handleDraftSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.detached(r)
	defer cancel()
	if err := s.eng.Draft().Submit(ctx); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.draftView())
}

func (s *Server) handleDraftCancel(w http.ResponseWriter, _ *http.Request) {
	if err := s.eng.Deselect(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.draftView())
}

func (s *Server) handleEditGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.editView(true))
}

// POST /api/edit/open {"id", "url", "type", "mode": "view"|"edit"}
//
// Declined clicks answer {"handled": false}; the browser then follows the
// event link itself.
func (s *Server) handleEditOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode := engine.ModeView
	if req.Mode == engine.ModeEdit.String() {
		mode = engine.ModeEdit
	}

	click := engine.Click{ID: req.ID, URL: req.URL, Type: req.Type}
	handled, err := s.eng.ClickEvent(r.Context(), click, mode)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editView(handled))
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	var req formDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.checkRooms(req); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.eng.Edit().Edit(req.apply); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editView(true))
}

func (s *Server) handleEditSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.detached(r)
	defer cancel()
	s.editStep(w, func() error { return s.eng.Edit().Submit(ctx) })
}

func (s *Server) handleEditDelete(w http.ResponseWriter, _ *http.Request) {
	s.editStep(w, s.eng.Edit().RequestDelete)
}

func (s *Server) handleEditDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.detached(r)
	defer cancel()
	s.editStep(w, func() error { return s.eng.Edit().ConfirmDelete(ctx) })
}

func (s *Server) handleEditDeleteCancel(w http.ResponseWriter, _ *http.Request) {
	s.editStep(w, s.eng.Edit().CancelDelete)
}

func (s *Server) handleEditClose(w http.ResponseWriter, _ *http.Request) {
	s.editStep(w, s.eng.Edit().Close)
}

func (s *Server) editStep(w http.ResponseWriter, step func() error) {
	if err := step(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editView(true))
}

// checkRooms rejects room ids missing from the configured room list. An
// empty list accepts any room.
func (s *Server) checkRooms(f formDTO) error {
	if len(s.cfg.Rooms) == 0 {
		return nil
	}
	known := make(map[string]bool, len(s.cfg.Rooms))
	for _, r := range s.cfg.Rooms {
		known[r.ID] = true
	}
	for i, t := range f.Terms {
		if t.Mode == model.LocationPlace.String() || t.Room == "" || t.Room == model.NoRoom {
			continue
		}
		if !known[t.Room] {
			return &model.ValidationError{Field: fmt.Sprintf("terms[%d].room", i), Reason: "unknown room"}
		}
	}
	return nil
}
