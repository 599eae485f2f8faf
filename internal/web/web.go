package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"roomcal/internal/backend"
	"roomcal/internal/config"
	"roomcal/internal/engine"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/style"
)

// Server is the HTTP calendar adapter. It feeds browser signals into the
// engine and keeps what the engine asked it to render.
type Server struct {
	cfg *config.Config
	loc *time.Location
	mux *http.ServeMux
	eng *engine.Engine

	// base is the lifetime context of asynchronous refetches.
	base    context.Context
	pending sync.WaitGroup

	mu       sync.RWMutex
	rendered []style.Styled
	overlay  *style.Styled
	renderAt time.Time
}

// NewServer builds the server and the engine it drives.
func NewServer(ctx context.Context, cfg *config.Config, b engine.Backend) *Server {
	s := &Server{
		cfg:      cfg,
		loc:      cfg.Location(),
		mux:      http.NewServeMux(),
		base:     ctx,
		rendered: []style.Styled{},
	}
	s.eng = engine.New(b, s, engine.Options{Location: s.loc})
	s.registerRoutes()
	return s
}

// Engine exposes the engine so background jobs can share it.
func (s *Server) Engine() *engine.Engine { return s.eng }

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="roomcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the server on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.pending.Wait()
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/rooms", s.handleRooms)

	s.mux.HandleFunc("GET /api/draft", s.handleDraftGet)
	s.mux.HandleFunc("POST /api/draft/select", s.handleDraftSelect)
	s.mux.HandleFunc("POST /api/draft/open", s.handleDraftOpen)
	s.mux.HandleFunc("POST /api/draft/form", s.handleDraftForm)
	s.mux.HandleFunc("POST /api/draft/submit", s.handleDraftSubmit)
	s.mux.HandleFunc("POST /api/draft/cancel", s.handleDraftCancel)

	s.mux.HandleFunc("GET /api/edit", s.handleEditGet)
	s.mux.HandleFunc("POST /api/filters/types/{type}", s.handleToggleType)
	s.mux.HandleFunc("POST /api/edit/open", s.handleEditOpen)
	s.mux.HandleFunc("POST /api/edit/form", s.handleEditForm)
	s.mux.HandleFunc("POST /api/edit/submit", s.handleEditSubmit)
	s.mux.HandleFunc("POST /api/edit/delete", s.handleEditDelete)
	s.mux.HandleFunc("POST /api/edit/delete/confirm", s.handleEditDeleteConfirm)
	s.mux.HandleFunc("POST /api/edit/delete/cancel", s.handleEditDeleteCancel)
	s.mux.HandleFunc("POST /api/edit/close", s.handleEditClose)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := append([]config.RoomConfig{{ID: model.AllRooms, Name: "All rooms"}}, s.cfg.Rooms...)
	writeJSON(w, http.StatusOK, rooms)
}

// handleEvents changes the visible range and filters and returns what the
// engine rendered.
//
// GET /api/events?start=...&end=...&room=25&q=algebra&types=0,1
//   - start/end: RFC 3339 instants or YYYY-MM-DD days in the display zone.
//     Without them the window is backfill days back to days ahead
//     (defaults 1 and 7).
//   - room:  room id, or "all".
//   - q:     free text matched against title and author.
//   - types: comma separated type codes. Absent means all types; present
//     but empty means none.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rng, err := s.parseRange(q.Get("start"), q.Get("end"), parseIntDefault(q.Get("days"), 7), parseIntDefault(q.Get("backfill"), 1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filters := model.DefaultFilters()
	if room := strings.TrimSpace(q.Get("room")); room != "" {
		filters.Room = room
	}
	filters.Query = q.Get("q")
	if q.Has("types") {
		types, err := parseTypes(q.Get("types"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filters.Types = types
	}

	appLog.Debug("api events request",
		"range_start", rng.Start.Format(time.RFC3339),
		"range_end", rng.End.Format(time.RFC3339),
		"room", filters.Room,
		"types", len(filters.Types),
	)

	ctx, cancel := s.detached(r)
	defer cancel()
	_, applied := s.eng.ChangeView(ctx, rng, filters)
	s.writeEvents(w, rng, filters, applied)
}

// POST /api/filters/types/{type} flips one type toggle of the current view
// and fetches again.
func (s *Server) handleToggleType(w http.ResponseWriter, r *http.Request) {
	typ, ok := model.ParseEventType(r.PathValue("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown event type "+strconv.Quote(r.PathValue("type")))
		return
	}
	rng, filters, ok := s.eng.View()
	if !ok {
		writeError(w, http.StatusConflict, "no calendar view yet")
		return
	}
	filters = filters.Toggle(typ)

	ctx, cancel := s.detached(r)
	defer cancel()
	_, applied := s.eng.ChangeView(ctx, rng, filters)
	s.writeEvents(w, rng, filters, applied)
}

func (s *Server) writeEvents(w http.ResponseWriter, rng model.Range, filters model.Filters, applied bool) {
	// When a newer view won, this answers with what that view rendered.
	events, overlay, renderedAt := s.snapshot()

	resp := eventsResponse{
		Events:          toEventDTOs(events),
		Types:           toTypeToggles(filters),
		RangeStart:      rng.Start,
		RangeEnd:        rng.End,
		DisplayTimeZone: s.loc.String(),
		WeekStart:       s.cfg.WeekStart,
		Stale:           !applied,
		RenderedAt:      renderedAt,
	}
	if overlay != nil {
		d := toEventDTO(*overlay)
		resp.Draft = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

// detached keeps request values but not cancellation. Backend calls that
// change shared state run to completion even when the client goes away.
func (s *Server) detached(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.RequestTimeout())
}

func (s *Server) parseRange(start, end string, days, backfill int) (model.Range, error) {
	if start == "" && end == "" {
		if days <= 0 {
			days = 7
		}
		if backfill < 0 {
			backfill = 0
		}
		now := time.Now().In(s.loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
		return model.Range{Start: today.AddDate(0, 0, -backfill), End: today.AddDate(0, 0, days)}, nil
	}

	st, err := parseInstant(start, s.loc)
	if err != nil {
		return model.Range{}, errors.New("invalid start")
	}
	en, err := parseInstant(end, s.loc)
	if err != nil {
		return model.Range{}, errors.New("invalid end")
	}
	if !en.After(st) {
		return model.Range{}, errors.New("end must be after start")
	}
	return model.Range{Start: st, End: en}, nil
}

func parseInstant(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(model.DayLayout, v, loc)
}

func parseTypes(v string) ([]model.EventType, error) {
	out := []model.EventType{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, ok := model.ParseEventType(part)
		if !ok {
			return nil, errors.New("unknown event type " + strconv.Quote(part))
		}
		out = append(out, t)
	}
	return out, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

// writeEngineError maps controller and backend failures onto status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errResp{Error: verr.Reason, Field: verr.Field})
	case errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrReadOnly):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, backend.ErrNetwork), errors.Is(err, backend.ErrDecode):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		appLog.Error("unexpected engine error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
