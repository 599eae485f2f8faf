package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/query"
)

// Endpoints are resource paths relative to the base URL.
type Endpoints struct {
	Terms  string // listing, e.g. "classrooms/terms/"
	Events string // create collection, e.g. "events/"
	Delete string // fmt pattern taking the numeric id, e.g. "delete-event/%d/"
}

// DefaultEndpoints matches the reservation system's URL layout.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Terms:  "classrooms/terms/",
		Events: "events/",
		Delete: "delete-event/%d/",
	}
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Location  *time.Location // zone of the backend's naive timestamps
	Timeout   time.Duration
	Endpoints Endpoints

	CSRFCookie string
	CSRFHeader string

	// SessionCookie/Session seed the cookie jar with an authenticated session.
	SessionCookie string
	Session       string

	// HTTPClient overrides the transport. Its Jar is replaced when nil.
	HTTPClient *http.Client
}

// Client talks to the reservation backend.
type Client struct {
	base       *url.URL
	http       *http.Client
	loc        *time.Location
	ep         Endpoints
	csrfCookie string
	csrfHeader string
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("backend: base URL is empty")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	def := DefaultEndpoints()
	if opts.Endpoints.Terms == "" {
		opts.Endpoints.Terms = def.Terms
	}
	if opts.Endpoints.Events == "" {
		opts.Endpoints.Events = def.Events
	}
	if opts.Endpoints.Delete == "" {
		opts.Endpoints.Delete = def.Delete
	}
	if opts.CSRFCookie == "" {
		opts.CSRFCookie = "csrftoken"
	}
	if opts.CSRFHeader == "" {
		opts.CSRFHeader = "X-CSRFToken"
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}
	if opts.Session != "" {
		name := opts.SessionCookie
		if name == "" {
			name = "sessionid"
		}
		hc.Jar.SetCookies(base, []*http.Cookie{{Name: name, Value: opts.Session, Path: "/"}})
	}

	return &Client{
		base:       base,
		http:       hc,
		loc:        opts.Location,
		ep:         opts.Endpoints,
		csrfCookie: opts.CSRFCookie,
		csrfHeader: opts.CSRFHeader,
	}, nil
}

// ListTerms fetches the occurrences matching q.
func (c *Client) ListTerms(ctx context.Context, q query.Query) ([]model.Occurrence, error) {
	u, err := c.resolve(c.ep.Terms)
	if err != nil {
		return nil, err
	}
	u.RawQuery = q.Values().Encode()

	var rows []occurrenceDTO
	if err := c.do(ctx, http.MethodGet, u, nil, &rows); err != nil {
		return nil, err
	}

	out := make([]model.Occurrence, 0, len(rows))
	for i, row := range rows {
		occ, err := row.toModel(c.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrDecode, i, err)
		}
		out = append(out, occ)
	}
	return out, nil
}

// GetEvent fetches the full event behind an instance URL.
func (c *Client) GetEvent(ctx context.Context, eventURL string) (model.Event, error) {
	u, err := c.resolve(eventURL)
	if err != nil {
		return model.Event{}, err
	}
	var dto eventDTO
	if err := c.do(ctx, http.MethodGet, u, nil, &dto); err != nil {
		return model.Event{}, err
	}
	if dto.URL == "" {
		dto.URL = eventURL
	}
	ev, err := dto.toModel()
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ev, nil
}

// CreateEvent posts a new event to the events collection.
func (c *Client) CreateEvent(ctx context.Context, p model.EventPayload) error {
	u, err := c.resolve(c.ep.Events)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, u, p, nil)
}

// UpdateEvent posts the changed event to its instance URL.
func (c *Client) UpdateEvent(ctx context.Context, eventURL string, p model.EventPayload) error {
	u, err := c.resolve(eventURL)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, u, p, nil)
}

// DeleteEvent posts to the delete resource of the event with the given id.
func (c *Client) DeleteEvent(ctx context.Context, id int) error {
	if id <= 0 {
		return fmt.Errorf("backend: invalid event id %d", id)
	}
	u, err := c.resolve(fmt.Sprintf(c.ep.Delete, id))
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, u, nil, nil)
}

// resolve maps endpoint paths and instance URLs (absolute, root-relative or
// base-relative) onto the base URL.
func (c *Client) resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("backend: parse %q: %w", ref, err)
	}
	return c.base.ResolveReference(r), nil
}

// csrfToken returns the CSRF cookie value, priming the jar with a GET on the
// base URL when the cookie has not been set yet.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	if tok := c.cookie(c.csrfCookie); tok != "" {
		return tok, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: prime csrf cookie: %v", ErrNetwork, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if tok := c.cookie(c.csrfCookie); tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("%w: %s cookie not set by backend", ErrNetwork, c.csrfCookie)
}

func (c *Client) cookie(name string) string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// do sends one request. Mutating requests carry the CSRF token; out, when
// non-nil, receives the decoded JSON body.
func (c *Client) do(ctx context.Context, method string, u *url.URL, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		tok, err := c.csrfToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(c.csrfHeader, tok)
		// The backend checks the referer of secure mutating requests.
		req.Header.Set("Referer", c.base.String())
	}

	appLog.Debug("backend request", "method", method, "url", appLog.RedactURL(u.String()), "request_id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrDecode, method, u.Path, err)
	}
	appLog.Debug("backend response", "method", method, "status", resp.StatusCode, "request_id", reqID)
	return nil
}
