package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/five82/tripsync/internal/itinerary"
)

// Service is the remote itinerary API as the mirror and the sync queue see it.
// It is implemented by *Client and can be faked in tests.
type Service interface {
	List(ctx context.Context) ([]itinerary.Record, error)
	Get(ctx context.Context, id string) (itinerary.Record, error)
	Create(ctx context.Context, rec itinerary.Record) (itinerary.Record, error)
	Update(ctx context.Context, rec itinerary.Record) (itinerary.Record, error)
	Delete(ctx context.Context, id string) error
	Share(ctx context.Context, id string, req ShareRequest) (ShareLink, error)
	PDF(ctx context.Context, id string) ([]byte, error)
	UpdateProfile(ctx context.Context, payload json.RawMessage) error
	UpdateSettings(ctx context.Context, payload json.RawMessage) error
	Ping(ctx context.Context) error
	Apply(ctx context.Context, op itinerary.Operation) error
}

// Ensure Client implements Service at compile time.
var _ Service = (*Client)(nil)

// TokenSource supplies the bearer token sent with each request. An empty
// token sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// BreakerSettings tunes the circuit breaker wrapped around every call.
type BreakerSettings struct {
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	Tokens     TokenSource
	Breaker    BreakerSettings
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Client talks to the remote itinerary HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tokens    TokenSource
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

const (
	defaultBaseURL   = "http://127.0.0.1:8787/api"
	defaultUserAgent = "tripsync/0.1"
	requestTimeout   = 10 * time.Second
	maxPDFBytes      = 32 << 20
)

// NewClient builds a Client for opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("remote")

	return &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: userAgent,
		tokens:    tokens,
		breaker:   newBreaker(opts.Breaker, logger),
		logger:    logger,
	}, nil
}

func newBreaker(s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	ratio := s.FailureRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.6
	}
	minRequests := s.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	open := s.OpenTimeout
	if open <= 0 {
		open = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     open,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Only transport failures and server-side errors count against the
		// remote; a 404 or 422 means the service is up.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return !IsUnreachable(err)
		},
	})
}

// BaseURL returns the normalised service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// List retrieves every itinerary visible to the current user.
func (c *Client) List(ctx context.Context) ([]itinerary.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/itineraries", nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// Get retrieves one itinerary.
func (c *Client) Get(ctx context.Context, id string) (itinerary.Record, error) {
	if strings.TrimSpace(id) == "" {
		return itinerary.Record{}, fmt.Errorf("itinerary id required")
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, itineraryPath(id), nil, &raw); err != nil {
		return itinerary.Record{}, err
	}
	return itinerary.Decode(raw)
}

// Create posts rec. The returned record is the service's copy when it sends
// one back, otherwise rec.
func (c *Client) Create(ctx context.Context, rec itinerary.Record) (itinerary.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/itineraries", rec, &raw); err != nil {
		return itinerary.Record{}, err
	}
	return echoed(raw, rec), nil
}

// Update replaces the itinerary with rec.ID.
func (c *Client) Update(ctx context.Context, rec itinerary.Record) (itinerary.Record, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return itinerary.Record{}, fmt.Errorf("itinerary id required")
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, itineraryPath(rec.ID), rec, &raw); err != nil {
		return itinerary.Record{}, err
	}
	return echoed(raw, rec), nil
}

// Delete removes an itinerary.
func (c *Client) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("itinerary id required")
	}
	return c.do(ctx, http.MethodDelete, itineraryPath(id), nil, nil)
}

// Share requests a share link for an itinerary.
func (c *Client) Share(ctx context.Context, id string, req ShareRequest) (ShareLink, error) {
	var link ShareLink
	if err := c.do(ctx, http.MethodPost, itineraryPath(id)+"/share", req, &link); err != nil {
		return ShareLink{}, err
	}
	if link.URL == "" {
		return ShareLink{}, fmt.Errorf("share response for %s has no url", id)
	}
	return link, nil
}

// PDF downloads the service-rendered PDF for an itinerary.
func (c *Client) PDF(ctx context.Context, id string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, itineraryPath(id)+"/pdf", nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UpdateProfile replaces the user profile.
func (c *Client) UpdateProfile(ctx context.Context, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPut, "/user/profile", payload, nil)
}

// UpdateSettings replaces the user settings.
func (c *Client) UpdateSettings(ctx context.Context, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPut, "/user/settings", payload, nil)
}

// Ping reports whether the service can be reached. Any HTTP answer, whatever
// its status, counts as reachable. Ping bypasses the circuit breaker so it can
// observe recovery while the breaker is open.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint("/").String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	_ = resp.Body.Close()
	return nil
}

// Apply replays a queued operation against the service.
func (c *Client) Apply(ctx context.Context, op itinerary.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	switch op.Resource {
	case itinerary.ResourceProfile:
		return c.UpdateProfile(ctx, op.Payload)
	case itinerary.ResourceSettings:
		return c.UpdateSettings(ctx, op.Payload)
	}

	switch op.Kind {
	case itinerary.OpDelete:
		return c.Delete(ctx, op.ResourceID)
	case itinerary.OpCreate:
		rec, err := op.Record()
		if err != nil {
			return err
		}
		_, err = c.Create(ctx, rec)
		return err
	default:
		rec, err := op.Record()
		if err != nil {
			return err
		}
		if rec.ID == "" {
			rec.ID = op.ResourceID
		}
		_, err = c.Update(ctx, rec)
		return err
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, body, dest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, path, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path).String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(c.tokens.Token()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("remote call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}

	switch d := dest.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *bytes.Buffer:
		if _, err := d.ReadFrom(io.LimitReader(resp.Body, maxPDFBytes)); err != nil {
			return fmt.Errorf("%w: read response: %w", ErrUnreachable, err)
		}
		return nil
	case *json.RawMessage:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read response: %w", ErrUnreachable, err)
		}
		*d = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	return &u
}

func statusError(method, path string, resp *http.Response) error {
	se := &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		se.Message = body.Message
		if se.Message == "" {
			se.Message = body.Error
		}
	}
	return se
}

func itineraryPath(id string) string {
	return "/itineraries/" + url.PathEscape(id)
}

// decodeList accepts a bare array or an envelope with an "itineraries" or
// "data" array.
func decodeList(raw json.RawMessage) ([]itinerary.Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Itineraries json.RawMessage `json:"itineraries"`
			Data        json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		trimmed = envelope.Itineraries
		if len(trimmed) == 0 {
			trimmed = envelope.Data
		}
	}
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []itinerary.Record{}, nil
	}
	records, _, err := itinerary.DecodeList(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}

func echoed(raw json.RawMessage, sent itinerary.Record) itinerary.Record {
	if len(bytes.TrimSpace(raw)) == 0 {
		return sent
	}
	rec, err := itinerary.Decode(raw)
	if err != nil || rec.ID == "" {
		return sent
	}
	return rec
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base_url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse base_url %q: missing host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
