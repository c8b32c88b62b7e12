package frigate

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/technosupport/ts-eventfeed/internal/metrics"
)

const (
	// DefaultLimit bounds a single page of results; the feed never paginates.
	DefaultLimit = 50

	// FilterAll is the sentinel the server expects when a facet filter is
	// not narrowed.
	FilterAll = "all"

	defaultTimeout = 10 * time.Second
)

// EventQuery narrows a FetchEvents call. Zero values mean unfiltered.
type EventQuery struct {
	Camera     string
	Label      string
	Zone       string
	Limit      int
	InProgress bool
	SortBy     string
}

// Client is the read-only API client for the remote monitoring server. One
// version resolver lives per client; its cache holds for the client's
// lifetime and is dropped only when the server address changes.
type Client struct {
	httpClient *http.Client

	mu       sync.RWMutex
	baseURL  string
	resolver *VersionResolver
}

func NewClient(baseURL string) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	if err := c.SetBaseURL(baseURL); err != nil {
		return nil, err
	}
	return c, nil
}

// SetBaseURL validates and swaps the server address. A changed address
// resets the version cache: the new host may speak a different tier.
func (c *Client) SetBaseURL(raw string) error {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if trimmed == c.baseURL && c.resolver != nil {
		return nil
	}
	c.baseURL = trimmed
	c.resolver = NewVersionResolver(c.httpClient, c.BaseURL)
	return nil
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) currentResolver() *VersionResolver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolver
}

// FetchEvents retrieves one bounded page of events, either the completed or
// the in-progress set, never both. On a normalization failure for the
// version-targeted path the entire request is retried once and the fresh
// body goes through the version-independent fallback chain.
func (c *Client) FetchEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	endpoint, err := c.eventsURL(q)
	if err != nil {
		return nil, err
	}

	version := c.currentResolver().Resolve(ctx)

	body, err := c.get(ctx, endpoint, "events")
	if err != nil {
		return nil, err
	}

	events, err := Normalize(body, version)
	if err == nil {
		return events, nil
	}
	log.Printf("[DEBUG] Event normalization failed for version %s, retrying with global fallback: %v", version, err)
	metrics.NormalizeRetriesTotal.Inc()

	body, err = c.get(ctx, endpoint, "events")
	if err != nil {
		return nil, err
	}
	return NormalizeFallback(body)
}

// FetchCameras reads the key set of the "cameras" object in the server
// config, sorted ascending. An absent shape yields an empty list, not an
// error.
func (c *Client) FetchCameras(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, c.BaseURL()+"/api/config", "config")
	if err != nil {
		return nil, err
	}

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return []string{}, nil
	}
	camerasObj, err := obj.GetObject("cameras")
	if err != nil {
		return []string{}, nil
	}

	names := make([]string, 0, len(camerasObj.Map()))
	for name := range camerasObj.Map() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FetchVersionString returns the raw probed version for display. It shares
// the resolver's cache with the parse-decision path.
func (c *Client) FetchVersionString(ctx context.Context) (string, error) {
	return c.currentResolver().RawString(ctx)
}

// FetchMedia opens a media stream for an event. The caller owns the
// response body. rangeHeader is forwarded verbatim so clip seeking keeps
// working through the proxy.
func (c *Client) FetchMedia(ctx context.Context, eventID, kind, rangeHeader string) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/api/events/%s/%s", c.BaseURL(), url.PathEscape(eventID), kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, &NetworkError{Status: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) eventsURL(q EventQuery) (string, error) {
	u, err := url.Parse(c.BaseURL() + "/api/events")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	params := url.Values{}
	params.Set("cameras", orAll(q.Camera))
	params.Set("labels", orAll(q.Label))
	params.Set("zones", orAll(q.Zone))
	params.Set("sub_labels", FilterAll)
	params.Set("time_range", "00:00,24:00")
	params.Set("timezone", "America/New_York")
	params.Set("favorites", "0")
	params.Set("is_submitted", "-1")
	params.Set("include_thumbnails", "0")
	if q.InProgress {
		params.Set("in_progress", "1")
	} else {
		params.Set("in_progress", "0")
	}
	params.Set("limit", strconv.Itoa(limit))
	if q.SortBy != "" {
		params.Set("order_by", q.SortBy)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, endpoint, label string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	return body, nil
}

func orAll(v string) string {
	if v == "" {
		return FilterAll
	}
	return v
}
