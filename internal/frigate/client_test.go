package frigate

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := NewClient(base)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func registerVersion(version string) {
	httpmock.RegisterResponder("GET", `=~/api/version$`,
		httpmock.NewStringResponder(200, `{"version":"`+version+`"}`))
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "nvr.local:5000"} {
		_, err := NewClient(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, "input %q", raw)
	}
}

func TestFetchEvents_EndToEnd(t *testing.T) {
	c := newTestClient(t, "http://h/")
	registerVersion("0.16.0")
	httpmock.RegisterResponder("GET", `=~^http://h/api/events`,
		httpmock.NewStringResponder(200, `[{"id":"1.1-cam","camera":"front","label":"person",
			"start_time":1000,"end_time":1010,"has_clip":false,"has_snapshot":true,
			"zones":[],"retain_indefinitely":false}]`))

	events, err := c.FetchEvents(context.Background(), EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "1.1-cam", e.ID)
	assert.Equal(t, "front", e.Camera)
	d, ok := e.Duration()
	require.True(t, ok)
	assert.InDelta(t, 10, d, 1e-9)
	assert.True(t, e.HasSnapshot)
	assert.False(t, e.HasClip)
}

func TestFetchEvents_QueryParameters(t *testing.T) {
	c := newTestClient(t, "http://h")
	registerVersion("0.16.0")

	var got url.Values
	httpmock.RegisterResponder("GET", `=~^http://h/api/events`,
		func(req *http.Request) (*http.Response, error) {
			got = req.URL.Query()
			return httpmock.NewStringResponse(200, "[]"), nil
		})

	_, err := c.FetchEvents(context.Background(), EventQuery{
		Camera:     "front",
		Label:      "person",
		InProgress: true,
		SortBy:     "start_time",
	})
	require.NoError(t, err)

	assert.Equal(t, "front", got.Get("cameras"))
	assert.Equal(t, "person", got.Get("labels"))
	assert.Equal(t, "all", got.Get("zones"))
	assert.Equal(t, "all", got.Get("sub_labels"))
	assert.Equal(t, "00:00,24:00", got.Get("time_range"))
	assert.Equal(t, "America/New_York", got.Get("timezone"))
	assert.Equal(t, "0", got.Get("favorites"))
	assert.Equal(t, "-1", got.Get("is_submitted"))
	assert.Equal(t, "0", got.Get("include_thumbnails"))
	assert.Equal(t, "1", got.Get("in_progress"))
	assert.Equal(t, "50", got.Get("limit"))
	assert.Equal(t, "start_time", got.Get("order_by"))
}

func TestFetchEvents_ExplicitAllSentinel(t *testing.T) {
	c := newTestClient(t, "http://h")
	registerVersion("0.16.0")

	var got url.Values
	httpmock.RegisterResponder("GET", `=~^http://h/api/events`,
		func(req *http.Request) (*http.Response, error) {
			got = req.URL.Query()
			return httpmock.NewStringResponse(200, "[]"), nil
		})

	_, err := c.FetchEvents(context.Background(), EventQuery{Camera: FilterAll, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "all", got.Get("cameras"))
	assert.Equal(t, "0", got.Get("in_progress"))
	assert.Equal(t, "10", got.Get("limit"))
	assert.Empty(t, got.Get("order_by"))
}

func TestFetchEvents_Non200(t *testing.T) {
	c := newTestClient(t, "http://h")
	registerVersion("0.16.0")
	httpmock.RegisterResponder("GET", `=~^http://h/api/events`,
		httpmock.NewStringResponder(502, "bad gateway"))

	_, err := c.FetchEvents(context.Background(), EventQuery{})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, 502, netErr.Status)
}

func TestFetchEvents_RetryAppliesGlobalFallback(t *testing.T) {
	c := newTestClient(t, "http://h")
	// The server claims 0.13, whose tier only accepts a bare array, but
	// actually answers with a wrapped object.
	registerVersion("0.13.5")
	httpmock.RegisterResponder("GET", `=~^http://h/api/events`,
		httpmock.NewStringResponder(200, `{"events":[`+eventJSON("r1")+`]}`))

	events, err := c.FetchEvents(context.Background(), EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].ID)

	// httpmock records each hit under both the matched responder key and
	// the exact URL key, so count only the events responder key.
	total := httpmock.GetCallCountInfo()[`GET =~^http://h/api/events`]
	assert.Equal(t, 2, total, "expected exactly one retry of the events request")
}

func TestFetchEvents_TerminalDecodingError(t *testing.T) {
	c := newTestClient(t, "http://h")
	registerVersion("0.16.0")
	body := `{"nothing":"useful"}`
	httpmock.RegisterResponder("GET", `=~^http://h/api/events`,
		httpmock.NewStringResponder(200, body))

	_, err := c.FetchEvents(context.Background(), EventQuery{})
	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, len(body), decErr.ByteLen)
}

func TestFetchCameras(t *testing.T) {
	c := newTestClient(t, "http://h")
	httpmock.RegisterResponder("GET", "http://h/api/config",
		httpmock.NewStringResponder(200, `{"cameras":{"yard":{},"front_door":{},"garage":{}},"mqtt":{}}`))

	cameras, err := c.FetchCameras(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"front_door", "garage", "yard"}, cameras)
}

func TestFetchCameras_MissingShape(t *testing.T) {
	c := newTestClient(t, "http://h")
	httpmock.RegisterResponder("GET", "http://h/api/config",
		httpmock.NewStringResponder(200, `{"mqtt":{}}`))

	cameras, err := c.FetchCameras(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cameras)
}

func TestFetchVersionString_SharesResolverCache(t *testing.T) {
	c := newTestClient(t, "http://h")
	registerVersion("0.15.2")
	httpmock.RegisterResponder("GET", `=~^http://h/api/events`,
		httpmock.NewStringResponder(200, "[]"))

	_, err := c.FetchEvents(context.Background(), EventQuery{})
	require.NoError(t, err)

	s, err := c.FetchVersionString(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.15.2", s)

	assert.Equal(t, 1, httpmock.GetCallCountInfo()[`GET =~/api/version$`])
}

func TestSetBaseURL_ResetsVersionCache(t *testing.T) {
	c := newTestClient(t, "http://h")
	registerVersion("0.15.2")
	_ = c.currentResolver().Resolve(context.Background())

	require.NoError(t, c.SetBaseURL("http://other"))
	assert.Equal(t, "http://other", c.BaseURL())

	httpmock.Reset()
	httpmock.RegisterResponder("GET", "http://other/api/version",
		httpmock.NewStringResponder(200, `{"version":"0.16.0"}`))
	assert.Equal(t, Version{0, 16, 0}, c.currentResolver().Resolve(context.Background()))

	// Same address is a no-op and keeps the cache.
	require.NoError(t, c.SetBaseURL("http://other/"))
	assert.Equal(t, Version{0, 16, 0}, c.currentResolver().Resolve(context.Background()))
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["GET http://other/api/version"])
}
