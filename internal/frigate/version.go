package frigate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/antonholmquist/jason"

	"github.com/technosupport/ts-eventfeed/internal/metrics"
)

// FallbackVersion is assumed whenever the probe cannot determine the real
// server version. Chosen as the oldest tier with a plain-array event feed.
const FallbackVersion = "0.13.0"

var versionRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)`)

var versionScanRe = regexp.MustCompile(`"version"\s*:\s*"([^"]+)"`)

// Version is the server protocol version triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// ParseVersion extracts a leading MAJOR.MINOR.PATCH triple. Trailing
// suffixes ("0.14.1-ablec0") are tolerated.
func ParseVersion(s string) (Version, bool) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch}, true
}

// VersionResolver probes the remote server once and caches the result for
// the resolver's lifetime. Both the parse-decision triple and the raw
// display string come from the same probe, so the two call paths cannot
// disagree or duplicate network calls.
type VersionResolver struct {
	httpClient *http.Client
	baseURL    func() string

	mu       sync.Mutex
	resolved bool
	version  Version
	raw      string
	probeErr error
}

func NewVersionResolver(httpClient *http.Client, baseURL func() string) *VersionResolver {
	return &VersionResolver{httpClient: httpClient, baseURL: baseURL}
}

// Resolve returns the cached version, probing on first use. It never fails:
// an unreachable or unrecognizable server degrades to FallbackVersion.
func (r *VersionResolver) Resolve(ctx context.Context) Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked(ctx)
	return r.version
}

// RawString returns the raw probed version string for display. On a failed
// probe the fallback string is returned together with the probe error so
// the caller can decide whether to surface it.
func (r *VersionResolver) RawString(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked(ctx)
	return r.raw, r.probeErr
}

func (r *VersionResolver) resolveLocked(ctx context.Context) {
	if r.resolved {
		return
	}
	raw, err := r.probe(ctx)
	if err != nil {
		log.Printf("[DEBUG] Version probe failed, assuming %s: %v", FallbackVersion, err)
		metrics.VersionProbesTotal.WithLabelValues("fallback").Inc()
		r.version, _ = ParseVersion(FallbackVersion)
		r.raw = FallbackVersion
		r.probeErr = err
	} else {
		metrics.VersionProbesTotal.WithLabelValues("resolved").Inc()
		v, ok := ParseVersion(raw)
		if !ok {
			// Loose strategies can hand back strings like "v0.15"; those
			// still fall back rather than guessing.
			log.Printf("[DEBUG] Version probe returned unparseable %q, assuming %s", raw, FallbackVersion)
			v, _ = ParseVersion(FallbackVersion)
		}
		r.version = v
		r.raw = raw
	}
	r.resolved = true
}

// probe runs the strict fallback order against GET /api/version:
//  1. object field "version"
//  2. object fields "frigate_version", "server_version", "api_version"
//  3. body is itself a bare leading-triple string
//  4. regex scan over a re-serialized dump of the parsed JSON
func (r *VersionResolver) probe(ctx context.Context) (string, error) {
	endpoint := strings.TrimRight(r.baseURL(), "/") + "/api/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Err: err}
	}

	if obj, err := jason.NewObjectFromBytes(body); err == nil {
		if s, err := obj.GetString("version"); err == nil && s != "" {
			return s, nil
		}
		for _, key := range []string{"frigate_version", "server_version", "api_version"} {
			if s, err := obj.GetString(key); err == nil && s != "" {
				return s, nil
			}
		}
	}

	trimmed := strings.TrimSpace(string(body))
	trimmed = strings.Trim(trimmed, `"`)
	if versionRe.MatchString(trimmed) {
		return trimmed, nil
	}

	// Last resort: the version may be buried anywhere in the document.
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		dump, _ := json.Marshal(parsed)
		if m := versionScanRe.FindSubmatch(dump); m != nil {
			return string(m[1]), nil
		}
	}

	return "", fmt.Errorf("%w: version probe exhausted all strategies", ErrInvalidResponse)
}
