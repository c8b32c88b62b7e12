package facets

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/technosupport/ts-eventfeed/internal/frigate"
	"github.com/technosupport/ts-eventfeed/internal/settings"
)

// Persistence is the slice of the settings store the tracker needs.
type Persistence interface {
	Available(ctx context.Context, facet string) ([]string, error)
	AddAvailable(ctx context.Context, facet string, values ...string) error
	Selected(ctx context.Context, facet string) ([]string, error)
	SetSelected(ctx context.Context, facet string, values []string) error
}

var facetKeys = []string{settings.KeyLabels, settings.KeyZones, settings.KeyCameras}

// Selection is an immutable snapshot of the three user selection sets. An
// empty set means "no filter for that facet", not "exclude everything".
type Selection struct {
	Labels  map[string]struct{}
	Zones   map[string]struct{}
	Cameras map[string]struct{}
}

// Matches applies the three facet filters. Each empty selection passes
// vacuously; an event with no zones never matches a non-empty zone
// selection.
func (s Selection) Matches(e *frigate.Event) bool {
	if len(s.Labels) > 0 {
		if _, ok := s.Labels[e.Label]; !ok {
			return false
		}
	}
	if len(s.Cameras) > 0 {
		if _, ok := s.Cameras[e.Camera]; !ok {
			return false
		}
	}
	if len(s.Zones) > 0 {
		hit := false
		for _, z := range e.Zones {
			if _, ok := s.Zones[z]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// State is the JSON-facing snapshot of available and selected values.
type State struct {
	Available map[string][]string `json:"available"`
	Selected  map[string][]string `json:"selected"`
}

// Tracker learns the possible filter values from observed events and merges
// them into the persisted available sets. Selections change only by
// explicit user action. Available sets grow monotonically; only the
// selection can be shrunk, never the learned values.
type Tracker struct {
	store Persistence

	mu        sync.RWMutex
	available map[string]map[string]struct{}
	selected  map[string]map[string]struct{}
}

func NewTracker(store Persistence) *Tracker {
	t := &Tracker{
		store:     store,
		available: make(map[string]map[string]struct{}),
		selected:  make(map[string]map[string]struct{}),
	}
	for _, key := range facetKeys {
		t.available[key] = make(map[string]struct{})
		t.selected[key] = make(map[string]struct{})
	}
	return t
}

// Load initializes the in-memory mirror from persisted state. Called once
// at startup before any merge.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range facetKeys {
		avail, err := t.store.Available(ctx, key)
		if err != nil {
			return fmt.Errorf("load available %s: %w", key, err)
		}
		sel, err := t.store.Selected(ctx, key)
		if err != nil {
			return fmt.Errorf("load selected %s: %w", key, err)
		}
		t.available[key] = toSet(avail)
		t.selected[key] = toSet(sel)
	}
	return nil
}

// MergeObserved unions the facet values seen in a fetched batch into the
// available sets. Persistence is touched only when a set actually grew, so
// re-merging the same batch is write-free.
func (t *Tracker) MergeObserved(ctx context.Context, events []frigate.Event) {
	observed := map[string]map[string]struct{}{
		settings.KeyLabels:  {},
		settings.KeyZones:   {},
		settings.KeyCameras: {},
	}
	for i := range events {
		e := &events[i]
		if e.Label != "" {
			observed[settings.KeyLabels][e.Label] = struct{}{}
		}
		if e.Camera != "" {
			observed[settings.KeyCameras][e.Camera] = struct{}{}
		}
		for _, z := range e.Zones {
			if z != "" {
				observed[settings.KeyZones][z] = struct{}{}
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range facetKeys {
		var fresh []string
		for v := range observed[key] {
			if _, known := t.available[key][v]; !known {
				fresh = append(fresh, v)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		if err := t.store.AddAvailable(ctx, key, fresh...); err != nil {
			// Persistence is best effort here; the in-memory set still
			// grows so filtering keeps working this session.
			log.Printf("[ERROR] FacetTracker: persisting %s failed: %v", key, err)
		}
		for _, v := range fresh {
			t.available[key][v] = struct{}{}
		}
	}
}

// MergeCameras folds a fetched camera name list into the camera facet, for
// callers that learn cameras from the server config rather than from events.
func (t *Tracker) MergeCameras(ctx context.Context, names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fresh []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, known := t.available[settings.KeyCameras][name]; !known {
			fresh = append(fresh, name)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := t.store.AddAvailable(ctx, settings.KeyCameras, fresh...); err != nil {
		log.Printf("[ERROR] FacetTracker: persisting cameras failed: %v", err)
	}
	for _, name := range fresh {
		t.available[settings.KeyCameras][name] = struct{}{}
	}
}

// SetSelected replaces one facet's selection and persists it immediately.
func (t *Tracker) SetSelected(ctx context.Context, facet string, values []string) error {
	if !validFacet(facet) {
		return fmt.Errorf("unknown facet %q", facet)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.SetSelected(ctx, facet, values); err != nil {
		return fmt.Errorf("persist selection %s: %w", facet, err)
	}
	t.selected[facet] = toSet(values)
	return nil
}

// Selection returns a copy safe to use without holding the tracker's lock.
func (t *Tracker) Selection() Selection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Selection{
		Labels:  copySet(t.selected[settings.KeyLabels]),
		Zones:   copySet(t.selected[settings.KeyZones]),
		Cameras: copySet(t.selected[settings.KeyCameras]),
	}
}

// Snapshot returns the full facet state with sorted values.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := State{
		Available: make(map[string][]string, len(facetKeys)),
		Selected:  make(map[string][]string, len(facetKeys)),
	}
	for _, key := range facetKeys {
		s.Available[key] = sortedKeys(t.available[key])
		s.Selected[key] = sortedKeys(t.selected[key])
	}
	return s
}

func validFacet(facet string) bool {
	for _, key := range facetKeys {
		if facet == key {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func copySet(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src))
	for v := range src {
		dst[v] = struct{}{}
	}
	return dst
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
