package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-eventfeed/internal/facets"
	"github.com/technosupport/ts-eventfeed/internal/frigate"
	"github.com/technosupport/ts-eventfeed/internal/metrics"
)

// Repository is the slice of the API client the coordinator drives.
type Repository interface {
	FetchEvents(ctx context.Context, q frigate.EventQuery) ([]frigate.Event, error)
	FetchCameras(ctx context.Context) ([]string, error)
	SetBaseURL(raw string) error
}

// FacetTracker receives observed facet values and answers the current
// selection for filtering.
type FacetTracker interface {
	MergeObserved(ctx context.Context, events []frigate.Event)
	MergeCameras(ctx context.Context, names []string)
	Selection() facets.Selection
	Snapshot() facets.State
}

// AddressSource yields the currently configured server address; the manual
// refresh re-synchronizes the repository against it.
type AddressSource interface {
	ServerURL(ctx context.Context) (string, error)
}

// Publisher receives events observed transitioning to completed. Optional.
type Publisher interface {
	PublishFinished(e *frigate.Event) error
}

// Broadcaster receives a feed snapshot after every committed change.
// Optional.
type Broadcaster interface {
	Broadcast(s Snapshot)
}

// Snapshot is the filtered view handed to subscribers and HTTP handlers.
type Snapshot struct {
	Completed  []frigate.Event `json:"completed"`
	InProgress []frigate.Event `json:"in_progress"`
	Facets     facets.State    `json:"facets"`
}

type Config struct {
	CompletedInterval  time.Duration
	InProgressInterval time.Duration
	// ReconcileDelay spaces the extra completed fetch triggered by a
	// finished event, giving the server time to index the completion.
	ReconcileDelay time.Duration
	// RefreshPacing is the fixed delay at the start of a manual refresh.
	// UX pacing only, no correctness attached.
	RefreshPacing time.Duration
	TimeBudget    time.Duration
	Limit         int
}

func (c *Config) fillDefaults() {
	if c.CompletedInterval <= 0 {
		c.CompletedInterval = 30 * time.Second
	}
	if c.InProgressInterval <= 0 {
		c.InProgressInterval = 2 * time.Second
	}
	if c.ReconcileDelay <= 0 {
		c.ReconcileDelay = time.Second
	}
	if c.RefreshPacing <= 0 {
		c.RefreshPacing = 300 * time.Millisecond
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = 15 * time.Second
	}
	if c.Limit <= 0 {
		c.Limit = frigate.DefaultLimit
	}
}

// Coordinator owns the two polling streams and the reconciliation between
// them. The streams are independent and may overlap in flight; there is
// deliberately no single-flight guard, matching last-write-wins semantics,
// but every commit to the working sets is serialized under one mutex so
// readers never observe torn state.
type Coordinator struct {
	repo   Repository
	facets FacetTracker
	addr   AddressSource
	pub    Publisher
	hub    Broadcaster
	cfg    Config

	mu         sync.RWMutex
	completed  []frigate.Event
	inProgress []frigate.Event

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewCoordinator(repo Repository, tracker FacetTracker, addr AddressSource, pub Publisher, hub Broadcaster, cfg Config) *Coordinator {
	cfg.fillDefaults()
	return &Coordinator{
		repo:     repo,
		facets:   tracker,
		addr:     addr,
		pub:      pub,
		hub:      hub,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start launches the two polling loops.
func (c *Coordinator) Start() {
	c.wg.Add(2)
	go c.runLoop(c.cfg.CompletedInterval, c.pollCompleted)
	go c.runLoop(c.cfg.InProgressInterval, c.pollInProgress)
}

func (c *Coordinator) Stop() {
	close(c.stopChan)
	c.wg.Wait()
}

func (c *Coordinator) runLoop(interval time.Duration, poll func(ctx context.Context)) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TimeBudget)
			poll(ctx)
			cancel()
		}
	}
}

// pollCompleted replaces the completed working set unconditionally and
// merges facets. Background failures are logged and swallowed: stale data
// beats an error state on a timer tick.
func (c *Coordinator) pollCompleted(ctx context.Context) {
	events, err := c.repo.FetchEvents(ctx, frigate.EventQuery{Limit: c.cfg.Limit})
	if err != nil {
		log.Printf("[ERROR] Feed: completed poll failed: %v", err)
		metrics.PollsTotal.WithLabelValues("completed", "fail").Inc()
		return
	}
	metrics.PollsTotal.WithLabelValues("completed", "success").Inc()

	c.mu.Lock()
	c.completed = events
	c.mu.Unlock()
	metrics.WorkingSetSize.WithLabelValues("completed").Set(float64(len(events)))

	c.facets.MergeObserved(ctx, events)
	c.broadcast()
}

// pollInProgress replaces the in-progress working set and reconciles
// against the previous one: ids that vanished have finished server-side,
// and the server never signals that transition explicitly. Each finish
// triggers one extra out-of-band completed fetch after a short delay so
// the event shows up promptly instead of waiting for the slow timer.
func (c *Coordinator) pollInProgress(ctx context.Context) {
	c.mu.RLock()
	previous := make(map[string]frigate.Event, len(c.inProgress))
	for _, e := range c.inProgress {
		previous[e.ID] = e
	}
	c.mu.RUnlock()

	events, err := c.repo.FetchEvents(ctx, frigate.EventQuery{Limit: c.cfg.Limit, InProgress: true})
	if err != nil {
		log.Printf("[ERROR] Feed: in-progress poll failed: %v", err)
		metrics.PollsTotal.WithLabelValues("in_progress", "fail").Inc()
		return
	}
	metrics.PollsTotal.WithLabelValues("in_progress", "success").Inc()

	c.mu.Lock()
	c.inProgress = events
	c.mu.Unlock()
	metrics.WorkingSetSize.WithLabelValues("in_progress").Set(float64(len(events)))

	c.facets.MergeObserved(ctx, events)

	current := make(map[string]struct{}, len(events))
	for _, e := range events {
		current[e.ID] = struct{}{}
	}
	var finished []frigate.Event
	for id, e := range previous {
		if _, stillOpen := current[id]; !stillOpen {
			finished = append(finished, e)
		}
	}

	if len(finished) > 0 {
		metrics.FinishedEventsTotal.Add(float64(len(finished)))
		c.publishFinished(finished)
		c.scheduleReconcileFetch()
	}
	c.broadcast()
}

func (c *Coordinator) publishFinished(finished []frigate.Event) {
	if c.pub == nil {
		for i := range finished {
			log.Printf("[DEBUG] Feed: event %s finished (no publisher configured)", finished[i].ID)
		}
		return
	}
	for i := range finished {
		if err := c.pub.PublishFinished(&finished[i]); err != nil {
			log.Printf("[ERROR] Feed: publishing finished event %s: %v", finished[i].ID, err)
		}
	}
}

// scheduleReconcileFetch fires one extra completed fetch outside the slow
// timer. Fire-and-forget: it may race the scheduled poll, and whichever
// commit lands last wins.
func (c *Coordinator) scheduleReconcileFetch() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.stopChan:
			return
		case <-time.After(c.cfg.ReconcileDelay):
		}
		metrics.PollsTotal.WithLabelValues("reconcile", "fired").Inc()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TimeBudget)
		defer cancel()
		c.pollCompleted(ctx)
	}()
}

// Refresh is the user-triggered path (pull-to-refresh, first load). Unlike
// the background ticks it surfaces failures to the caller. The in-progress
// fetch here does not run reconciliation, so a refresh cannot double-fetch
// the completed list.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if url, err := c.addr.ServerURL(ctx); err != nil {
		return fmt.Errorf("reading server address: %w", err)
	} else if url != "" {
		if err := c.repo.SetBaseURL(url); err != nil {
			return fmt.Errorf("applying server address: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.RefreshPacing):
	}

	completed, err := c.repo.FetchEvents(ctx, frigate.EventQuery{Limit: c.cfg.Limit})
	if err != nil {
		return fmt.Errorf("fetching events: %w", err)
	}
	c.mu.Lock()
	c.completed = completed
	c.mu.Unlock()
	metrics.WorkingSetSize.WithLabelValues("completed").Set(float64(len(completed)))
	c.facets.MergeObserved(ctx, completed)

	inProgress, err := c.repo.FetchEvents(ctx, frigate.EventQuery{Limit: c.cfg.Limit, InProgress: true})
	if err != nil {
		return fmt.Errorf("fetching live events: %w", err)
	}
	c.mu.Lock()
	c.inProgress = inProgress
	c.mu.Unlock()
	metrics.WorkingSetSize.WithLabelValues("in_progress").Set(float64(len(inProgress)))
	c.facets.MergeObserved(ctx, inProgress)

	cameras, err := c.repo.FetchCameras(ctx)
	if err != nil {
		return fmt.Errorf("fetching cameras: %w", err)
	}
	c.facets.MergeCameras(ctx, cameras)

	c.broadcast()
	return nil
}

// Completed returns the completed working set filtered by the current
// selection. Pure and recomputed on every call.
func (c *Coordinator) Completed() []frigate.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filter(c.completed, c.facets.Selection())
}

// InProgress returns the filtered in-progress working set.
func (c *Coordinator) InProgress() []frigate.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filter(c.inProgress, c.facets.Selection())
}

// Snapshot bundles both filtered sets with the facet state.
func (c *Coordinator) Snapshot() Snapshot {
	sel := c.facets.Selection()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Completed:  filter(c.completed, sel),
		InProgress: filter(c.inProgress, sel),
		Facets:     c.facets.Snapshot(),
	}
}

func (c *Coordinator) broadcast() {
	if c.hub == nil {
		return
	}
	c.hub.Broadcast(c.Snapshot())
}

func filter(events []frigate.Event, sel facets.Selection) []frigate.Event {
	out := make([]frigate.Event, 0, len(events))
	for i := range events {
		if sel.Matches(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}
