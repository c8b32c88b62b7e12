package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/technosupport/ts-eventfeed/internal/feed"
	"github.com/technosupport/ts-eventfeed/internal/frigate"
)

// Feed is the coordinator surface the HTTP layer reads from.
type Feed interface {
	Completed() []frigate.Event
	InProgress() []frigate.Event
	Snapshot() feed.Snapshot
	Refresh(ctx context.Context) error
}

// ServerInfo answers questions about the remote server itself.
type ServerInfo interface {
	FetchCameras(ctx context.Context) ([]string, error)
	FetchVersionString(ctx context.Context) (string, error)
}

// LaunchState tracks whether the daemon has ever been configured.
type LaunchState interface {
	FirstLaunch(ctx context.Context) (bool, error)
	ServerURL(ctx context.Context) (string, error)
}

type EventHandler struct {
	Feed   Feed
	Server ServerInfo
	State  LaunchState
}

func NewEventHandler(f Feed, s ServerInfo, st LaunchState) *EventHandler {
	return &EventHandler{Feed: f, Server: s, State: st}
}

// GET /api/v1/events
func (h *EventHandler) ListCompleted(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Feed.Completed())
}

// GET /api/v1/events/live
func (h *EventHandler) ListInProgress(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Feed.InProgress())
}

// POST /api/v1/refresh
func (h *EventHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Feed.Refresh(r.Context()); err != nil {
		log.Printf("[ERROR] API: manual refresh failed: %v", err)
		status := http.StatusBadGateway
		var netErr *frigate.NetworkError
		if errors.Is(err, frigate.ErrInvalidURL) {
			status = http.StatusUnprocessableEntity
		} else if errors.As(err, &netErr) && netErr.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.Feed.Snapshot())
}

// GET /api/v1/cameras
func (h *EventHandler) ListCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := h.Server.FetchCameras(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch cameras")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"cameras": cameras})
}

// GET /api/v1/server/version
func (h *EventHandler) ServerVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.Server.FetchVersionString(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to probe server version")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"version": version})
}

// GET /api/v1/healthz
func (h *EventHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	first, err := h.State.FirstLaunch(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	url, err := h.State.ServerURL(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"first_launch": first,
		"server_url":   url,
	})
}
