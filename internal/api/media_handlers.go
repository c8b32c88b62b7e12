package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-eventfeed/internal/frigate"
	"github.com/technosupport/ts-eventfeed/internal/metrics"
)

var (
	eventIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]{1,64}$`)

	allowedMedia = map[string]bool{
		frigate.MediaThumbnail: true,
		frigate.MediaSnapshot:  true,
		frigate.MediaClip:      true,
	}
)

// MediaFetcher opens media streams against the remote server.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, eventID, kind, rangeHeader string) (*http.Response, error)
}

type cachedImage struct {
	data        []byte
	contentType string
}

// MediaHandler proxies event media. Thumbnails are small and immutable per
// event id, so they sit in an LRU; snapshots and clips stream through.
type MediaHandler struct {
	fetcher MediaFetcher
	thumbs  *lru.Cache[string, cachedImage]
}

func NewMediaHandler(f MediaFetcher, thumbCacheSize int) *MediaHandler {
	if thumbCacheSize <= 0 {
		thumbCacheSize = 256
	}
	c, _ := lru.New[string, cachedImage](thumbCacheSize)
	return &MediaHandler{fetcher: f, thumbs: c}
}

// GET /api/v1/events/{id}/{media}
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind := chi.URLParam(r, "media")

	if !eventIDRegex.MatchString(id) || !allowedMedia[kind] {
		respondError(w, http.StatusBadRequest, "Invalid media request")
		return
	}

	if kind == frigate.MediaThumbnail {
		if img, ok := h.thumbs.Get(id); ok {
			metrics.ThumbnailCache.WithLabelValues("hit").Inc()
			w.Header().Set("Content-Type", img.contentType)
			w.Write(img.data)
			return
		}
		metrics.ThumbnailCache.WithLabelValues("miss").Inc()
	}

	resp, err := h.fetcher.FetchMedia(r.Context(), id, kind, r.Header.Get("Range"))
	if err != nil {
		log.Printf("[ERROR] Media: fetching %s for event %s: %v", kind, id, err)
		respondError(w, http.StatusBadGateway, "media unavailable")
		return
	}
	defer resp.Body.Close()

	if kind == frigate.MediaThumbnail {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			respondError(w, http.StatusBadGateway, "media unavailable")
			return
		}
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = "image/jpeg"
		}
		h.thumbs.Add(id, cachedImage{data: data, contentType: ct})
		w.Header().Set("Content-Type", ct)
		w.Write(data)
		return
	}

	for _, header := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(header); v != "" {
			w.Header().Set(header, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
