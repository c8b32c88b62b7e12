package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/technosupport/ts-eventfeed/internal/feed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

const wsWriteTimeout = 10 * time.Second

type FeedWsHandler struct {
	Feed Feed
	Hub  *feed.Hub
}

func NewFeedWsHandler(f Feed, hub *feed.Hub) *FeedWsHandler {
	return &FeedWsHandler{Feed: f, Hub: hub}
}

// ServeWS pushes a snapshot on connect and then one per committed feed
// change. The client sends nothing; its read side only signals close.
func (h *FeedWsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS Upgrade Failed: %v", err)
		return
	}
	defer conn.Close()

	id, updates := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(id)

	log.Printf("WS Connected: %s subscriber=%s", r.RemoteAddr, id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.writeSnapshot(conn, h.Feed.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := h.writeSnapshot(conn, snap); err != nil {
				log.Printf("WS Write Error: %v", err)
				return
			}
		}
	}
}

func (h *FeedWsHandler) writeSnapshot(conn *websocket.Conn, snap feed.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(snap)
}
