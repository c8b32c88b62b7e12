package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-eventfeed/internal/frigate"
)

func TestHubDeliversSnapshots(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	h.Broadcast(Snapshot{Completed: []frigate.Event{evt("e1", "front", "person")}})

	snap := <-ch
	require.Len(t, snap.Completed, 1)
	assert.Equal(t, "e1", snap.Completed[0].ID)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	for i := 0; i < subscriberBuffer+3; i++ {
		h.Broadcast(Snapshot{})
	}

	// The buffer holds what fit; the rest was dropped without blocking.
	assert.Len(t, ch, subscriberBuffer)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe()
	h.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	h.Unsubscribe(id)
}
