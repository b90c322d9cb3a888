// Browser event stream.
//
//   - GET /events   (server-sent events: "state" and "toast")
//
// On connect every store's current state is sent as a "state" event, then
// changes and toasts stream as they happen. A comment heartbeat keeps idle
// proxies from closing the connection.
package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/edulead/enquirydesk/internal/realtime"
)

// EventSource is the hub contract consumed by the stream handler.
type EventSource interface {
	Subscribe() (<-chan realtime.Event, func())
}

// Snapshotter returns the current state events sent on connect.
type Snapshotter func() []realtime.StateEvent

// EventsHandler streams hub events to one browser per request.
type EventsHandler struct {
	hub       EventSource
	snapshot  Snapshotter
	heartbeat time.Duration
}

// NewEvents binds hub. heartbeat <= 0 uses 30s.
func NewEvents(hub EventSource, snapshot Snapshotter, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &EventsHandler{hub: hub, snapshot: snapshot, heartbeat: heartbeat}
}

// Stream godoc
// @Summary     Dashboard event stream
// @Description Server-sent events carrying slice snapshots ("state") and transient messages ("toast").
// @Tags        Events
// @Produce     text/event-stream
// @Success     200  {string}  string  "event stream"
// @Router      /events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	events, cancel := h.hub.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if h.snapshot != nil {
		for _, s := range h.snapshot() {
			c.Render(-1, sseEvent(0, realtime.EventState, s))
		}
	}
	c.Writer.Flush()

	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, open := <-events:
			if !open {
				return false
			}
			c.Render(-1, sseEvent(ev.ID, ev.Type, ev.Data))
			return true
		case <-tick.C:
			_, _ = io.WriteString(w, ": heartbeat\n\n")
			return true
		}
	})
}

func sseEvent(id uint64, event string, data any) sse.Event {
	ev := sse.Event{Event: event, Data: data}
	if id > 0 {
		ev.Id = strconv.FormatUint(id, 10)
	}
	return ev
}
