package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/cleanidoc/cleandoc/pkg/events"
	"github.com/gin-gonic/gin"
)

// streamEvents sends lifecycle events as server-sent events. replay=N
// first sends up to N buffered events. tenant and type narrow both the
// replay and the live stream.
func (s *Server) streamEvents(c *gin.Context) {
	if s.deps.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream is disabled"})
		return
	}
	replay, _ := strconv.Atoi(c.Query("replay"))
	filter := events.Filter{TenantID: c.Query("tenant")}
	for _, t := range c.QueryArray("type") {
		filter.Types = append(filter.Types, events.EventType(t))
	}

	sub := s.deps.Events.SubscribeFiltered(filter)
	defer s.deps.Events.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	if replay > 0 {
		for _, ev := range s.deps.Events.RecentFiltered(replay, filter) {
			c.SSEvent(string(ev.Type), ev)
		}
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}
