package websocket

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

type logCapture struct {
	mutex   sync.Mutex
	builder strings.Builder
	logged  chan struct{}
}

// captureLogs redirects logs to the returned capture until the test ends.
func captureLogs(t *testing.T) *logCapture {
	c := &logCapture{logged: make(chan struct{}, 1)}

	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		c.mutex.Lock()
		fmt.Fprint(&c.builder, e)
		c.mutex.Unlock()

		select {
		case c.logged <- struct{}{}:
		default:
		}
	})
	t.Cleanup(func() {
		logs.SetLogger(func(logs.Entry) {})
	})
	return c
}

func (c *logCapture) String() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.builder.String()
}

func TestHandlerWithLogsSummary(t *testing.T) {
	t.Run("counters are incremented", func(t *testing.T) {
		h := HandlerWithLogs(&RealtimeHandler{}, time.Minute).(*handlerWithLogs)
		defer h.Close()

		h.incCounter("ping_request")
		h.incCounter("ping_request")
		require.Equal(t, 2, h.counter["ping_request"])
	})

	t.Run("summary is tagged and resets counters", func(t *testing.T) {
		h := HandlerWithLogs(&RealtimeHandler{clientID: "client-42"}, time.Minute).(*handlerWithLogs)
		defer h.Close()
		h.regionID = "testx1"
		h.participantID = 3

		h.incCounter("region_query_request")
		h.incCounter("region_query_request")
		h.incCounter("entity_update_bounds")

		capture := captureLogs(t)
		h.logSummary()
		require.Empty(t, h.counter)

		out := capture.String()
		require.Contains(t, out, `"region_query_request":2`)
		require.Contains(t, out, `"entity_update_bounds":1`)
		require.Contains(t, out, fmt.Sprintf(`"%s":"client-42"`, logs.ClientIDTag))
		require.Contains(t, out, `"region_id":"testx1"`)
		require.Contains(t, out, `"participant_id":3`)
	})

	t.Run("empty summary is not logged", func(t *testing.T) {
		h := HandlerWithLogs(&RealtimeHandler{}, time.Minute).(*handlerWithLogs)
		defer h.Close()

		capture := captureLogs(t)
		h.logSummary()
		require.Empty(t, capture.String())
	})

	t.Run("summary worker logs periodically", func(t *testing.T) {
		capture := captureLogs(t)

		h := HandlerWithLogs(&RealtimeHandler{}, time.Millisecond).(*handlerWithLogs)
		defer h.Close()
		h.incCounter("ping_request")

		select {
		case <-capture.logged:
		case <-time.After(time.Second):
			t.Fatal("no summary logged")
		}
		require.Contains(t, capture.String(), "ping_request")
	})
}
