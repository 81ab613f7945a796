package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub()

	a, cancelA := hub.Subscribe("inv-1")
	b, cancelB := hub.Subscribe("inv-1")
	other, cancelOther := hub.Subscribe("inv-2")
	defer cancelOther()

	hub.Emit("inv-1", FrameAudit, map[string]any{"event": "started"})

	for _, ch := range []<-chan Frame{a, b} {
		select {
		case frame := <-ch:
			assert.Equal(t, "inv-1", frame.InvestigationID)
			assert.Equal(t, FrameAudit, frame.Type)
		case <-time.After(time.Second):
			t.Fatal("frame not delivered")
		}
	}

	select {
	case <-other:
		t.Fatal("frame leaked across investigations")
	default:
	}

	cancelA()
	cancelB()
	assert.Equal(t, 0, hub.SubscriberCount("inv-1"))
}

func TestHubEmitNeverBlocks(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("inv-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Emit("inv-1", FrameRouting, map[string]any{"i": i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestInvestigationIDFromPath(t *testing.T) {
	assert.Equal(t, "abc", investigationIDFromPath("/investigation/abc/monitor"))
	assert.Equal(t, "", investigationIDFromPath("/investigation/abc"))
	assert.Equal(t, "", investigationIDFromPath("/health"))
}

func TestHandlerStreamsFrames(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/investigation/inv-9/monitor"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	// subscription happens inside the handler goroutine
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("inv-9") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Emit("inv-9", FrameCompletion, map[string]any{"status": "COMPLETED"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameCompletion, frame.Type)
	assert.Equal(t, "inv-9", frame.InvestigationID)
}

func TestHandlerRejectsBadPath(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/investigation/monitor")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
