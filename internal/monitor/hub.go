package monitor

import (
	"sync"
	"time"
)

// Frame is one monitor event pushed to websocket subscribers
type Frame struct {
	InvestigationID string    `json:"investigation_id"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	Payload         any       `json:"payload"`
}

// Frame types emitted over an investigation's lifetime
const (
	FrameAudit       = "audit"
	FrameRouting     = "routing"
	FrameSafety      = "safety"
	FrameAgentResult = "agent_result"
	FrameToolResult  = "tool_result"
	FrameCompletion  = "completion"
)

const subscriberBuffer = 64

// Hub fans frames out to per-investigation subscribers. Emit never
// blocks; a subscriber whose buffer is full loses the frame.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Frame]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Frame]struct{}{}}
}

// Emit publishes a frame to every subscriber of the investigation
func (h *Hub) Emit(investigationID, frameType string, payload any) {
	frame := Frame{
		InvestigationID: investigationID,
		Type:            frameType,
		Timestamp:       time.Now().UTC(),
		Payload:         payload,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[investigationID] {
		select {
		case ch <- frame:
		default:
			// slow subscriber, frame dropped
		}
	}
}

// Subscribe registers a listener for one investigation's frames. The
// returned cancel func must be called exactly once.
func (h *Hub) Subscribe(investigationID string) (<-chan Frame, func()) {
	ch := make(chan Frame, subscriberBuffer)

	h.mu.Lock()
	if h.subs[investigationID] == nil {
		h.subs[investigationID] = map[chan Frame]struct{}{}
	}
	h.subs[investigationID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[investigationID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, investigationID)
			}
		}
		close(ch)
	}
	return ch, cancel
}

// SubscriberCount reports active subscribers for an investigation
func (h *Hub) SubscriberCount(investigationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[investigationID])
}
