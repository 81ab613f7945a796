package monitor

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// monitor is a localhost debugging surface
		return true
	},
}

const (
	writeWait    = 5 * time.Second
	pingInterval = 15 * time.Second
)

// Handler serves live monitor streams at
// GET /investigation/{id}/monitor
type Handler struct {
	hub *Hub
}

// NewHandler wraps a hub in an HTTP handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP upgrades the connection and streams frames until the client
// disconnects
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	investigationID := investigationIDFromPath(r.URL.Path)
	if investigationID == "" {
		http.Error(w, "investigation id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("monitor upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	frames, cancel := h.hub.Subscribe(investigationID)
	defer cancel()

	logging.Info("monitor client connected", "investigation_id", investigationID)

	// reads are only used to detect disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				logging.Debug("monitor write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// investigationIDFromPath extracts the id from
// /investigation/<id>/monitor
func investigationIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 3 && parts[0] == "investigation" && parts[2] == "monitor" {
		return parts[1]
	}
	return ""
}

// Serve starts a monitor server on addr; blocks until the listener
// fails
func Serve(addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.Handle("/investigation/", NewHandler(hub))
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 0,
	}
	logging.Info("monitor server listening", "addr", addr)
	return srv.ListenAndServe()
}
