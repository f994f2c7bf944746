package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/snoezelen/internal/app"
	"github.com/ayusman/snoezelen/internal/detector"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// KeypointSource provides what the keypoints feed broadcasts.
type KeypointSource interface {
	Keypoints() []detector.Keypoint
	Status() app.Status
}

// KeypointsHandler broadcasts the latest keypoints, in camera pixels, to
// controller pages over WebSocket.
type KeypointsHandler struct {
	source  KeypointSource
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	done    chan struct{}
	once    sync.Once
}

// NewKeypointsHandler creates a KeypointsHandler and starts broadcasting.
func NewKeypointsHandler(source KeypointSource) *KeypointsHandler {
	h := &KeypointsHandler{
		source:  source,
		clients: make(map[*websocket.Conn]bool),
		done:    make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *KeypointsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *KeypointsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops broadcasting.
func (h *KeypointsHandler) Close() {
	h.once.Do(func() { close(h.done) })
}

type keypointsMessage struct {
	Keypoints []detector.Keypoint `json:"keypoints"`
	Active    bool                `json:"active"`
	Particles int                 `json:"particles"`
	Timestamp int64               `json:"timestamp"`
}

// broadcast sends keypoint data to all connected clients.
func (h *KeypointsHandler) broadcast() {
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			continue
		}

		kps := h.source.Keypoints()
		if kps == nil {
			kps = []detector.Keypoint{}
		}
		st := h.source.Status()
		msg, err := json.Marshal(keypointsMessage{
			Keypoints: kps,
			Active:    st.Active,
			Particles: st.Particles,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			continue
		}

		// the write lock keeps writes to one conn sequential
		h.mu.Lock()
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.WriteMessage(websocket.TextMessage, msg)
		}
		h.mu.Unlock()
	}
}
