package remote

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type peer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (p *peer) send(m Message) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(m)
}

// Hub relays messages between WebSocket participants. A message is delivered
// to every participant except its sender. In-process subscribers receive
// what WebSocket peers send; Publish sends to the peers.
type Hub struct {
	mu     sync.RWMutex
	peers  map[*peer]struct{}
	subs   map[int]func(Message)
	nextID int
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		peers: make(map[*peer]struct{}),
		subs:  make(map[int]func(Message)),
	}
}

// ServeHTTP upgrades the request and relays messages until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	p := &peer{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.peers[p] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.peers, p)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("remote peer read error: %v", err)
			}
			return
		}
		if m.Type == "" {
			continue
		}
		h.relay(m, p)
	}
}

func (h *Hub) relay(m Message, from *peer) {
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		if p != from {
			targets = append(targets, p)
		}
	}
	var subs []func(Message)
	if from != nil {
		subs = make([]func(Message), 0, len(h.subs))
		for _, fn := range h.subs {
			subs = append(subs, fn)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.send(m); err != nil {
			log.Printf("remote send error: %v", err)
		}
	}
	for _, fn := range subs {
		fn(m)
	}
}

// Publish sends m to every connected peer.
func (h *Hub) Publish(m Message) {
	h.relay(m, nil)
}

// Subscribe registers fn for messages sent by peers and returns a function
// that removes it. fn runs on the sending peer's goroutine.
func (h *Hub) Subscribe(fn func(Message)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Peers returns the number of connected participants.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every peer and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.wmu.Lock()
		p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		p.wmu.Unlock()
		p.conn.Close()
	}
	return nil
}
