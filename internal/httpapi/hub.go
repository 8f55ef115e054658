// internal/httpapi/hub.go
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mightywatt/internal/poller"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamBacklog      = 8
)

// Hub streams every poll result to connected websocket clients as JSON.
type Hub struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu      sync.Mutex
	streams map[chan []byte]struct{}
	closed  bool
}

// tickMessage is one streamed frame: a snapshot or the tick error.
type tickMessage struct {
	Status any    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		// bench tool on a local network; any origin may watch
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log.WithField("component", "websocket"),
		streams:  make(map[chan []byte]struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// Observe runs on the poller goroutine: encode once, never block.
// A client whose backlog is full misses the frame.
func (h *Hub) Observe(res poller.PollResult) {
	msg := tickMessage{Status: res.Snapshot}
	if res.Err != nil {
		msg = tickMessage{Error: res.Err.Error()}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warnf("marshal: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.streams {
		select {
		case ch <- data:
		default:
		}
	}
}

// Stop disconnects every client; later upgrades are refused.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.streams {
		close(ch)
		delete(h.streams, ch)
	}
}

func (h *Hub) attach() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, streamBacklog)
	h.streams[ch] = struct{}{}
	return ch, true
}

func (h *Hub) detach(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[ch]; ok {
		delete(h.streams, ch)
		close(ch)
	}
}

// ServeWS upgrades the request and streams until either side goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debugf("upgrade: %v", err)
		return
	}

	ch, ok := h.attach()
	if !ok {
		conn.Close()
		return
	}

	// clients only listen; reading handles control frames and notices
	// the close
	go func() {
		defer h.detach(ch)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer conn.Close()
		for data := range ch {
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debugf("write: %v", err)
				return
			}
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	}()
}
