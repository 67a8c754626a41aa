// Package livereload notifies connected browsers over a websocket when files
// under the served root change.
package livereload

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nutriserve/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 8
)

// ScriptSuffix turns the socket path into the path of the browser client.
// A page opts in with <script src="/__livereload.js"></script>.
const ScriptSuffix = ".js"

// clientScript connects back to the host that served it, so pages loaded
// from another origin still reach this server.
const clientScript = `(function () {
  var src = new URL(document.currentScript.src);
  var url = (src.protocol === "https:" ? "wss://" : "ws://") + src.host + %s;
  function connect() {
    var ws = new WebSocket(url);
    ws.onmessage = function (ev) {
      try {
        if (JSON.parse(ev.data).type === "reload") location.reload();
      } catch (e) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`

// Message is the payload pushed to browsers
type Message struct {
	Type    string `json:"type"`
	Changed int    `json:"changed,omitempty"`
}

// Broadcaster receives change notifications from a Watcher
type Broadcaster interface {
	Broadcast(msg Message)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks websocket clients and fans out messages to them
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local development only; pages are loaded from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the browser goes away. Headers already set on w, such as the CORS header,
// are carried onto the 101 response. Plain requests for the socket path plus
// ScriptSuffix get the client script instead.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) && strings.HasSuffix(r.URL.Path, ScriptSuffix) {
		h.serveScript(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, w.Header().Clone())
	if err != nil {
		h.log.Debug("Websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) serveScript(w http.ResponseWriter, r *http.Request) {
	socketPath := strings.TrimSuffix(r.URL.Path, ScriptSuffix)
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, clientScript, strconv.Quote(socketPath))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Debug("Live reload client connected", map[string]interface{}{
		"clients": len(h.clients),
	})
	return true
}

// unregister must be called with h.mu held
func (h *Hub) unregister(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.unregister(c)
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast queues msg for every client. Clients that cannot keep up are
// dropped rather than blocking the sender.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode live reload message", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn("Dropping slow live reload client", nil)
			h.unregister(c)
		}
	}
}

// Clients returns the number of connected browsers
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.unregister(c)
	}
}
