package bridge

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 4096
	sendBuffer   = 256
	messageWait  = 5 * time.Second
)

// Handler is the websocket endpoint for browser sessions. Each socket
// gets its own Session, torn down when the socket closes.
type Handler struct {
	cfg      Config
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

// NewHandler creates the endpoint. Cross-origin sockets are refused
// unless the origin is listed in origins; "*" allows any.
func NewHandler(cfg Config, origins []string, log *zap.Logger) *Handler {
	h := &Handler{cfg: cfg, log: log, clients: make(map[*client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if checkOrigin(r, origins) {
				return true
			}
			log.Warn("Rejected websocket from disallowed origin", zap.String("origin", r.Header.Get("Origin")))
			return false
		},
	}
	return h
}

func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type client struct {
	conn    *websocket.Conn
	session *Session
	send    chan Outbound
	log     *zap.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	c := &client{
		conn: conn,
		send: make(chan Outbound, sendBuffer),
		log:  h.log.With(zap.String("session", id)),
	}
	c.session = NewSession(id, h.cfg, c.push, h.log)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		h.wg.Done()
	}()

	go c.writePump()
	c.readPump()
}

// Close disconnects every open socket and waits for their sessions to
// quit. Sockets aren't tracked by http.Server once upgraded, so this has
// to run alongside server shutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// push queues a frame for the browser, dropping it if the browser has
// fallen too far behind.
func (c *client) push(f Outbound) {
	select {
	case c.send <- f:
	default:
		c.log.Warn("Browser too slow, dropping frame", zap.String("type", f.Type))
	}
}

func (c *client) readPump() {
	defer func() {
		// Stop the runtime before closing send so nothing emits into a
		// closed channel.
		c.session.Close()
		close(c.send)
		c.conn.Close()
		c.log.Info("Session closed")
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var in Inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket read failed", zap.Error(err))
			}
			return
		}
		c.handle(in)
	}
}

func (c *client) handle(in Inbound) {
	switch in.Type {
	case TypeStart:
		if err := c.session.Start(in); err != nil {
			c.log.Warn("Start ignored", zap.Error(err))
		}
	case TypeMessage:
		ctx, cancel := context.WithTimeout(context.Background(), messageWait)
		defer cancel()
		if err := c.session.Message(ctx, in.Text); err != nil {
			c.log.Warn("Message not sent", zap.Error(err))
		}
	default:
		c.log.Debug("Unknown frame type", zap.String("type", in.Type))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
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
