// Package wsfanout adapts the Telemetry fan-out (§4.9) to WebSocket
// transport, directly generalizing the teacher's
// internal/websocket-hub.Hub/Client pair: a per-connection send
// channel drained by a writePump goroutine, registered with and
// unregistered from the shared fan-out instead of a bespoke
// broadcast channel.
package wsfanout

import (
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"module/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one WebSocket observer registered with a telemetry.Fanout.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	alive atomic.Bool
}

// Send implements telemetry.Observer. It never blocks: a client whose
// send buffer is full gets an error back, and the fan-out drops it once
// the current broadcast's iteration completes, consistent with §4.6's "backpressure: snapshots are best-effort; if
// an observer blocks, it is dropped, not awaited".
func (c *Client) Send(payload []byte) error {
	if !c.alive.Load() {
		return errClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errFull
	}
}

// IsAlive implements telemetry.Observer.
func (c *Client) IsAlive() bool { return c.alive.Load() }

func (c *Client) writePump(errLog *log.Logger) {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.alive.Store(false)
			if errLog != nil {
				errLog.Printf("wsfanout: write failed, closing client: %s\n", err.Error())
			}
			return
		}
	}
}

// readPump discards inbound traffic but is required so gorilla/websocket
// notices the peer closing the connection (matches teacher's
// minimal-reader pattern for detecting disconnects).
func (c *Client) readPump(fanout *telemetry.Fanout) {
	defer func() {
		c.alive.Store(false)
		fanout.Unregister(c)
		close(c.send)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers each as a telemetry.Fanout observer.
type Handler struct {
	fanout  *telemetry.Fanout
	infoLog *log.Logger
	errLog  *log.Logger
}

// NewHandler constructs a Handler bound to fanout.
func NewHandler(fanout *telemetry.Fanout, infoLog, errLog *log.Logger) *Handler {
	return &Handler{fanout: fanout, infoLog: infoLog, errLog: errLog}
}

// ServeHTTP implements http.Handler: it upgrades the connection, sends
// the current backlog, then forwards every subsequent broadcast (§4.9,
// §9's "send one summary message, then forward every subsequent
// broadcast").
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.errLog != nil {
			h.errLog.Printf("wsfanout: upgrade failed: %s\n", err.Error())
		}
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 16)}
	client.alive.Store(true)

	backlog := h.fanout.GetBacklog()
	if payload, err := json.Marshal(backlog); err == nil {
		client.send <- payload
	}

	h.fanout.Register(client)
	go client.writePump(h.errLog)
	go client.readPump(h.fanout)

	if h.infoLog != nil {
		h.infoLog.Println("wsfanout: registered new websocket client")
	}
}

type fanoutError string

func (e fanoutError) Error() string { return string(e) }

const (
	errClosed = fanoutError("wsfanout: client connection closed")
	errFull   = fanoutError("wsfanout: client send buffer full")
)
