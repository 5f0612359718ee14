// Cardbox Showdown Game
//
// Players join a shared room by code and are each dealt two cards,
// face down to everyone else. The host starts and ends rounds; players
// may forfeit a round at any time. Disconnected players keep their
// seat and hand for a grace period and can reconnect with the same
// player ID.
//
// Features:
// - One WebSocket endpoint: /path/ws, events routed by room code
// - Room creator becomes host; host authority over start/end
// - Stable client-supplied player IDs survive reconnects
// - Hands are private: each player only ever sees their own cards
// - Disconnect grace period before a seat is given up
// - Duplicate display names rejected against connected players only
// - Rooms auto-reaped after configurable idle timeout
// - Random 6-char room codes via crypto/rand, with collision check
// - In-browser QR button to share a room, backed by go-qrcode

package main

import (
	_ "embed"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection. A player's identity is the
// client-supplied player ID carried in events; the connection handle
// itself is transient and gets a fresh connID per socket.
type Client struct {
	conn   *websocket.Conn
	send   chan any
	connID string

	// Bound after a successful create/join; only the read pump
	// touches these.
	session  *Session
	playerID string
}

// trySend queues a message for the write pump without blocking. Sends
// are fire-and-forget: a stale or backed-up connection just misses the
// message.
func (c *Client) trySend(msg any) {
	if c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(err error) {
	c.trySend(ErrorMessage{
		Type:    "error",
		Message: err.Error(),
	})
}

func serveWSForRegistry(cfg *Config, registry *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:   conn,
			send:   make(chan any, 8),
			connID: uuid.NewString(),
		}

		go client.writePump()
		client.readPump(cfg, registry)
	}
}

func (c *Client) readPump(cfg *Config, registry *RoomRegistry) {
	defer func() {
		if c.session != nil {
			c.session.disconnect(c.playerID, c)
		}
		close(c.send)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msg.PlayerID == "" {
			continue
		}

		switch msg.Type {
		case "create_room":
			if msg.PlayerName == "" || c.session != nil {
				continue
			}
			c.session = registry.createRoom(c, msg.PlayerID, msg.PlayerName)
			c.playerID = msg.PlayerID

		case "join_room":
			if msg.PlayerName == "" || c.session != nil {
				continue
			}
			session := registry.lookup(msg.RoomCode)
			if session == nil {
				c.sendError(errRoomNotFound)
				continue
			}
			if err := session.join(c, msg.PlayerID, msg.PlayerName); err != nil {
				c.sendError(err)
				continue
			}
			c.session = session
			c.playerID = msg.PlayerID

		case "start":
			session := registry.lookup(msg.RoomCode)
			if session == nil {
				c.sendError(errRoomNotFound)
				continue
			}
			if err := session.start(msg.PlayerID); err != nil {
				c.sendError(err)
			}

		case "end":
			session := registry.lookup(msg.RoomCode)
			if session == nil {
				c.sendError(errRoomNotFound)
				continue
			}
			if err := session.end(msg.PlayerID); err != nil {
				c.sendError(err)
			}

		case "die":
			session := registry.lookup(msg.RoomCode)
			if session == nil {
				c.sendError(errRoomNotFound)
				continue
			}
			if err := session.forfeit(msg.PlayerID); err != nil {
				c.sendError(err)
			}

		case "leave_room":
			session := registry.lookup(msg.RoomCode)
			if session == nil {
				c.sendError(errRoomNotFound)
				continue
			}
			// A connection may only vacate its own seat. Anything
			// else would leave this socket bound to a seat the
			// session still broadcasts to.
			if session != c.session || msg.PlayerID != c.playerID {
				continue
			}
			session.leave(c.playerID)
			c.session = nil
			c.playerID = ""
			c.trySend(LeftRoomMessage{Type: "left_room"})

		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code pointing at the client page for
// an existing room, using go-qrcode.
func qrHandler(cfg *Config, path string, registry *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomCode := ps.ByName("roomcode")
		if roomCode == "" || registry.lookup(roomCode) == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + path + "?room=" + roomCode

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed showdown/index.html
var indexHTML []byte

//go:embed showdown/app.css
var showdownCSS []byte

//go:embed showdown/app.js
var showdownJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(showdownCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(showdownJS)
	}
}

// registerShowdownGame sets up routes so that:
//   - $path                   → HTML client (reads ?room= to prefill a code)
//   - $path/ws                → WebSocket carrying all game events
//   - $path/qr/:roomcode      → PNG QR code for joining that room
func registerShowdownGame(cfg *Config, path string, mux *httprouter.Router, registry *RoomRegistry) {
	path = strings.TrimSuffix(path, "/")

	// Client view (HTML)
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	// Shared assets
	mux.GET(cfg.prefix+"/assets/showdown/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/showdown/app.js", getJsHandler(cfg))

	// All rooms share one websocket
	mux.GET(cfg.prefix+path+"/ws", serveWSForRegistry(cfg, registry))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/qr/:roomcode", qrHandler(cfg, path, registry))
}
