package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irgordon/vela/api/internal/telemetry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. We only stream OUT, so inbound
	// traffic is control frames only.
	maxMessageSize = 512
)

// This route sits behind the auth middleware, and the router's CORS layer
// has already validated the Origin header.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsHandler streams audit and reload events to the UI over a WebSocket.
type EventsHandler struct {
	Hub    *telemetry.Hub
	Logger *slog.Logger
}

func NewEventsHandler(hub *telemetry.Hub, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{Hub: hub, Logger: logger}
}

// Stream handles GET /api/v1/ws/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("failed to upgrade websocket connection", slog.String("error", err.Error()))
		return
	}

	events := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(events)

	// The read pump handles control frames and detects disconnects; the
	// write pump streams hub events until the client goes away.
	go h.readPump(ws)
	h.writePump(ws, events)
}

func (h *EventsHandler) writePump(ws *websocket.Conn, events <-chan []byte) {
	defer func() {
		ws.Close()
		h.Logger.Info("websocket write pump closed")
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-events:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) readPump(ws *websocket.Conn) {
	defer ws.Close()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Warn("websocket closed unexpectedly", slog.String("error", err.Error()))
			}
			break
		}
	}
}
