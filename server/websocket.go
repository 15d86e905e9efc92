package server

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meigma/pak/entity"
)

// writeWait bounds each WebSocket write.
const writeWait = 10 * time.Second

// Events sent on /ws/entities.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Message is one event sent to a WebSocket client.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ScanComplete is the data of the EventComplete message.
type ScanComplete struct {
	Stats entity.Stats `json:"stats"`
}

type websocketUpgrader = websocket.Upgrader

// newWebsocketUpgrader accepts same-origin clients and the given origins.
func newWebsocketUpgrader(origins []string) *websocketUpgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if slices.Contains(origins, origin) || slices.Contains(origins, "*") {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// handleEntityScanWS runs an entity scan and streams its progress. The
// connection closes after the complete or error message. A client that
// disconnects cancels the scan.
func (h *handlers) handleEntityScanWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	defer conn.Close()

	h.metrics.WebsocketOpened()
	defer h.metrics.WebsocketClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg Message) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // reported by WriteJSON
		if err := conn.WriteJSON(msg); err != nil {
			cancel()
			return false
		}
		return true
	}

	records, err := h.explorer.Entities().ScanAllMaps(ctx, func(p entity.Progress) {
		send(Message{Event: EventProgress, Data: p})
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Debug("entity scan stream ended", "error", err)
		}
		send(Message{Event: EventError, Data: err.Error()})
		return
	}
	if !send(Message{Event: EventComplete, Data: ScanComplete{Stats: entity.ComputeStats(records)}}) {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best-effort close handshake
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
