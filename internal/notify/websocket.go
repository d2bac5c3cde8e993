package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// WebSocketHub is a Channel that streams a player's notifications to every
// websocket that player has open.
type WebSocketHub struct {
	originPatterns []string

	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
}

type subscriber struct {
	msgs chan Notification
}

// NewWebSocketHub creates a hub. originPatterns are passed to the websocket
// handshake; an empty list only accepts same-origin connections.
func NewWebSocketHub(originPatterns []string) *WebSocketHub {
	return &WebSocketHub{
		originPatterns: originPatterns,
		subscribers:    make(map[string]map[*subscriber]struct{}),
	}
}

// Deliver queues n for each open connection of n.PlayerID. Slow connections
// whose buffer is full miss the notification.
func (h *WebSocketHub) Deliver(_ context.Context, n Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subscribers[n.PlayerID] {
		select {
		case s.msgs <- n:
		default:
			slog.Warn("websocket subscriber lagging, notification dropped",
				"player_id", n.PlayerID,
				"kind", n.Kind,
			)
		}
	}
	return nil
}

// Subscribers returns the number of open connections for playerID.
func (h *WebSocketHub) Subscribers(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[playerID])
}

// Serve upgrades the request and streams notifications for playerID until
// the client disconnects or the request context ends.
func (h *WebSocketHub) Serve(w http.ResponseWriter, r *http.Request, playerID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "player_id", playerID, "error", err)
		return
	}
	defer conn.CloseNow()

	s := &subscriber{msgs: make(chan Notification, subscriberBuffer)}
	h.subscribe(playerID, s)
	defer h.unsubscribe(playerID, s)

	slog.Info("websocket connected", "player_id", playerID)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			slog.Info("websocket disconnected", "player_id", playerID)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case n := <-s.msgs:
			if err := writeNotification(ctx, conn, n); err != nil {
				slog.Warn("websocket write failed", "player_id", playerID, "error", err)
				return
			}
		}
	}
}

func writeNotification(ctx context.Context, conn *websocket.Conn, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, n)
}

func (h *WebSocketHub) subscribe(playerID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[playerID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subscribers[playerID] = set
	}
	set[s] = struct{}{}
}

func (h *WebSocketHub) unsubscribe(playerID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[playerID], s)
	if len(h.subscribers[playerID]) == 0 {
		delete(h.subscribers, playerID)
	}
}
