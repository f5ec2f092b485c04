package handlers

import (
	"sync"
	"time"

	"kickstarter/internal/kickstarter"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

var _ kickstarter.Emitter = (*EventHub)(nil)

type subscriber struct {
	campaign string
	send     chan kickstarter.Event
}

// EventHub is a kickstarter.Emitter that fans committed events out to
// websocket subscribers. A subscriber that falls behind is disconnected.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	upgrader    websocket.Upgrader
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *EventHub) Emit(ev kickstarter.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		if sub.campaign != "" && sub.campaign != ev.Campaign {
			continue
		}
		select {
		case sub.send <- ev:
		default:
			delete(h.subscribers, sub)
			close(sub.send)
		}
	}
}

func (h *EventHub) subscribe(campaign string) *subscriber {
	sub := &subscriber{campaign: campaign, send: make(chan kickstarter.Event, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *EventHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}

// Subscribers is the number of connected streams
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// StreamEvents upgrades to a websocket and streams events as JSON, filtered
// by ?campaign= when given.
func (h *Handler) StreamEvents(c *gin.Context) {
	campaign := c.Query("campaign")
	if campaign != "" {
		if _, ok := parseKey(c, "campaign", campaign); !ok {
			return
		}
	}

	conn, err := h.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	sub := h.hub.subscribe(campaign)
	go h.hub.drain(conn, sub)
	h.hub.pump(conn, sub)
}

// drain reads until the client goes away; subscribers never send anything
func (h *EventHub) drain(conn *websocket.Conn, sub *subscriber) {
	defer h.unsubscribe(sub)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) pump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.unsubscribe(sub)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unsubscribe(sub)
				return
			}
		}
	}
}
