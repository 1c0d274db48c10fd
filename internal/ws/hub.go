package ws

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/telemetry"
)

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

// RoomSearch prefixes the per-request room, "search.<request id>".
const RoomSearch = "search"

type Event string

const (
	EventSearchAnswered  Event = "search.event.answered"
	EventSearchCompleted Event = "search.event.completed"
)

type PayloadEvent struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id"`
	Provider  string `json:"provider,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type ClientMessage struct {
	Action Action `json:"action"`
	Room   string `json:"room"`
}

// Conn is the part of a websocket connection the hub uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

type client struct {
	conn Conn
	wmu  sync.Mutex
}

func (c *client) write(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub routes search progress to the connections that joined its room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	log   zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{rooms: map[string]map[*client]struct{}{}, log: telemetry.Component("ws")}
}

func SearchRoom(requestID string) string { return RoomSearch + "." + requestID }

// Handle is the fiber websocket handler. A request id stored under
// localsKey by the upgrade middleware joins its room right away.
func (h *Hub) Handle(localsKey string) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		var rooms []string
		if rid, ok := c.Locals(localsKey).(string); ok && rid != "" {
			rooms = append(rooms, SearchRoom(rid))
		}
		h.Serve(c, rooms...)
	}
}

// Serve joins rooms, then reads join/leave messages until the connection
// closes.
func (h *Hub) Serve(conn Conn, rooms ...string) {
	cl := &client{conn: conn}
	h.log.Debug().Msg("ws_connected")
	for _, room := range rooms {
		h.join(cl, room)
	}
	defer func() {
		h.mu.Lock()
		for room, members := range h.rooms {
			delete(members, cl)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
		h.mu.Unlock()
		_ = conn.Close()
		h.log.Debug().Msg("ws_disconnected")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cm ClientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			continue
		}
		switch cm.Action {
		case ActionJoin:
			h.join(cl, cm.Room)
		case ActionLeave:
			h.leave(cl, cm.Room)
		}
	}
}

func (h *Hub) join(c *client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = map[*client]struct{}{}
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("room", room).Msg("ws_join")
}

func (h *Hub) leave(c *client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) HasSubscribers(requestID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[SearchRoom(requestID)]) > 0
}

func (h *Hub) broadcast(requestID string, pl PayloadEvent) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[SearchRoom(requestID)]))
	for c := range h.rooms[SearchRoom(requestID)] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.write(pl); err != nil {
			h.log.Debug().Err(err).Str("request_id", requestID).Msg("ws_write_failed")
		}
	}
}

func (h *Hub) BroadcastAnswer(requestID string, a model.Answer) {
	h.broadcast(requestID, PayloadEvent{
		Event:     EventSearchAnswered,
		RequestID: requestID,
		Provider:  a.Provider,
		Data:      a,
	})
}

func (h *Hub) BroadcastCompleted(requestID string, r model.Report) {
	h.broadcast(requestID, PayloadEvent{
		Event:     EventSearchCompleted,
		RequestID: requestID,
		Data:      r,
	})
}
