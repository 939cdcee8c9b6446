// Package broadcast fans room events out to websocket observers, locally
// through Hub and across instances through Redis pub/sub.
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/musicroom/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

// Conn is a subscriber endpoint. Owned by the transport adapter.
type Conn interface {
	TrySend([]byte) error
	Close()
}

// Envelope is the wire frame for every event.
type Envelope struct {
	Type    string        `json:"type"`
	Room    domain.RoomID `json:"room,omitempty"`
	Payload any           `json:"payload,omitempty"`
}

func Encode(room domain.RoomID, event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: event, Room: room, Payload: payload})
}

// PublishResult reports delivery stats for one frame.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ConnID
}

// Hub tracks which connections observe which rooms. A connection may observe
// several rooms.
type Hub struct {
	policy Policy

	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ConnID]Conn
}

func NewHub(policy Policy) *Hub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Hub{
		policy: policy,
		rooms:  make(map[domain.RoomID]map[domain.ConnID]Conn),
	}
}

// Subscribe adds c to room and reports whether id was not subscribed before.
func (h *Hub) Subscribe(room domain.RoomID, id domain.ConnID, c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[domain.ConnID]Conn)
		h.rooms[room] = subs
	}
	_, existed := subs[id]
	subs[id] = c
	log.Debug().Str("module", "broadcast.hub").Str("room", string(room)).Str("conn", string(id)).Bool("new", !existed).Msg("subscribed")
	return !existed
}

func (h *Hub) Unsubscribe(room domain.RoomID, id domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(room, id)
}

func (h *Hub) unsubscribeLocked(room domain.RoomID, id domain.ConnID) {
	subs, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
}

// UnsubscribeAll drops id from every room and returns the rooms it observed.
func (h *Hub) UnsubscribeAll(id domain.ConnID) []domain.RoomID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.RoomID
	for room, subs := range h.rooms {
		if _, ok := subs[id]; ok {
			out = append(out, room)
			h.unsubscribeLocked(room, id)
		}
	}
	return out
}

func (h *Hub) Count(room domain.RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish implements core.Gateway for a single instance.
func (h *Hub) Publish(room domain.RoomID, event string, payload any) {
	b, err := Encode(room, event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "broadcast.hub").Str("event", event).Msg("encode event")
		return
	}
	h.Deliver(room, b)
}

// Deliver sends an encoded frame to every subscriber of room without
// blocking; full buffers are handled by the policy.
func (h *Hub) Deliver(room domain.RoomID, frame []byte) PublishResult {
	h.mu.RLock()
	res := PublishResult{}
	var kicked []Conn
	for id, c := range h.rooms[room] {
		if err := c.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, id)
			if h.policy.OnBackPressure(room, id) == KickSubscriber {
				kicked = append(kicked, c)
			}
			continue
		}
		res.SentTo++
	}
	h.mu.RUnlock()

	// Closing outside the lock; the transport unsubscribes on its way out.
	for _, c := range kicked {
		c.Close()
	}
	log.Debug().Str("module", "broadcast.hub").Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Send writes one event to a single connection.
func Send(c Conn, event string, payload any) {
	b, err := Encode("", event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "broadcast").Str("event", event).Msg("encode event")
		return
	}
	_ = c.TrySend(b)
}
