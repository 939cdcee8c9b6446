package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/musicroom/internal/app"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

func (ctl *SignalWSController) decode(c *WsSignalConn, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad payload")
		ctl.sendError(c, "bad_payload")
		return false
	}
	return true
}

// reply sends the requester the outcome of its mutation. Observers, the
// requester included, get the snapshot through the gateway.
func (ctl *SignalWSController) reply(c *WsSignalConn, op string, res app.Result, err error) bool {
	if err != nil {
		ctl.sendError(c, domain.Code(err))
		return false
	}
	ctl.send(c, "ack", map[string]any{
		"op":      op,
		"outcome": res.Outcome,
	})
	return true
}

// handleJoin binds this socket to name in the room, subscribes it to the
// room's events and sends it the full state.
func (ctl *SignalWSController) handleJoin(ctx context.Context, sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		roomPayload
		User string `json:"user"`
	}
	if !ctl.decode(c, data, &p) {
		return
	}
	if p.RoomID == "" || p.User == "" {
		ctl.sendError(c, "invalid_payload")
		return
	}

	// Subscribe first so this socket also sees its own user_joined.
	// A socket already in the room keeps its subscription whatever happens.
	fresh := ctl.Hub.Subscribe(p.RoomID, sid, c)
	undo := func() {
		if fresh {
			ctl.Hub.Unsubscribe(p.RoomID, sid)
		}
	}
	res, err := ctl.Rooms.Connect(ctx, p.RoomID, p.User, sid)
	if err != nil {
		undo()
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.RoomID)).Msg("join")
		ctl.sendError(c, domain.Code(err))
		return
	}
	if res.Outcome == app.OutcomeDuplicateParticipant {
		undo()
		ctl.sendError(c, "username_taken")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.RoomID)).Str("user", p.User).Msg("join")
	ctl.send(c, "joined", res.Participant.View())
	ctl.send(c, "room_state", res.Snapshot)
}

// handleLeave removes the participant but keeps the socket open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		roomPayload
		UserID string `json:"userId,omitempty"`
	}
	if !ctl.decode(c, data, &p) {
		return
	}
	key := p.UserID
	if key == "" {
		key = string(sid)
	}
	res, err := ctl.Rooms.Leave(ctx, p.RoomID, key)
	ctl.Hub.Unsubscribe(p.RoomID, sid)
	if !ctl.reply(c, "leave_room", res, err) {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.RoomID)).Msg("leave")
	ctl.sendJSON(c, map[string]any{"type": "left", "room": p.RoomID})
}

// handleSyncRequest sends the current state to the requester only.
func (ctl *SignalWSController) handleSyncRequest(ctx context.Context, c *WsSignalConn, data []byte) {
	var p roomPayload
	if !ctl.decode(c, data, &p) {
		return
	}
	snap, err := ctl.Rooms.Snapshot(ctx, p.RoomID)
	if err != nil {
		ctl.sendError(c, domain.Code(err))
		return
	}
	ctl.send(c, "room_state", snap)
}
