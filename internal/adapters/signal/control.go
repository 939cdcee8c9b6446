package signal

import (
	"github.com/dkeye/musicroom/internal/domain"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

// handleControl relays play/pause/seek/sync to the room untouched. Room state
// is not consulted or changed.
func (ctl *SignalWSController) handleControl(kind string, c *WsSignalConn, data []byte) {
	var p map[string]any
	if !ctl.decode(c, data, &p) {
		return
	}
	roomID, _ := p["roomId"].(string)
	if roomID == "" {
		ctl.sendError(c, "invalid_payload")
		return
	}
	delete(p, "type")
	delete(p, "roomId")
	ctl.Gateway.Publish(domain.RoomID(roomID), kind, p)
}
