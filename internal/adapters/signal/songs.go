package signal

import (
	"context"

	"github.com/dkeye/musicroom/internal/domain"
)

type songPayload struct {
	roomPayload
	SongID domain.SongID `json:"songId"`
}

func (ctl *SignalWSController) handleAddSong(ctx context.Context, c *WsSignalConn, data []byte) {
	var p struct {
		roomPayload
		Song *domain.SongDescription `json:"song"`
	}
	if !ctl.decode(c, data, &p) {
		return
	}
	if p.Song == nil {
		ctl.sendError(c, "invalid_payload")
		return
	}
	res, err := ctl.Rooms.AddSong(ctx, p.RoomID, *p.Song)
	ctl.reply(c, "add_song", res, err)
}

func (ctl *SignalWSController) handleRemoveSong(ctx context.Context, c *WsSignalConn, data []byte) {
	var p songPayload
	if !ctl.decode(c, data, &p) {
		return
	}
	res, err := ctl.Rooms.RemoveSong(ctx, p.RoomID, p.SongID)
	ctl.reply(c, "remove_song", res, err)
}

func (ctl *SignalWSController) handleSkip(ctx context.Context, c *WsSignalConn, data []byte) {
	var p roomPayload
	if !ctl.decode(c, data, &p) {
		return
	}
	res, err := ctl.Rooms.Skip(ctx, p.RoomID)
	ctl.reply(c, "skip_song", res, err)
}

func (ctl *SignalWSController) handlePrevious(ctx context.Context, c *WsSignalConn, data []byte) {
	var p roomPayload
	if !ctl.decode(c, data, &p) {
		return
	}
	res, err := ctl.Rooms.Previous(ctx, p.RoomID)
	ctl.reply(c, "previous_song", res, err)
}

func (ctl *SignalWSController) handleSetNowPlaying(ctx context.Context, c *WsSignalConn, data []byte) {
	var p songPayload
	if !ctl.decode(c, data, &p) {
		return
	}
	res, err := ctl.Rooms.SetNowPlaying(ctx, p.RoomID, p.SongID)
	ctl.reply(c, "set_now_playing", res, err)
}
