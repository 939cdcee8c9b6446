package http

import (
	"net/http"

	"github.com/dkeye/musicroom/internal/app"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/gin-gonic/gin"
)

func writeResult(c *gin.Context, res app.Result) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"outcome":    res.Outcome,
		"playlist":   res.Snapshot.Songs,
		"nowPlaying": res.Snapshot.NowPlaying,
	})
}

// POST /api/rooms/:id/songs
func (s *Server) handleAddSong(c *gin.Context) {
	var req domain.SongDescription
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "song title and url are required")
		return
	}
	res, err := s.rooms.AddSong(c.Request.Context(), roomID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeResult(c, res)
}

// DELETE /api/rooms/:id/songs/:songId
func (s *Server) handleRemoveSong(c *gin.Context) {
	res, err := s.rooms.RemoveSong(c.Request.Context(), roomID(c), domain.SongID(c.Param("songId")))
	if err != nil {
		writeError(c, err)
		return
	}
	writeResult(c, res)
}

// GET /api/rooms/:id/playlist
func (s *Server) handlePlaylist(c *gin.Context) {
	snap, err := s.rooms.Snapshot(c.Request.Context(), roomID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "playlist": snap.Songs})
}

// GET /api/rooms/:id/nowplaying
func (s *Server) handleGetNowPlaying(c *gin.Context) {
	snap, err := s.rooms.Snapshot(c.Request.Context(), roomID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "nowPlaying": snap.NowPlaying})
}

// POST /api/rooms/:id/nowplaying
func (s *Server) handleSetNowPlaying(c *gin.Context) {
	var req struct {
		SongID domain.SongID `json:"songId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "songId required")
		return
	}
	res, err := s.rooms.SetNowPlaying(c.Request.Context(), roomID(c), req.SongID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeResult(c, res)
}

// POST /api/rooms/:id/skip
func (s *Server) handleSkip(c *gin.Context) {
	res, err := s.rooms.Skip(c.Request.Context(), roomID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeResult(c, res)
}

// POST /api/rooms/:id/previous
func (s *Server) handlePrevious(c *gin.Context) {
	res, err := s.rooms.Previous(c.Request.Context(), roomID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeResult(c, res)
}

// POST /api/rooms/:id/controls/:action
// Relays play, pause, seek or sync to the room without touching its state.
func (s *Server) handleControl(c *gin.Context) {
	action := c.Param("action")
	switch action {
	case "play", "pause", "seek", "sync":
	default:
		badRequest(c, "unknown control")
		return
	}
	payload := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			badRequest(c, "invalid control payload")
			return
		}
	}
	s.gateway.Publish(roomID(c), action, payload)
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}
