package http

import (
	"net/http"

	"github.com/dkeye/musicroom/internal/app"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// POST /api/rooms
func (s *Server) handleCreateRoom(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		UserName string `json:"userName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "room name and user required")
		return
	}
	res, err := s.rooms.CreateRoom(c.Request.Context(), req.Name, req.UserName)
	if err != nil {
		writeError(c, err)
		return
	}
	rememberParticipant(c, res.Snapshot.ID, res.Participant)
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"room":        res.Snapshot,
		"participant": res.Participant.View(),
	})
}

// GET /api/rooms
func (s *Server) handleListRooms(c *gin.Context) {
	rooms, err := s.rooms.ListRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "rooms": rooms})
}

// GET /api/songs
func (s *Server) handleListSongs(c *gin.Context) {
	songs, err := s.rooms.ListSongs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "songs": songs})
}

// GET /api/rooms/:id
func (s *Server) handleGetRoom(c *gin.Context) {
	snap, err := s.rooms.Snapshot(c.Request.Context(), roomID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "room": snap})
}

// GET /api/rooms/:id/exists
func (s *Server) handleExists(c *gin.Context) {
	id := roomID(c)
	ok, err := s.rooms.Exists(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "exists": false, "error": "room_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "exists": true, "roomId": id})
}

// POST /api/rooms/:id/join
func (s *Server) handleJoin(c *gin.Context) {
	var req struct {
		User string `json:"user" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user name required")
		return
	}
	id := roomID(c)
	res, err := s.rooms.Join(c.Request.Context(), id, req.User, "")
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Outcome == app.OutcomeDuplicateParticipant {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   string(res.Outcome),
			"message": "user name already exists in room",
		})
		return
	}
	rememberParticipant(c, id, res.Participant)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"room":           res.Snapshot,
		"newParticipant": res.Participant.View(),
	})
}

// POST /api/rooms/:id/leave
// Without userId in the body the caller's own participant (from its session)
// leaves.
func (s *Server) handleLeave(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	_ = c.ShouldBindJSON(&req)
	id := roomID(c)
	session := sessions.Default(c)
	if req.UserID == "" {
		if v, ok := session.Get(participantKey(id)).(string); ok {
			req.UserID = v
		}
	}
	if req.UserID == "" {
		badRequest(c, "userId required")
		return
	}
	res, err := s.rooms.Leave(c.Request.Context(), id, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if v, ok := session.Get(participantKey(id)).(string); ok && v == req.UserID {
		session.Delete(participantKey(id))
		_ = session.Save()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"outcome":      res.Outcome,
		"participants": res.Snapshot.Participants,
	})
}

// GET /api/rooms/:id/participants
func (s *Server) handleParticipants(c *gin.Context) {
	snap, err := s.rooms.Snapshot(c.Request.Context(), roomID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "participants": snap.Participants})
}

// POST /api/rooms/:id/removeParticipant
func (s *Server) handleRemoveParticipant(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId required")
		return
	}
	res, err := s.rooms.Leave(c.Request.Context(), roomID(c), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"outcome":      res.Outcome,
		"participants": res.Snapshot.Participants,
	})
}
