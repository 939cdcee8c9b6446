package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/musicroom/internal/adapters/signal"
	"github.com/dkeye/musicroom/internal/app"
	"github.com/dkeye/musicroom/internal/config"
	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Server is the REST surface over the coordinator. Control relays bypass the
// coordinator and go straight to the gateway.
type Server struct {
	rooms   *app.Coordinator
	gateway core.Gateway
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *app.Coordinator, gw core.Gateway, ws *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MusicRoomSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	s := &Server{rooms: rooms, gateway: gw}
	r.GET("/health", s.handleHealth)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.POST("/rooms", s.handleCreateRoom)
	api.GET("/rooms", s.handleListRooms)
	api.GET("/songs", s.handleListSongs)

	room := api.Group("/rooms/:id")
	room.GET("", s.handleGetRoom)
	room.GET("/exists", s.handleExists)
	room.POST("/join", s.handleJoin)
	room.POST("/leave", s.handleLeave)
	room.POST("/removeParticipant", s.handleRemoveParticipant)
	room.GET("/participants", s.handleParticipants)
	room.POST("/songs", s.handleAddSong)
	room.DELETE("/songs/:songId", s.handleRemoveSong)
	room.GET("/playlist", s.handlePlaylist)
	room.GET("/nowplaying", s.handleGetNowPlaying)
	room.POST("/nowplaying", s.handleSetNowPlaying)
	room.POST("/skip", s.handleSkip)
	room.POST("/previous", s.handlePrevious)
	room.POST("/controls/:action", s.handleControl)

	if ws != nil {
		api.GET("/ws/signal", func(c *gin.Context) {
			ws.HandleSignal(ctx, c)
		})
	}

	return r
}

func roomID(c *gin.Context) domain.RoomID { return domain.RoomID(c.Param("id")) }

func participantKey(id domain.RoomID) string { return "participant:" + string(id) }

func rememberParticipant(c *gin.Context, id domain.RoomID, p *domain.Participant) {
	if p == nil {
		return
	}
	session := sessions.Default(c)
	session.Set(participantKey(id), string(p.ID))
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
}

func writeError(c *gin.Context, err error) {
	var se *domain.StorageError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrSongNotInPlaylist):
		status = http.StatusNotFound
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case errors.As(err, &se):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": domain.Code(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_payload", "message": msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "musicroom",
		"storage": s.rooms.Mode(),
		"rooms":   s.rooms.Registry().Len(),
	})
}
