package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxRoomNameLen = 64

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type (
	RoomName string
	RoomID   string
)

// Room is the persisted aggregate. Only the coordinator builds and saves it.
type Room struct {
	ID           RoomID        `json:"id"`
	Name         RoomName      `json:"name"`
	Songs        []Song        `json:"songs"`
	NowPlaying   *SongID       `json:"nowPlaying"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// RoomSummary is a listing row.
type RoomSummary struct {
	ID               RoomID   `json:"id"`
	Name             RoomName `json:"name"`
	ParticipantCount int      `json:"participantCount"`
}

func NewRoomID() RoomID { return RoomID(uuid.NewString()) }

// NormalizeRoomName trims and validates a room name.
func NormalizeRoomName(name string) (RoomName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(name), nil
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{ID: r.ID, Name: r.Name, ParticipantCount: len(r.Participants)}
}
