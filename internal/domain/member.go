package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxParticipantNameLen = 36

var (
	ErrParticipantNameEmpty   = errors.New("participant name empty")
	ErrParticipantNameTooLong = errors.New("participant name too long")
)

type (
	ParticipantID string
	// ConnID identifies a transport connection. Used only for disconnect sweep.
	ConnID string
)

// Participant is a display name inside one room.
// Names are unique per room under case-insensitive comparison.
type Participant struct {
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	ConnID ConnID        `json:"-"`
}

// NormalizeParticipantName trims and validates a display name.
func NormalizeParticipantName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrParticipantNameEmpty
	}
	if len(name) > MaxParticipantNameLen {
		return "", ErrParticipantNameTooLong
	}
	return name, nil
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(name string, conn ConnID) Participant {
	return Participant{
		ID:     ParticipantID(uuid.NewString()),
		Name:   name,
		ConnID: conn,
	}
}
