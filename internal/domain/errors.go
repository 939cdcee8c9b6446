// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
)

// StorageError reports a failed persistence call. The coordinator rolls the
// room back to its pre-mutation state before returning it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Code maps an error to the stable string clients see.
func Code(err error) string {
	var se *StorageError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrSongNotInPlaylist):
		return "song_not_found"
	case errors.As(err, &se):
		return "storage_unavailable"
	case IsValidation(err):
		return "invalid_payload"
	default:
		return "internal_error"
	}
}

// IsValidation reports whether err rejects caller input.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrSongTitleEmpty, ErrSongURLEmpty,
		ErrParticipantNameEmpty, ErrParticipantNameTooLong,
		ErrRoomNameEmpty, ErrRoomNameTooLong,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
