package core

import (
	"slices"
	"strings"

	"github.com/dkeye/musicroom/internal/domain"
)

// Roster is the participant set of one room, kept in join order.
// Not safe for concurrent use; the room actor owns it.
type Roster struct {
	members []domain.Participant
}

func NewRoster() *Roster {
	return &Roster{members: make([]domain.Participant, 0)}
}

// RestoreRoster rebuilds a roster from persisted members, keeping the first of
// any case-insensitive duplicates.
func RestoreRoster(members []domain.Participant) *Roster {
	r := NewRoster()
	for _, m := range members {
		if r.byName(m.Name) < 0 {
			r.members = append(r.members, m)
		}
	}
	return r
}

func (r *Roster) byName(name string) int {
	return slices.IndexFunc(r.members, func(m domain.Participant) bool {
		return strings.EqualFold(m.Name, name)
	})
}

// Join adds name unless a member with the same name (any case) exists.
func (r *Roster) Join(name string, conn domain.ConnID) (domain.Participant, bool) {
	if r.byName(name) >= 0 {
		return domain.Participant{}, false
	}
	p := domain.NewParticipant(name, conn)
	r.members = append(r.members, p)
	return p, true
}

// Attach binds conn to the member called name. A free name joins; a member
// already bound to a different connection is a duplicate.
func (r *Roster) Attach(name string, conn domain.ConnID) (domain.Participant, bool) {
	i := r.byName(name)
	if i < 0 {
		return r.Join(name, conn)
	}
	m := &r.members[i]
	if m.ConnID != "" && m.ConnID != conn {
		return domain.Participant{}, false
	}
	m.ConnID = conn
	return *m, true
}

// Leave removes the member whose id or connection id equals key.
func (r *Roster) Leave(key string) bool {
	if key == "" {
		return false
	}
	n := len(r.members)
	r.members = slices.DeleteFunc(r.members, func(m domain.Participant) bool {
		return string(m.ID) == key || string(m.ConnID) == key
	})
	return len(r.members) != n
}

// Sweep removes every member bound to conn and reports how many went.
func (r *Roster) Sweep(conn domain.ConnID) int {
	if conn == "" {
		return 0
	}
	n := len(r.members)
	r.members = slices.DeleteFunc(r.members, func(m domain.Participant) bool {
		return m.ConnID == conn
	})
	return n - len(r.members)
}

func (r *Roster) Members() []domain.Participant { return slices.Clone(r.members) }

func (r *Roster) Len() int { return len(r.members) }

// Connected reports whether any member is bound to a live connection.
func (r *Roster) Connected() bool {
	return slices.ContainsFunc(r.members, func(m domain.Participant) bool { return m.ConnID != "" })
}

func (r *Roster) Clone() *Roster { return &Roster{members: slices.Clone(r.members)} }
