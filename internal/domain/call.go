package domain

import "time"

type (
	CallID   string
	RoomID   string
	RoomKind string
)

const (
	RoomGroup  RoomKind = "group"
	RoomDirect RoomKind = "direct"
)

// CallSession is the authoritative view of the one call the local identity is
// part of. Owned exclusively by the call engine; everything else gets copies.
type CallSession struct {
	ID        CallID
	RoomID    RoomID
	RoomKind  RoomKind
	RoomName  string
	CreatedAt time.Time
	CreatedBy UserID

	// Participants is the ordered roster, local identity included.
	Participants []*Participant
}

// Find returns the roster entry for id, nil if absent.
func (s *CallSession) Find(id UserID) *Participant {
	for _, p := range s.Participants {
		if p.User.ID == id {
			return p
		}
	}
	return nil
}

// Add appends p unless an entry with the same user id already exists.
func (s *CallSession) Add(p *Participant) bool {
	if s.Find(p.User.ID) != nil {
		return false
	}
	s.Participants = append(s.Participants, p)
	return true
}

// Remove drops the entry for id, keeping roster order.
func (s *CallSession) Remove(id UserID) bool {
	for i, p := range s.Participants {
		if p.User.ID == id {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}
