package domain

import "time"

// Participant represents one call member's meta for the roster.
// No transport or lifecycle logic here.
//
// Muted, Speaking and Disconnected are orthogonal: muted is authoritative
// (explicit toggle), speaking is advisory (voice activity), disconnected is
// session-layer liveness. They are reconciled by the call engine, which keeps
// Speaking false whenever Muted is set.
type Participant struct {
	User          *User
	JoinedAt      time.Time
	LastHeartbeat time.Time
	Muted         bool
	Speaking      bool
	Disconnected  bool
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(user *User, joined time.Time) *Participant {
	return &Participant{User: user, JoinedAt: joined}
}
