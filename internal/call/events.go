package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/signal"
)

// EventKind tags engine notifications delivered on Events(). The channel
// replaces a global pub/sub bus: only the component that owns the UI surface
// subscribes, session-critical transitions stay inside the engine.
type EventKind string

const (
	// EventStatus reports a session status transition.
	EventStatus EventKind = "status"
	// EventRoster reports any roster or flag change.
	EventRoster EventKind = "roster"
	// EventIncoming reports an incoming_call/call_started notification.
	EventIncoming EventKind = "incoming_call"
	// EventRemoteTrack reports a remote media stream keyed by participant,
	// so playback can attach it deterministically.
	EventRemoteTrack EventKind = "remote_track"
	// EventFailure reports a user-visible error (timeout, server rejection).
	EventFailure EventKind = "failure"
)

type Event struct {
	Kind     EventKind
	Status   string
	Roster   []ParticipantView
	Incoming *signal.IncomingCall
	UserID   domain.UserID
	Track    *webrtc.TrackRemote
	Err      error
}

// ParticipantView is the reconciled per-participant roster view.
type ParticipantView struct {
	ID           domain.UserID `json:"id"`
	Username     string        `json:"username"`
	Avatar       string        `json:"avatar,omitempty"`
	Muted        bool          `json:"muted"`
	Speaking     bool          `json:"speaking"`
	Disconnected bool          `json:"disconnected"`
	Self         bool          `json:"self"`
}

// LinkView is the diagnostic view of one peer link.
type LinkView struct {
	User  domain.UserID `json:"user"`
	Role  Role          `json:"role"`
	State LinkState     `json:"state"`
}

// Snapshot is the engine state view handed to the control surface.
type Snapshot struct {
	Status   string            `json:"status"`
	Muted    bool              `json:"muted"`
	CallID   domain.CallID     `json:"call_id,omitempty"`
	RoomID   domain.RoomID     `json:"room_id,omitempty"`
	RoomName string            `json:"room_name,omitempty"`
	Roster   []ParticipantView `json:"roster,omitempty"`
	Links    []LinkView        `json:"links,omitempty"`
}
