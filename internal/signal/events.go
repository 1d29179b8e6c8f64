// Package signal defines the typed events exchanged with the message bus.
// The bus itself is a collaborator; this package only owns the wire shapes.
package signal

// Outbound event names.
const (
	EventCreateCall    = "create_call"
	EventJoinCall      = "join_call"
	EventLeaveCall     = "leave_call"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventICECandidate  = "ice_candidate"
	EventSpeaking      = "speaking"
	EventMuteToggle    = "mute_toggle"
	EventHeartbeat     = "heartbeat"
	EventGetActiveCall = "get_active_call"
	EventGetMyCall     = "get_my_call"
)

// Inbound event names.
const (
	EventCallCreated      = "call_created"
	EventCallJoined       = "call_joined"
	EventCallExists       = "call_exists"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventLeftCall         = "left_call"
	EventCallEnded        = "call_ended"
	EventIncomingCall     = "incoming_call"
	EventCallStarted      = "call_started"
	EventSpeakingStatus   = "speaking_status"
	EventMuteStatus       = "mute_status"
	EventUserDisconnected = "user_disconnected"
	EventMyCall           = "my_call"
	EventError            = "error"
)

type CreateCall struct {
	RoomID   string `json:"room_id"`
	RoomType string `json:"room_type"`
	RoomName string `json:"room_name"`
}

type JoinCall struct {
	CallID string `json:"call_id"`
}

type LeaveCall struct {
	CallID string `json:"call_id"`
}

// SessionDesc carries an SDP offer or answer. TargetUserID is set on the way
// out, FromUserID on the way in.
type SessionDesc struct {
	CallID       string `json:"call_id"`
	TargetUserID string `json:"target_user_id,omitempty"`
	FromUserID   string `json:"from_user_id,omitempty"`
	SDP          string `json:"sdp"`
}

// Candidate mirrors a trickle ICE candidate without pulling webrtc types onto
// the wire layer.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type ICECandidate struct {
	CallID       string    `json:"call_id"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	FromUserID   string    `json:"from_user_id,omitempty"`
	Candidate    Candidate `json:"candidate"`
}

type Speaking struct {
	CallID     string `json:"call_id"`
	IsSpeaking bool   `json:"is_speaking"`
}

type MuteToggle struct {
	CallID  string `json:"call_id"`
	IsMuted bool   `json:"is_muted"`
}

type Heartbeat struct {
	CallID string `json:"call_id"`
}

type GetActiveCall struct {
	RoomID string `json:"room_id"`
}

// ParticipantInfo is the roster entry shape used in snapshots and join events.
type ParticipantInfo struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Muted    bool   `json:"muted"`
}

// CallSnapshot is the session description the server sends on
// call_created/call_joined/call_exists/my_call/incoming_call.
type CallSnapshot struct {
	CallID       string            `json:"call_id"`
	RoomID       string            `json:"room_id"`
	RoomType     string            `json:"room_type"`
	RoomName     string            `json:"room_name"`
	CreatedBy    string            `json:"created_by,omitempty"`
	Participants []ParticipantInfo `json:"participants"`
}

type UserJoined struct {
	CallID      string          `json:"call_id"`
	Participant ParticipantInfo `json:"participant"`
}

type UserLeft struct {
	CallID string `json:"call_id"`
	UserID string `json:"user_id"`
}

type CallEnded struct {
	CallID string `json:"call_id"`
	RoomID string `json:"room_id"`
}

type IncomingCall struct {
	Call      CallSnapshot    `json:"call"`
	Initiator ParticipantInfo `json:"initiator"`
}

type SpeakingStatus struct {
	UserID     string `json:"user_id"`
	IsSpeaking bool   `json:"is_speaking"`
}

type MuteStatus struct {
	UserID  string `json:"user_id"`
	IsMuted bool   `json:"is_muted"`
}

type UserDisconnected struct {
	UserID       string `json:"user_id"`
	Disconnected bool   `json:"disconnected"`
}

// MyCall answers the post-reconnect restore probe. Call is nil when the
// server has no session for this identity.
type MyCall struct {
	Call *CallSnapshot `json:"call,omitempty"`
}

type ServerError struct {
	Message string `json:"message"`
}
