package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/huddle/internal/domain"
)

// MediaConn is the minimal peer-connection contract the engine drives: create
// or accept one offer, apply the answer, trickle candidates, swap the
// outbound track. Everything else (codecs, congestion control) belongs to the
// transport library behind the adapter.
type MediaConn interface {
	// CreateOffer produces and installs the local offer (initiator role).
	CreateOffer() (webrtc.SessionDescription, error)
	// AcceptOffer applies a remote offer and returns the local answer
	// (responder role).
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer installs the remote answer on an initiator connection.
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote trickle candidate.
	AddICECandidate(webrtc.ICECandidateInit) error

	// AttachLocalTrack adds the outbound audio track before negotiation.
	AttachLocalTrack(track webrtc.TrackLocal) error
	// ReplaceLocalTrack swaps the outbound track without renegotiation.
	ReplaceLocalTrack(track webrtc.TrackLocal) error

	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote))
	// OnStateChange sets a callback for peer connection state transitions.
	OnStateChange(func(webrtc.PeerConnectionState))

	// Close stops the underlying connection. Idempotent.
	Close()
}

// MediaConnFactory builds one MediaConn per remote participant. The engine
// holds the factory so tests can inject fakes.
type MediaConnFactory func(peer domain.UserID) (MediaConn, error)
