package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/signal"
)

// LinkState tracks one peer connection's negotiation lifecycle.
type LinkState string

const (
	LinkNew        LinkState = "new"
	LinkConnecting LinkState = "connecting"
	LinkConnected  LinkState = "connected"
	LinkFailed     LinkState = "failed"
	LinkClosed     LinkState = "closed"
)

// Role records which side drove the offer. The joining side initiates toward
// everyone already present; existing members wait for the newcomer's offer,
// so the two sides can never offer to each other simultaneously.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// PeerLink is one remote participant's connection plus its negotiation
// bookkeeping. Links live and die on the engine loop only.
type PeerLink struct {
	User  domain.UserID
	Role  Role
	State LinkState
	conn  core.MediaConn
	epoch uint64
}

func (l *PeerLink) healthy() bool {
	return l.State == LinkNew || l.State == LinkConnecting || l.State == LinkConnected
}

// peerSet owns the per-participant link and remote stream maps. It is only
// ever touched from the engine loop, so it carries no lock.
type peerSet struct {
	links   map[domain.UserID]*PeerLink
	streams map[domain.UserID]*webrtc.TrackRemote
}

func newPeerSet() *peerSet {
	return &peerSet{
		links:   make(map[domain.UserID]*PeerLink),
		streams: make(map[domain.UserID]*webrtc.TrackRemote),
	}
}

// ensureLink guarantees a live PeerLink for user. With initiate set it also
// drives the offer; otherwise the link waits for the remote side's offer.
func (e *Engine) ensureLink(user domain.UserID, initiate bool) *PeerLink {
	if l, ok := e.peers.links[user]; ok {
		if l.healthy() {
			return l
		}
		l.conn.Close()
		delete(e.peers.links, user)
	}
	conn, err := e.newConn(user)
	if err != nil {
		// Non-fatal: the session continues, the link retries on the next
		// roster sweep.
		log.Error().Err(err).Str("module", "call").Str("peer", string(user)).Msg("peer connection create failed")
		return nil
	}
	if t := e.source.Track(); t != nil {
		if err := conn.AttachLocalTrack(t); err != nil {
			log.Error().Err(err).Str("module", "call").Str("peer", string(user)).Msg("attach local track failed")
		}
	}

	link := &PeerLink{User: user, Role: RoleResponder, State: LinkNew, conn: conn, epoch: e.epoch}
	e.peers.links[user] = link

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		e.post(func() {
			if !e.linkCurrent(link) || e.session == nil {
				return
			}
			e.publish(signal.EventICECandidate, signal.ICECandidate{
				CallID:       string(e.session.ID),
				TargetUserID: string(user),
				Candidate: signal.Candidate{
					Candidate:     ci.Candidate,
					SDPMid:        ci.SDPMid,
					SDPMLineIndex: ci.SDPMLineIndex,
				},
			})
		})
	})
	conn.OnTrack(func(track *webrtc.TrackRemote) {
		e.post(func() {
			if !e.linkCurrent(link) {
				return
			}
			e.peers.streams[user] = track
			e.emit(Event{Kind: EventRemoteTrack, UserID: user, Track: track})
		})
	})
	conn.OnStateChange(func(s webrtc.PeerConnectionState) {
		e.post(func() {
			if !e.linkCurrent(link) {
				return
			}
			e.onLinkState(link, s)
		})
	})

	if initiate {
		link.Role = RoleInitiator
		offer, err := conn.CreateOffer()
		if err != nil {
			log.Error().Err(err).Str("module", "call").Str("peer", string(user)).Msg("create offer failed")
			e.failLink(link)
			return link
		}
		link.State = LinkConnecting
		e.publish(signal.EventOffer, signal.SessionDesc{
			CallID:       string(e.session.ID),
			TargetUserID: string(user),
			SDP:          offer.SDP,
		})
	}
	return link
}

// linkCurrent guards stale asynchronous completions: a callback that resolves
// after its link was superseded or the session ended must not apply.
func (e *Engine) linkCurrent(link *PeerLink) bool {
	return link.epoch == e.epoch && e.peers.links[link.User] == link
}

func (e *Engine) onLinkState(link *PeerLink, s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		link.State = LinkConnected
	case webrtc.PeerConnectionStateConnecting:
		if link.State == LinkNew {
			link.State = LinkConnecting
		}
	case webrtc.PeerConnectionStateFailed:
		// Contained failure: close now, recreate on the next roster event or
		// rejoin sweep. The session itself continues.
		log.Warn().Str("module", "call").Str("peer", string(link.User)).Msg("peer link failed")
		e.failLink(link)
	case webrtc.PeerConnectionStateClosed:
		link.State = LinkClosed
	}
}

func (e *Engine) failLink(link *PeerLink) {
	link.conn.Close()
	link.State = LinkFailed
	delete(e.peers.streams, link.User)
}

// handleOffer answers a remote offer, creating the responder link if absent.
func (e *Engine) handleOffer(from domain.UserID, sdp string) {
	if e.session == nil || e.session.Find(from) == nil {
		log.Warn().Str("module", "call").Str("peer", string(from)).Msg("offer from outside roster, dropped")
		return
	}
	link := e.ensureLink(from, false)
	if link == nil {
		return
	}
	answer, err := link.conn.AcceptOffer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "call").Str("peer", string(from)).Msg("accept offer failed")
		e.failLink(link)
		return
	}
	link.State = LinkConnecting
	e.publish(signal.EventAnswer, signal.SessionDesc{
		CallID:       string(e.session.ID),
		TargetUserID: string(from),
		SDP:          answer.SDP,
	})
}

// handleAnswer applies a remote answer. Late or duplicate delivery with no
// matching link is logged and ignored.
func (e *Engine) handleAnswer(from domain.UserID, sdp string) {
	link, ok := e.peers.links[from]
	if !ok || !link.healthy() {
		log.Warn().Str("module", "call").Str("peer", string(from)).Msg("answer without link, dropped")
		return
	}
	if err := link.conn.ApplyAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		log.Error().Err(err).Str("module", "call").Str("peer", string(from)).Msg("apply answer failed")
		e.failLink(link)
	}
}

// handleCandidate applies a trickle candidate. A candidate racing ahead of
// its offer is dropped: delivery is best effort and the link renegotiates.
func (e *Engine) handleCandidate(from domain.UserID, c signal.Candidate) {
	link, ok := e.peers.links[from]
	if !ok || !link.healthy() {
		log.Debug().Str("module", "call").Str("peer", string(from)).Msg("candidate without link, dropped")
		return
	}
	ci := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	if err := link.conn.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("peer", string(from)).Msg("add candidate failed")
	}
}

// syncLinks reconciles links against the roster: every remote participant
// gets a link, links without a participant are closed.
func (e *Engine) syncLinks(initiate bool) {
	if e.session == nil {
		return
	}
	want := make(map[domain.UserID]bool, len(e.session.Participants))
	for _, p := range e.session.Participants {
		if p.User.ID == e.cfg.Self.ID {
			continue
		}
		want[p.User.ID] = true
		e.ensureLink(p.User.ID, initiate)
	}
	for user, link := range e.peers.links {
		if want[user] {
			continue
		}
		link.conn.Close()
		delete(e.peers.links, user)
		delete(e.peers.streams, user)
	}
}

func (e *Engine) dropLink(user domain.UserID) {
	if link, ok := e.peers.links[user]; ok {
		link.conn.Close()
		delete(e.peers.links, user)
	}
	delete(e.peers.streams, user)
}

func (e *Engine) closeAllLinks() {
	for user, link := range e.peers.links {
		link.conn.Close()
		delete(e.peers.links, user)
	}
	e.peers.streams = make(map[domain.UserID]*webrtc.TrackRemote)
}

// replaceOutboundTrack swaps the outbound audio on every link without
// renegotiation; used after a capture device switch.
func (e *Engine) replaceOutboundTrack() {
	t := e.source.Track()
	if t == nil {
		return
	}
	for user, link := range e.peers.links {
		if !link.healthy() {
			continue
		}
		if err := link.conn.ReplaceLocalTrack(t); err != nil {
			log.Error().Err(err).Str("module", "call").Str("peer", string(user)).Msg("replace track failed")
		}
	}
}
