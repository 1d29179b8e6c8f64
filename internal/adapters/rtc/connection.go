// Package rtc adapts pion/webrtc to the engine's MediaConn contract.
package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// Config builds a pion configuration from the STUN server list. No TURN:
// relay-only networks are out of scope.
func Config(stunServers []string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
}

// Factory returns a MediaConnFactory bound to the given ICE configuration.
// peer is only used for log correlation.
func Factory(cfg webrtc.Configuration) func(peer domain.UserID) (core.MediaConn, error) {
	return func(peer domain.UserID) (core.MediaConn, error) {
		return NewConnection(cfg, peer)
	}
}

type Connection struct {
	pc   *webrtc.PeerConnection
	peer domain.UserID

	mu      sync.Mutex
	closed  bool
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote)
	onState func(webrtc.PeerConnectionState)
}

func NewConnection(cfg webrtc.Configuration, peer domain.UserID) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, peer: peer}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if cb := c.iceCallback(); cb != nil {
			cb(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", string(peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if cb := c.trackCallback(); cb != nil {
			cb(track)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(peer)).Str("state", s.String()).Msg("peer state")
		if cb := c.stateCallback(); cb != nil {
			cb(s)
		}
	})

	return c, nil
}

func (c *Connection) OnICECandidate(cb func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = cb
	c.mu.Unlock()
}

func (c *Connection) OnTrack(cb func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onTrack = cb
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(cb func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = cb
	c.mu.Unlock()
}

func (c *Connection) iceCallback() func(webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onICE
}

func (c *Connection) trackCallback() func(*webrtc.TrackRemote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onTrack
}

func (c *Connection) stateCallback() func(webrtc.PeerConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onState
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	// Trickle: candidates follow via OnICECandidate as they are gathered.
	return offer, nil
}

func (c *Connection) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) AttachLocalTrack(track webrtc.TrackLocal) error {
	_, err := c.pc.AddTrack(track)
	return err
}

func (c *Connection) ReplaceLocalTrack(track webrtc.TrackLocal) error {
	for _, sender := range c.pc.GetSenders() {
		if sender.Track() == nil || sender.Track().Kind() != webrtc.RTPCodecTypeAudio {
			continue
		}
		if err := sender.ReplaceTrack(track); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(c.peer)).Msg("close error")
		return
	}
	log.Info().Str("module", "rtc").Str("peer", string(c.peer)).Msg("closed")
}
