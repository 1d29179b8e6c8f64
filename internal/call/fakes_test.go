package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/signal"
)

type fakeBus struct {
	mu         sync.Mutex
	published  []signal.Envelope
	publishErr error

	events chan signal.Envelope
	states chan core.BusState
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		events: make(chan signal.Envelope, 64),
		states: make(chan core.BusState, 8),
	}
}

func (b *fakeBus) Publish(event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	frame, err := signal.Encode(event, payload)
	if err != nil {
		return err
	}
	env, err := signal.Decode(frame)
	if err != nil {
		return err
	}
	b.published = append(b.published, env)
	return nil
}

func (b *fakeBus) Events() <-chan signal.Envelope { return b.events }
func (b *fakeBus) States() <-chan core.BusState   { return b.states }
func (b *fakeBus) Close()                         {}

func (b *fakeBus) sent(event string) []signal.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []signal.Envelope
	for _, env := range b.published {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func (b *fakeBus) sentCount(event string) int { return len(b.sent(event)) }

func (b *fakeBus) inject(t *testing.T, event string, payload any) {
	t.Helper()
	frame, err := signal.Encode(event, payload)
	require.NoError(t, err)
	env, err := signal.Decode(frame)
	require.NoError(t, err)
	b.events <- env
}

func (b *fakeBus) setState(s core.BusState) { b.states <- s }

type fakeSource struct {
	mu         sync.Mutex
	acquireErr error
	switchErr  error
	acquired   bool
	enabled    bool
	releases   int
	switches   []domain.DeviceSettings
}

func newFakeSource() *fakeSource { return &fakeSource{enabled: true} }

func (s *fakeSource) Acquire(_ context.Context, _ domain.DeviceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return s.acquireErr
	}
	s.acquired = true
	return nil
}

func (s *fakeSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired {
		s.releases++
	}
	s.acquired = false
}

func (s *fakeSource) Track() webrtc.TrackLocal { return nil }

func (s *fakeSource) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *fakeSource) Switch(set domain.DeviceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.switchErr != nil {
		return s.switchErr
	}
	s.switches = append(s.switches, set)
	return nil
}

func (s *fakeSource) Level() int { return 0 }

func (s *fakeSource) isEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *fakeSource) isAcquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

func (s *fakeSource) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

type fakeConn struct {
	user domain.UserID

	mu         sync.Mutex
	offers     int
	accepted   []string
	answers    []string
	candidates []webrtc.ICECandidateInit
	closed     bool

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote)
	onState func(webrtc.PeerConnectionState)
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-to-" + string(c.user)}, nil
}

func (c *fakeConn) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted = append(c.accepted, offer.SDP)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + string(c.user)}, nil
}

func (c *fakeConn) ApplyAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = append(c.answers, answer.SDP)
	return nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *fakeConn) AttachLocalTrack(webrtc.TrackLocal) error  { return nil }
func (c *fakeConn) ReplaceLocalTrack(webrtc.TrackLocal) error { return nil }

func (c *fakeConn) OnICECandidate(cb func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = cb
	c.mu.Unlock()
}

func (c *fakeConn) OnTrack(cb func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onTrack = cb
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(cb func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = cb
	c.mu.Unlock()
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) fireState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (c *fakeConn) fireICE(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	cb := c.onICE
	c.mu.Unlock()
	if cb != nil {
		cb(ci)
	}
}

func (c *fakeConn) offerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers
}

func (c *fakeConn) candidateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.candidates)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	conns map[domain.UserID][]*fakeConn
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{conns: make(map[domain.UserID][]*fakeConn)}
}

func (f *fakeFactory) new(user domain.UserID) (core.MediaConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{user: user}
	f.conns[user] = append(f.conns[user], c)
	return c, nil
}

func (f *fakeFactory) last(user domain.UserID) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.conns[user]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *fakeFactory) count(user domain.UserID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[user])
}

// harness wires an engine to fakes and records its event stream.
type harness struct {
	t    *testing.T
	bus  *fakeBus
	src  *fakeSource
	fact *fakeFactory
	eng  *Engine

	mu     sync.Mutex
	recved []Event
}

const selfID = domain.UserID("self")

func newHarness(t *testing.T, mod func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		bus:  newFakeBus(),
		src:  newFakeSource(),
		fact: newFakeFactory(),
	}
	cfg := Config{
		Self:              &domain.User{ID: selfID, Username: "me"},
		JoinTimeout:       2 * time.Second,
		HeartbeatInterval: time.Hour, // individual tests shorten this
		Settings:          domain.DefaultDeviceSettings,
	}
	if mod != nil {
		mod(&cfg)
	}
	h.eng = NewEngine(cfg, h.bus, h.src, h.fact.new)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.eng.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-h.eng.Events():
				h.mu.Lock()
				h.recved = append(h.recved, ev)
				h.mu.Unlock()
			}
		}
	}()
	return h
}

func (h *harness) snap() Snapshot {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := h.eng.Snapshot(ctx)
	require.NoError(h.t, err)
	return snap
}

func (h *harness) waitStatus(status string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.snap().Status == status
	}, 2*time.Second, 10*time.Millisecond, "waiting for status %s", status)
}

func (h *harness) waitEvent(kind EventKind) Event {
	h.t.Helper()
	var found Event
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, ev := range h.recved {
			if ev.Kind == kind {
				found = ev
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "waiting for %s event", kind)
	return found
}

func (h *harness) link(user domain.UserID) (LinkView, bool) {
	for _, l := range h.snap().Links {
		if l.User == user {
			return l, true
		}
	}
	return LinkView{}, false
}

func participants(ids ...string) []signal.ParticipantInfo {
	out := make([]signal.ParticipantInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, signal.ParticipantInfo{UserID: id, Username: "user-" + id})
	}
	return out
}

func snapshotFor(callID string, ids ...string) signal.CallSnapshot {
	return signal.CallSnapshot{
		CallID:       callID,
		RoomID:       "room-1",
		RoomType:     "group",
		RoomName:     "Team",
		Participants: participants(ids...),
	}
}

// joinActive brings the harness into an Active session with the given
// remote participants.
func (h *harness) joinActive(callID string, remotes ...string) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(h.t, h.eng.JoinCall(ctx, domain.CallID(callID)))
	ids := append([]string{string(selfID)}, remotes...)
	h.bus.inject(h.t, signal.EventCallJoined, snapshotFor(callID, ids...))
	h.waitStatus(StatusActive)
}
