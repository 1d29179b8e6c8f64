// Package call implements the call session engine: one state machine per
// local identity that creates/joins/leaves calls, drives a mesh of peer
// connections and recovers the session across transient bus disconnects.
package call

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/signal"
)

// Session status values. Idle is initial and terminal.
const (
	StatusIdle         = "idle"
	StatusConnecting   = "connecting"
	StatusActive       = "active"
	StatusReconnecting = "reconnecting"
)

// FSM event names.
const (
	evDial    = "dial"
	evConfirm = "confirm"
	evDrop    = "drop"
	evHangup  = "hangup"
	evRestore = "restore"
)

type Config struct {
	Self              *domain.User
	JoinTimeout       time.Duration
	HeartbeatInterval time.Duration
	// Settings returns the current device settings; re-read synchronously
	// before every capture acquisition.
	Settings func() domain.DeviceSettings
	// EventBuffer sizes the outbound event channel.
	EventBuffer int
}

// Engine is a single logical actor: all session mutations run on the Run
// goroutine. Public operations post commands into the loop and wait.
type Engine struct {
	cfg     Config
	bus     core.SignalBus
	source  core.MediaSource
	newConn core.MediaConnFactory

	sm    *fsm.FSM
	peers *peerSet

	// Loop-owned state. Never touched off the Run goroutine.
	session       *domain.CallSession
	pendingCallID domain.CallID
	muted         bool
	epoch         uint64
	runCtx        context.Context
	joinTimer     *time.Timer
	heart         *time.Ticker

	cmds chan func()
	out  chan Event
	done chan struct{}
}

func NewEngine(cfg Config, bus core.SignalBus, source core.MediaSource, newConn core.MediaConnFactory) *Engine {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 15 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.Settings == nil {
		cfg.Settings = domain.DefaultDeviceSettings
	}
	e := &Engine{
		cfg:     cfg,
		bus:     bus,
		source:  source,
		newConn: newConn,
		peers:   newPeerSet(),
		cmds:    make(chan func(), 32),
		out:     make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
	e.sm = fsm.NewFSM(
		StatusIdle,
		fsm.Events{
			{Name: evDial, Src: []string{StatusIdle}, Dst: StatusConnecting},
			{Name: evConfirm, Src: []string{StatusConnecting, StatusReconnecting}, Dst: StatusActive},
			{Name: evDrop, Src: []string{StatusConnecting, StatusActive, StatusReconnecting}, Dst: StatusReconnecting},
			{Name: evHangup, Src: []string{StatusConnecting, StatusActive, StatusReconnecting}, Dst: StatusIdle},
			{Name: evRestore, Src: []string{StatusIdle}, Dst: StatusActive},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				log.Info().Str("module", "call").Str("from", ev.Src).Str("to", ev.Dst).Msg("status")
			},
		},
	)
	return e
}

// Events streams engine notifications. The consumer must drain it.
func (e *Engine) Events() <-chan Event { return e.out }

// Run drives the engine until ctx is canceled. Everything that mutates
// session state happens here; asynchronous completions re-enter through cmds.
func (e *Engine) Run(ctx context.Context) {
	e.runCtx = ctx
	defer close(e.done)
	defer e.teardown("engine stopped")
	for {
		var beat <-chan time.Time
		if e.heart != nil {
			beat = e.heart.C
		}
		select {
		case <-ctx.Done():
			return
		case fn := <-e.cmds:
			fn()
		case env, ok := <-e.bus.Events():
			if !ok {
				return
			}
			e.handleSignal(env)
		case st := <-e.bus.States():
			e.handleBusState(st)
		case <-beat:
			e.emitHeartbeat()
		}
	}
}

// post schedules fn on the loop, dropping it if the engine has stopped.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.done:
	}
}

// exec runs fn on the loop and waits for its result.
func (e *Engine) exec(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case e.cmds <- func() { res <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

// CreateCall starts a new call in the given room. Valid only while Idle.
func (e *Engine) CreateCall(ctx context.Context, roomID domain.RoomID, kind domain.RoomKind, roomName string) error {
	return e.exec(ctx, func() error {
		return e.startCall(signal.EventCreateCall, signal.CreateCall{
			RoomID:   string(roomID),
			RoomType: string(kind),
			RoomName: roomName,
		}, "")
	})
}

// JoinCall joins an existing call. Valid only while Idle.
func (e *Engine) JoinCall(ctx context.Context, id domain.CallID) error {
	return e.exec(ctx, func() error {
		return e.startCall(signal.EventJoinCall, signal.JoinCall{CallID: string(id)}, id)
	})
}

// LeaveCall tears the session down. Idempotent: a no-op while Idle.
func (e *Engine) LeaveCall(ctx context.Context) error {
	return e.exec(ctx, func() error {
		e.leave()
		return nil
	})
}

// ToggleMute flips local hard mute and returns the new value. Valid while
// Active or Reconnecting.
func (e *Engine) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	err := e.exec(ctx, func() error {
		cur := e.sm.Current()
		if cur != StatusActive && cur != StatusReconnecting {
			return ErrNotInCall
		}
		e.muted = !e.muted
		muted = e.muted
		// Hard mute is the sole authority over track enablement.
		e.source.SetEnabled(!e.muted)
		e.publish(signal.EventMuteToggle, signal.MuteToggle{
			CallID:  string(e.session.ID),
			IsMuted: e.muted,
		})
		e.applyMute(e.cfg.Self.ID, e.muted)
		return nil
	})
	return muted, err
}

// OnVoiceActivity feeds VAD transitions into the loop. The broadcast signal
// is speaking AND NOT muted; track enablement is never touched here.
func (e *Engine) OnVoiceActivity(speaking bool) {
	e.post(func() {
		cur := e.sm.Current()
		if cur != StatusActive && cur != StatusReconnecting {
			return
		}
		effective := speaking && !e.muted
		e.publish(signal.EventSpeaking, signal.Speaking{
			CallID:     string(e.session.ID),
			IsSpeaking: effective,
		})
		e.applySpeaking(e.cfg.Self.ID, effective)
	})
}

// ProbeRoom asks the bus whether the room already has an active call. The
// answer arrives as a call_exists/incoming_call style event.
func (e *Engine) ProbeRoom(ctx context.Context, roomID domain.RoomID) error {
	return e.exec(ctx, func() error {
		return e.bus.Publish(signal.EventGetActiveCall, signal.GetActiveCall{RoomID: string(roomID)})
	})
}

// UpdateDeviceSettings hot-swaps the capture device mid-call. Outside a call
// the new settings simply apply on the next acquisition.
func (e *Engine) UpdateDeviceSettings(ctx context.Context, set domain.DeviceSettings) error {
	return e.exec(ctx, func() error {
		if e.sm.Current() == StatusIdle {
			return nil
		}
		if err := e.source.Switch(set); err != nil {
			return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
		}
		e.replaceOutboundTrack()
		return nil
	})
}

// Snapshot returns a consistent engine state view.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.exec(ctx, func() error {
		snap = e.snapshotLocked()
		return nil
	})
	return snap, err
}

// --- loop-side implementation ---

func (e *Engine) startCall(event string, payload any, pending domain.CallID) error {
	if e.sm.Current() != StatusIdle {
		return ErrBusyInCall
	}
	set := e.cfg.Settings()
	if err := e.source.Acquire(e.runCtx, set); err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}
	// Fresh session: hard mute is not carried over from a previous call.
	e.muted = false
	e.source.SetEnabled(true)
	if err := e.bus.Publish(event, payload); err != nil {
		e.source.Release()
		return err
	}
	e.pendingCallID = pending
	_ = e.sm.Event(e.runCtx, evDial)
	e.armJoinTimer()
	e.startHeartbeats(false)
	e.emitStatus()
	return nil
}

func (e *Engine) leave() {
	if e.sm.Current() == StatusIdle {
		return
	}
	if e.session != nil {
		// Best effort: the server also detects us via heartbeat lapse.
		e.publish(signal.EventLeaveCall, signal.LeaveCall{CallID: string(e.session.ID)})
	}
	e.teardown("left call")
	e.emitStatus()
}

// teardown is the single cancellation path: it unconditionally releases every
// resource regardless of in-flight negotiation state.
func (e *Engine) teardown(reason string) {
	if e.sm.Current() == StatusIdle && e.session == nil && len(e.peers.links) == 0 {
		return
	}
	e.stopJoinTimer()
	e.stopHeartbeats()
	e.closeAllLinks()
	e.source.Release()
	e.session = nil
	e.pendingCallID = ""
	e.muted = false
	e.epoch++
	if e.sm.Current() != StatusIdle {
		_ = e.sm.Event(e.runCtx, evHangup)
	}
	log.Info().Str("module", "call").Str("reason", reason).Msg("session torn down")
}

// confirmSession installs the server snapshot and brings the session Active.
// initiate=true makes this side offer to every already-present participant
// (the glare rule: the joining side initiates).
func (e *Engine) confirmSession(snap signal.CallSnapshot, viaRestore bool) {
	e.stopJoinTimer()
	e.session = sessionFromSnapshot(snap, e.cfg.Self)
	e.pendingCallID = ""
	if self := e.session.Find(e.cfg.Self.ID); self != nil {
		self.Muted = e.muted
	}
	if viaRestore {
		_ = e.sm.Event(e.runCtx, evRestore)
	} else {
		_ = e.sm.Event(e.runCtx, evConfirm)
	}
	e.syncLinks(true)
	e.startHeartbeats(true)
	e.emitStatus()
	e.emitRoster()
}

func (e *Engine) armJoinTimer() {
	e.stopJoinTimer()
	epoch := e.epoch
	e.joinTimer = time.AfterFunc(e.cfg.JoinTimeout, func() {
		e.post(func() { e.onJoinTimeout(epoch) })
	})
}

func (e *Engine) stopJoinTimer() {
	if e.joinTimer != nil {
		e.joinTimer.Stop()
		e.joinTimer = nil
	}
}

func (e *Engine) onJoinTimeout(epoch uint64) {
	if epoch != e.epoch {
		return
	}
	cur := e.sm.Current()
	if cur != StatusConnecting && cur != StatusReconnecting {
		return
	}
	log.Warn().Str("module", "call").Str("status", cur).Msg("join confirmation timed out")
	e.teardown("signaling timeout")
	e.emitStatus()
	e.emitFailure(ErrSignalingTimeout)
}

func (e *Engine) handleBusState(st core.BusState) {
	switch st {
	case core.BusDown:
		if e.sm.Current() == StatusIdle {
			return
		}
		// No teardown: links and capture are presumed to self-heal once
		// signaling resumes.
		_ = e.sm.Event(e.runCtx, evDrop)
		e.emitStatus()
	case core.BusUp:
		if e.session != nil {
			e.publish(signal.EventJoinCall, signal.JoinCall{CallID: string(e.session.ID)})
			e.armJoinTimer()
			return
		}
		if e.sm.Current() == StatusIdle {
			// Process restart: ask whether a session survived us.
			e.publish(signal.EventGetMyCall, nil)
		}
	}
}

func (e *Engine) publish(event string, payload any) {
	if err := e.bus.Publish(event, payload); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("event", event).Msg("publish failed")
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.out <- ev:
	default:
		log.Warn().Str("module", "call").Str("kind", string(ev.Kind)).Msg("event channel full, dropping")
	}
}

func (e *Engine) emitStatus() {
	e.emit(Event{Kind: EventStatus, Status: e.sm.Current()})
}

func (e *Engine) emitRoster() {
	e.emit(Event{Kind: EventRoster, Roster: e.rosterView()})
}

func (e *Engine) emitFailure(err error) {
	e.emit(Event{Kind: EventFailure, Err: err})
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{Status: e.sm.Current(), Muted: e.muted}
	if e.session != nil {
		snap.CallID = e.session.ID
		snap.RoomID = e.session.RoomID
		snap.RoomName = e.session.RoomName
		snap.Roster = e.rosterView()
	}
	for _, link := range e.peers.links {
		snap.Links = append(snap.Links, LinkView{User: link.User, Role: link.Role, State: link.State})
	}
	return snap
}

func sessionFromSnapshot(snap signal.CallSnapshot, self *domain.User) *domain.CallSession {
	s := &domain.CallSession{
		ID:        domain.CallID(snap.CallID),
		RoomID:    domain.RoomID(snap.RoomID),
		RoomKind:  domain.RoomKind(snap.RoomType),
		RoomName:  snap.RoomName,
		CreatedAt: time.Now(),
		CreatedBy: domain.UserID(snap.CreatedBy),
	}
	now := time.Now()
	for _, pi := range snap.Participants {
		p := domain.NewParticipant(&domain.User{
			ID:       domain.UserID(pi.UserID),
			Username: pi.Username,
			Avatar:   pi.Avatar,
		}, now)
		p.Muted = pi.Muted
		s.Add(p)
	}
	if s.Find(self.ID) == nil {
		s.Add(domain.NewParticipant(self, now))
	}
	return s
}
