package call

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/signal"
)

// handleSignal routes one inbound bus envelope. Runs on the engine loop.
func (e *Engine) handleSignal(env signal.Envelope) {
	switch env.Event {
	case signal.EventCallCreated, signal.EventCallJoined:
		var snap signal.CallSnapshot
		if err := env.Payload(&snap); err != nil {
			log.Error().Err(err).Str("module", "call").Msg("bad call snapshot")
			return
		}
		e.handleConfirm(snap)
	case signal.EventCallExists:
		var snap signal.CallSnapshot
		if err := env.Payload(&snap); err != nil {
			log.Error().Err(err).Str("module", "call").Msg("bad call_exists payload")
			return
		}
		e.handleCallExists(snap)
	case signal.EventMyCall:
		var my signal.MyCall
		if err := env.Payload(&my); err != nil {
			log.Error().Err(err).Str("module", "call").Msg("bad my_call payload")
			return
		}
		e.handleMyCall(my)
	case signal.EventUserJoined:
		var p signal.UserJoined
		if err := env.Payload(&p); err != nil {
			return
		}
		e.handleUserJoined(p)
	case signal.EventUserLeft:
		var p signal.UserLeft
		if err := env.Payload(&p); err != nil {
			return
		}
		e.handleUserLeft(p)
	case signal.EventLeftCall, signal.EventCallEnded:
		var p signal.CallEnded
		if err := env.Payload(&p); err != nil {
			return
		}
		e.handleCallEnded(p)
	case signal.EventIncomingCall, signal.EventCallStarted:
		var p signal.IncomingCall
		if err := env.Payload(&p); err != nil {
			return
		}
		e.emit(Event{Kind: EventIncoming, Incoming: &p})
	case signal.EventOffer:
		var p signal.SessionDesc
		if err := env.Payload(&p); err != nil {
			return
		}
		if !e.sessionMatches(p.CallID) {
			return
		}
		e.handleOffer(domain.UserID(p.FromUserID), p.SDP)
	case signal.EventAnswer:
		var p signal.SessionDesc
		if err := env.Payload(&p); err != nil {
			return
		}
		if !e.sessionMatches(p.CallID) {
			return
		}
		e.handleAnswer(domain.UserID(p.FromUserID), p.SDP)
	case signal.EventICECandidate:
		var p signal.ICECandidate
		if err := env.Payload(&p); err != nil {
			return
		}
		if !e.sessionMatches(p.CallID) {
			return
		}
		e.handleCandidate(domain.UserID(p.FromUserID), p.Candidate)
	case signal.EventMuteStatus:
		var p signal.MuteStatus
		if err := env.Payload(&p); err != nil {
			return
		}
		e.applyMute(domain.UserID(p.UserID), p.IsMuted)
	case signal.EventSpeakingStatus:
		var p signal.SpeakingStatus
		if err := env.Payload(&p); err != nil {
			return
		}
		e.applySpeaking(domain.UserID(p.UserID), p.IsSpeaking)
	case signal.EventUserDisconnected:
		var p signal.UserDisconnected
		if err := env.Payload(&p); err != nil {
			return
		}
		e.applyDisconnected(domain.UserID(p.UserID), p.Disconnected)
	case signal.EventError:
		var p signal.ServerError
		_ = env.Payload(&p)
		e.handleServerError(p.Message)
	default:
		log.Warn().Str("module", "call").Str("event", env.Event).Msg("unknown signal")
	}
}

// sessionMatches drops stale payloads referencing a different call.
func (e *Engine) sessionMatches(callID string) bool {
	if e.session == nil || string(e.session.ID) != callID {
		log.Debug().Str("module", "call").Str("call_id", callID).Msg("event for foreign call, dropped")
		return false
	}
	return true
}

func (e *Engine) handleConfirm(snap signal.CallSnapshot) {
	switch e.sm.Current() {
	case StatusConnecting:
		e.confirmSession(snap, false)
	case StatusReconnecting:
		if e.session != nil && string(e.session.ID) != snap.CallID {
			log.Warn().Str("module", "call").Str("call_id", snap.CallID).Msg("rejoin confirmed a different call, dropped")
			return
		}
		e.confirmSession(snap, false)
	default:
		log.Debug().Str("module", "call").Str("call_id", snap.CallID).Msg("confirm while not connecting, dropped")
	}
}

// handleCallExists redirects a create attempt to the room's existing call.
func (e *Engine) handleCallExists(snap signal.CallSnapshot) {
	if e.sm.Current() != StatusConnecting {
		return
	}
	log.Info().Str("module", "call").Str("call_id", snap.CallID).Msg("room already has a call, joining it")
	e.pendingCallID = domain.CallID(snap.CallID)
	e.publish(signal.EventJoinCall, signal.JoinCall{CallID: snap.CallID})
}

// handleMyCall restores a session that survived a process restart. No user
// interaction: media and links come back automatically.
func (e *Engine) handleMyCall(my signal.MyCall) {
	if my.Call == nil {
		if e.sm.Current() == StatusReconnecting {
			e.teardown("server restored no session")
			e.emitStatus()
		}
		return
	}
	if e.sm.Current() != StatusIdle {
		return
	}
	set := e.cfg.Settings()
	if err := e.source.Acquire(e.runCtx, set); err != nil {
		log.Error().Err(err).Str("module", "call").Msg("restore aborted: media unavailable")
		e.emitFailure(fmt.Errorf("%w: %v", ErrMediaAcquisition, err))
		return
	}
	e.muted = false
	e.source.SetEnabled(true)
	e.confirmSession(*my.Call, true)
}

func (e *Engine) handleUserJoined(p signal.UserJoined) {
	if !e.sessionMatches(p.CallID) {
		return
	}
	user := &domain.User{
		ID:       domain.UserID(p.Participant.UserID),
		Username: p.Participant.Username,
		Avatar:   p.Participant.Avatar,
	}
	np := domain.NewParticipant(user, time.Now())
	np.Muted = p.Participant.Muted
	if !e.session.Add(np) {
		return
	}
	// The newcomer initiates toward us per the glare rule; we only prepare
	// the responder side.
	e.ensureLink(user.ID, false)
	e.emitRoster()
}

func (e *Engine) handleUserLeft(p signal.UserLeft) {
	if !e.sessionMatches(p.CallID) {
		return
	}
	user := domain.UserID(p.UserID)
	if user == e.cfg.Self.ID {
		// Kicked: the server removed us.
		e.teardown("removed from call")
		e.emitStatus()
		return
	}
	if !e.session.Remove(user) {
		return
	}
	e.dropLink(user)
	e.emitRoster()
}

func (e *Engine) handleCallEnded(p signal.CallEnded) {
	if e.session == nil || string(e.session.ID) != p.CallID {
		return
	}
	e.teardown("call ended")
	e.emitStatus()
}

func (e *Engine) handleServerError(msg string) {
	err := fmt.Errorf("%w: %s", ErrServerRejected, msg)
	log.Warn().Str("module", "call").Str("message", msg).Msg("server error")
	if e.sm.Current() == StatusConnecting {
		e.teardown("server rejection")
		e.emitStatus()
	}
	e.emitFailure(err)
}
