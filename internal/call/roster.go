package call

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/domain"
)

// Roster flag reconciliation. Muted is authoritative (explicit toggles),
// speaking is advisory (voice activity), disconnected is session-layer
// liveness. The one coupling rule: a muted participant never reads as
// speaking.

func (e *Engine) applyMute(user domain.UserID, muted bool) {
	p := e.findParticipant(user)
	if p == nil {
		return
	}
	p.Muted = muted
	if muted {
		p.Speaking = false
	}
	e.emitRoster()
}

func (e *Engine) applySpeaking(user domain.UserID, speaking bool) {
	p := e.findParticipant(user)
	if p == nil {
		return
	}
	if p.Muted {
		speaking = false
	}
	if p.Speaking == speaking {
		return
	}
	p.Speaking = speaking
	e.emitRoster()
}

func (e *Engine) applyDisconnected(user domain.UserID, disconnected bool) {
	p := e.findParticipant(user)
	if p == nil {
		return
	}
	if p.Disconnected == disconnected {
		return
	}
	p.Disconnected = disconnected
	if !disconnected {
		p.LastHeartbeat = time.Now()
	}
	log.Info().Str("module", "call").Str("user", string(user)).Bool("disconnected", disconnected).Msg("participant liveness")
	e.emitRoster()
}

func (e *Engine) findParticipant(user domain.UserID) *domain.Participant {
	if e.session == nil {
		return nil
	}
	p := e.session.Find(user)
	if p == nil {
		log.Debug().Str("module", "call").Str("user", string(user)).Msg("status for unknown participant, dropped")
	}
	return p
}

func (e *Engine) rosterView() []ParticipantView {
	if e.session == nil {
		return nil
	}
	out := make([]ParticipantView, 0, len(e.session.Participants))
	for _, p := range e.session.Participants {
		out = append(out, ParticipantView{
			ID:           p.User.ID,
			Username:     p.User.Username,
			Avatar:       p.User.Avatar,
			Muted:        p.Muted,
			Speaking:     p.Speaking && !p.Muted,
			Disconnected: p.Disconnected,
			Self:         p.User.ID == e.cfg.Self.ID,
		})
	}
	return out
}
