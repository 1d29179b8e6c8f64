package call

import (
	"time"

	"github.com/dkeye/huddle/internal/signal"
)

// Heartbeats are emitted while status is connecting, active or reconnecting,
// and never while idle. The ticker is armed on dial and stopped by teardown,
// so a heartbeat can never leak past leave.

func (e *Engine) startHeartbeats(immediate bool) {
	if e.heart == nil {
		e.heart = time.NewTicker(e.cfg.HeartbeatInterval)
	}
	if immediate {
		e.emitHeartbeat()
	}
}

func (e *Engine) stopHeartbeats() {
	if e.heart != nil {
		e.heart.Stop()
		e.heart = nil
	}
}

func (e *Engine) emitHeartbeat() {
	id := e.currentCallID()
	if id == "" {
		// Connecting on a create: no call id yet, nothing to report.
		return
	}
	e.publish(signal.EventHeartbeat, signal.Heartbeat{CallID: id})
}

func (e *Engine) currentCallID() string {
	if e.session != nil {
		return string(e.session.ID)
	}
	return string(e.pendingCallID)
}
