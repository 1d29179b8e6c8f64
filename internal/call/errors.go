package call

import "errors"

var (
	// ErrMediaAcquisition wraps capture device or permission failures. The
	// attempted create/join aborts; no automatic retry.
	ErrMediaAcquisition = errors.New("media acquisition failed")

	// ErrSignalingTimeout means no confirming event arrived within the join
	// bound. The session is aborted and resources released.
	ErrSignalingTimeout = errors.New("signaling timeout")

	// ErrBusyInCall guards create/join preconditions: only one session per
	// local identity.
	ErrBusyInCall = errors.New("already in a call")

	// ErrNotInCall guards operations that need an established session.
	ErrNotInCall = errors.New("not in a call")

	// ErrServerRejected carries an explicit error event from signaling.
	ErrServerRejected = errors.New("rejected by server")

	// ErrEngineStopped is returned by public operations after Run has exited.
	ErrEngineStopped = errors.New("engine stopped")
)
