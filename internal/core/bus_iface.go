package core

import "github.com/dkeye/huddle/internal/signal"

// BusState reports transport-level connectivity of the signaling bus.
type BusState int

const (
	BusDown BusState = iota
	BusUp
)

// SignalBus abstracts the real-time message bus carrying signaling events.
// Delivery is at-least-once and unordered across peers; the engine owns
// draining both channels from its single event loop.
// Owned by the adapter; the adapter must Close() it.
type SignalBus interface {
	// Publish sends one envelope, best effort. Returns an error when the
	// transport is down or the send queue is saturated.
	Publish(event string, payload any) error
	// Events streams inbound envelopes.
	Events() <-chan signal.Envelope
	// States streams transport up/down transitions.
	States() <-chan BusState
	Close()
}
