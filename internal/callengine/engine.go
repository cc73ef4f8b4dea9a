package callengine

import "context"

// TransportState describes the negotiated media transport for a call.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnected
	TransportDisconnected
	TransportFailed
)

// Session is a live negotiated media session for one call.
type Session interface {
	// Close releases the session. Must be safe to call more than once.
	Close() error
}

// Engine abstracts the external media stack. The coordinator opens a
// session when a call is accepted and closes it on every terminal
// transition; implementations report transport state changes through
// onState.
type Engine interface {
	Open(ctx context.Context, callID, caller, callee string, onState func(TransportState)) (Session, error)
}
