package core

type (
	// ConnID identifies one live transport connection.
	ConnID string
	// SessionID identifies one ledger session (a connection's tenure in a room).
	SessionID string
)

// Participant binds a connection id and its transport endpoint.
// This is what presence stores and fans out to.
type Participant interface {
	ID() ConnID
	Signal() SignalConnection
}
