package chat

// Handle is one physical connection. It accepts JSON-serializable messages and
// can be closed. Close must be idempotent.
type Handle interface {
	SendJSON(v any) error
	Close() error
}

// Observer receives registry lifecycle notifications. Calls are made from the
// registry's notifier goroutine, in order, never while registry locks are held.
type Observer interface {
	Connected(clientID string)
	Associated(username, clientID string)
	Disconnected(clientID string, usernames []string)
	Delivered(username, clientID string)
}

// SessionState is the per-connection lifecycle seen by the read loop.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnected                 // open, no username yet
	StateRegistered                // open, associated with a username
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	default:
		return "disconnected"
	}
}
