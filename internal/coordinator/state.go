package coordinator

// State is the Coordinator's lifecycle phase.
type State int32

// Coordinator lifecycle states.
const (
	StateInit State = iota
	StateConnecting
	StateObserving
	StateReconnecting
	StateShutdown
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateObserving:
		return "observing"
	case StateReconnecting:
		return "reconnecting"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
