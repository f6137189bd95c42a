package emitter

// State is a step of the scheduler lifecycle.
type State int32

const (
	Idle State = iota
	Connecting
	Running
	Emitting
	Waiting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Emitting:
		return "emitting"
	case Waiting:
		return "waiting"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether the scheduler holds a live broker session.
func (s State) Active() bool {
	return s == Running || s == Emitting || s == Waiting
}
