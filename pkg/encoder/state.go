package encoder

// State is the lifecycle state of a Driver.
type State int

const (
	StateIdle State = iota
	StateConfigured
	StateRunning
	StateEndOfStreamSignaled
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateEndOfStreamSignaled:
		return "end-of-stream-signaled"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
