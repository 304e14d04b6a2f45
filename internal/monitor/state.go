package monitor

// State is the loop's position within a cycle.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateDetecting
	StateDeciding
	StateUploading
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateDetecting:
		return "detecting"
	case StateDeciding:
		return "deciding"
	case StateUploading:
		return "uploading"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
