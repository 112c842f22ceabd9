package schema

// Event identifies what a blocked thread is waiting for. Together with an
// object (e.g. a node number) it forms the key a wake-up is matched against.
type Event int

const (
	EvNone Event = iota

	// EvReqReply is raised when a driver replied to a pending request.
	EvReqReply

	// EvDataReadable is raised when a node has new data to be read.
	EvDataReadable

	// EvChildDied is raised when a child thread terminated.
	EvChildDied
)

func (e Event) String() string {
	switch e {
	case EvNone:
		return "none"
	case EvReqReply:
		return "reqreply"
	case EvDataReadable:
		return "readable"
	case EvChildDied:
		return "childdied"
	default:
		return "unknown"
	}
}
