package project

// State is a step of the project workflow.
type State int

const (
	StateCreated State = iota
	StateUploading
	StatePolling
	StateDownloading
	StateExtracting
	StateDeleting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateUploading:
		return "uploading"
	case StatePolling:
		return "polling"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateDeleting:
		return "deleting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer is notified of every workflow transition. projectID is empty until
// the upload returns one.
type Observer interface {
	OnStateChange(state State, projectID string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(state State, projectID string)

func (f ObserverFunc) OnStateChange(state State, projectID string) { f(state, projectID) }
