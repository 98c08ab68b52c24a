package ingest

// State is the coordinator's current activity.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateProcessingFile
	StateMerging
	StateFlushing
	StateWatching
	StateStopped
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateScanning:       "scanning",
	StateProcessingFile: "processing_file",
	StateMerging:        "merging",
	StateFlushing:       "flushing",
	StateWatching:       "watching",
	StateStopped:        "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsTerminal reports whether the coordinator will do no further work.
func IsTerminal(s State) bool {
	return s == StateStopped
}
