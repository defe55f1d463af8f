package offcache

import "strconv"

// State is the lifecycle position of a Manager.
//
//	New -> Installing -> Waiting -> Activating -> Active -> Superseded
//	            \-> Discarded
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateWaiting
	StateActivating
	StateActive
	StateSuperseded
	StateDiscarded
)

var stateNames = [...]string{
	StateNew:        "new",
	StateInstalling: "installing",
	StateWaiting:    "waiting",
	StateActivating: "activating",
	StateActive:     "active",
	StateSuperseded: "superseded",
	StateDiscarded:  "discarded",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}
