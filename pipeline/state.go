package pipeline

import "fmt"

// State is the lifecycle stage of a Driver.
type State int

const (
	Uninitialized State = iota
	Configured
	Streaming
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Configured:
		return "configured"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handoff selects who holds a frame while it is on screen.
type Handoff int

const (
	// RequeueFirst gives a dequeued buffer straight back to capture and
	// then presents it. The display never owns a buffer.
	RequeueFirst Handoff = iota
	// HoldDisplayed keeps the presented buffer off the capture queue until
	// the next frame replaces it on screen.
	HoldDisplayed
)

func (h Handoff) String() string {
	switch h {
	case RequeueFirst:
		return "requeue-first"
	case HoldDisplayed:
		return "hold-displayed"
	}
	return fmt.Sprintf("handoff(%d)", int(h))
}

// ParseHandoff is the inverse of Handoff.String.
func ParseHandoff(s string) (Handoff, error) {
	switch s {
	case "", "requeue-first":
		return RequeueFirst, nil
	case "hold-displayed":
		return HoldDisplayed, nil
	}
	return 0, fmt.Errorf("unknown handoff mode %q", s)
}
