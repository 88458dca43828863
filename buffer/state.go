package buffer

// State is the owner of a buffer at a point in time.
type State int

const (
	Free      State = iota // owned by the pool only
	Queued                 // handed to the capture device
	Dequeued               // filled, owned by the caller of Dequeue
	Displayed              // owned by the display plane
)

var stateNames = [...]string{"free", "queued", "dequeued", "displayed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

var transitions = map[State][]State{
	Free:      {Queued},
	Queued:    {Dequeued, Free},
	Dequeued:  {Queued, Displayed, Free},
	Displayed: {Queued, Free},
}

func (s State) canMove(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}
