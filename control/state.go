// Package control is the node's control loop: the operating-mode state machine, the multi-rate
// sampling scheduler, the latched fault manager and the single-threaded event dispatch that
// drives them.
//
// Everything in this package except Queue.Post and the event sources runs on the dispatch
// goroutine. Handlers run to completion, so controller state carries no locks.
package control

// State is the operating mode of the node.
type State uint8

const (
	Stopped State = iota
	Running
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Running:
		return "RUNNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// fsmEvent is an input of the mode state machine.
type fsmEvent uint8

const (
	evRun fsmEvent = iota
	evStop
	evFaultRaised
	evFaultAcknowledged
)

func (e fsmEvent) String() string {
	switch e {
	case evRun:
		return "set_mode(run)"
	case evStop:
		return "set_mode(stop)"
	case evFaultRaised:
		return "fault_raised"
	case evFaultAcknowledged:
		return "fault_acknowledged"
	default:
		return "unknown"
	}
}

// next is the transition table. ok is false for events the state ignores.
func next(from State, ev fsmEvent) (State, bool) {
	switch from {
	case Stopped, Running:
		switch ev {
		case evRun:
			return Running, true
		case evStop:
			return Stopped, true
		case evFaultRaised:
			return Error, true
		}
	case Error:
		if ev == evFaultAcknowledged {
			return Stopped, true
		}
	}
	return from, false
}
