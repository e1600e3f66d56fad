package control

import (
	"context"
	"sync/atomic"

	"go.einride.tech/can"
)

// Event is anything the dispatch loop handles. Producers only post events; all handling
// happens on the loop.
type Event interface {
	event()
}

// FrameReceived carries a frame read from the bus.
type FrameReceived struct {
	Frame can.Frame
}

// SlotDue fires when a schedule slot comes up. Generation is the schedule it was armed for.
type SlotDue struct {
	Generation uint64
	Index      int
}

// HeartbeatDue fires once per heartbeat period.
type HeartbeatDue struct{}

// BusFailed reports a receive error from the transport.
type BusFailed struct {
	Err error
}

// LocalFault is a fault raised by the node itself outside the bus, e.g. from the CLI.
type LocalFault struct {
	Code FaultCode
}

func (FrameReceived) event() {}
func (SlotDue) event()       {}
func (HeartbeatDue) event()  {}
func (BusFailed) event()     {}
func (LocalFault) event()    {}

// Handler consumes events on the dispatch goroutine.
type Handler interface {
	Handle(ev Event)
}

// Queue is the bounded hand-off between producers and the dispatch loop.
type Queue struct {
	events  chan Event
	dropped atomic.Uint64
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 64
	}
	return &Queue{events: make(chan Event, depth)}
}

// Post enqueues ev without blocking. A full queue drops the event and counts it.
func (q *Queue) Post(ev Event) bool {
	select {
	case q.events <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

func (q *Queue) Len() int { return len(q.events) }

// Run hands events to h in arrival order until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-q.events:
			h.Handle(ev)
		}
	}
}
