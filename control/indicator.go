package control

import "sync/atomic"

// Indicator is a boolean output line (an LED on the board).
type Indicator interface {
	Set(on bool)
}

// Indicators groups the three lines the controller drives.
type Indicators struct {
	Heartbeat Indicator
	Tracking  Indicator
	Error     Indicator
}

func (i Indicators) withDefaults() Indicators {
	if i.Heartbeat == nil {
		i.Heartbeat = &Latch{}
	}
	if i.Tracking == nil {
		i.Tracking = &Latch{}
	}
	if i.Error == nil {
		i.Error = &Latch{}
	}
	return i
}

// Latch is an in-memory line. It remembers its level and how often it was written, and is
// safe to read from other goroutines.
type Latch struct {
	on     atomic.Bool
	writes atomic.Uint64
}

func (l *Latch) Set(on bool) {
	l.on.Store(on)
	l.writes.Add(1)
}

func (l *Latch) On() bool { return l.on.Load() }

func (l *Latch) Writes() uint64 { return l.writes.Load() }
