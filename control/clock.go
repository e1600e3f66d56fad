package control

import (
	"context"
	"sync"
	"time"
)

// TimerClock is the SlotClock used on a live node. Each armed schedule runs on its own
// goroutine and posts SlotDue events at the slot offsets, cycle after cycle. Cycles are laid
// out from the arm time, so a late slot does not push the following ones.
type TimerClock struct {
	post func(Event) bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTimerClock(post func(Event) bool) *TimerClock {
	return &TimerClock{post: post}
}

func (c *TimerClock) Arm(generation uint64, s Schedule) {
	c.Disarm()
	if s.Empty() || s.PeriodMS == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx, generation, s)
	}()
}

// Disarm stops the running schedule and waits for its goroutine to exit.
func (c *TimerClock) Disarm() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *TimerClock) run(ctx context.Context, generation uint64, s Schedule) {
	period := time.Duration(s.PeriodMS) * time.Millisecond
	start := time.Now()
	for {
		for i, slot := range s.Slots {
			due := start.Add(time.Duration(slot.OffsetMS) * time.Millisecond)
			if wait := time.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			} else if ctx.Err() != nil {
				return
			}
			c.post(SlotDue{Generation: generation, Index: i})
		}
		start = start.Add(period)
	}
}
