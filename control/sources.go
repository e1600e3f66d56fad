package control

import (
	"context"
	"errors"
	"time"

	"blackbody-telemetry/utils"
)

// RunHeartbeat posts a HeartbeatDue every interval until ctx is cancelled.
func RunHeartbeat(ctx context.Context, interval time.Duration, q *Queue) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Post(HeartbeatDue{})
		}
	}
}

// RunReceiver reads frames from r and posts them until ctx is cancelled or the bus closes.
// A read error is posted once as BusFailed, then reads resume after a pause.
func RunReceiver(ctx context.Context, r utils.CANReader, q *Queue, log *utils.Logger) {
	if log == nil {
		log = utils.Discard()
	}
	const retry = 500 * time.Millisecond
	for {
		f, err := r.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, utils.ErrBusClosed) {
				return
			}
			log.Error("receive: %v", err)
			q.Post(BusFailed{Err: err})
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}
		if !q.Post(FrameReceived{Frame: f}) {
			log.Warn("event queue full, frame 0x%03X dropped", f.ID)
		}
	}
}
