package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"blackbody-telemetry/utils"
)

type eventLog struct {
	mu  sync.Mutex
	got []Event
}

func (l *eventLog) Handle(ev Event) {
	l.mu.Lock()
	l.got = append(l.got, ev)
	l.mu.Unlock()
}

func (l *eventLog) events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.got...)
}

func TestQueue_PostNeverBlocks(t *testing.T) {
	q := NewQueue(2)
	assert.True(t, q.Post(HeartbeatDue{}))
	assert.True(t, q.Post(HeartbeatDue{}))
	assert.False(t, q.Post(HeartbeatDue{}))
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())
}

func TestQueue_RunKeepsOrder(t *testing.T) {
	q := NewQueue(8)
	q.Post(SlotDue{Generation: 1, Index: 0})
	q.Post(HeartbeatDue{})
	q.Post(SlotDue{Generation: 1, Index: 1})

	h := &eventLog{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, h) }()

	require.Eventually(t, func() bool { return len(h.events()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []Event{
		SlotDue{Generation: 1, Index: 0},
		HeartbeatDue{},
		SlotDue{Generation: 1, Index: 1},
	}, h.events())
}

func TestTimerClock_PostsSlotsInOrder(t *testing.T) {
	q := NewQueue(64)
	clock := NewTimerClock(q.Post)
	clock.Arm(7, Schedule{PeriodMS: 20, Slots: []Slot{{OffsetMS: 0}, {OffsetMS: 10, Channel: 1}}})

	var got []SlotDue
	deadline := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case ev := <-q.events:
			got = append(got, ev.(SlotDue))
		case <-deadline:
			t.Fatalf("only %d slot events", len(got))
		}
	}
	clock.Disarm()

	for i, ev := range got {
		assert.Equal(t, uint64(7), ev.Generation)
		assert.Equal(t, i%2, ev.Index)
	}

	// drain anything posted before Disarm returned, then expect silence
	for q.Len() > 0 {
		<-q.events
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.Len())
}

func TestTimerClock_EmptyScheduleIsIdle(t *testing.T) {
	q := NewQueue(4)
	clock := NewTimerClock(q.Post)
	clock.Arm(1, Schedule{PeriodMS: 1000})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, q.Len())
	clock.Disarm()
	clock.Disarm()
}

func TestRunReceiver_PostsFrames(t *testing.T) {
	hub := utils.NewLoopbackHub()
	node := hub.Port(8)
	peer := hub.Port(8)
	defer peer.Close()

	q := NewQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		RunReceiver(ctx, node, q, nil)
		close(done)
	}()

	f := can.Frame{ID: 0x621, Length: 1, Data: can.Data{0x01}}
	require.NoError(t, peer.WriteFrame(ctx, f))

	select {
	case ev := <-q.events:
		assert.Equal(t, FrameReceived{Frame: f}, ev)
	case <-time.After(time.Second):
		t.Fatal("frame not posted")
	}

	require.NoError(t, node.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver did not exit on close")
	}
}

type failingReader struct{ calls int }

func (r *failingReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	r.calls++
	if r.calls > 1 {
		<-ctx.Done()
		return can.Frame{}, ctx.Err()
	}
	return can.Frame{}, errors.New("bus off")
}

func (r *failingReader) Close() error { return nil }

func TestRunReceiver_ReportsErrors(t *testing.T) {
	q := NewQueue(8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go RunReceiver(ctx, &failingReader{}, q, nil)

	select {
	case ev := <-q.events:
		bf, ok := ev.(BusFailed)
		require.True(t, ok)
		assert.EqualError(t, bf.Err, "bus off")
	case <-ctx.Done():
		t.Fatal("no BusFailed posted")
	}
}

func TestRunHeartbeat(t *testing.T) {
	q := NewQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	go RunHeartbeat(ctx, 5*time.Millisecond, q)

	require.Eventually(t, func() bool { return q.Len() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.Equal(t, HeartbeatDue{}, <-q.events)
}
