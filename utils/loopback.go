package utils

import (
	"context"
	"sync"

	"go.einride.tech/can"
)

// LoopbackHub is an in-memory CAN segment. Every frame written on one port is delivered to all
// other ports, never back to the sender, matching SocketCAN's default for a raw socket.
type LoopbackHub struct {
	mu    sync.Mutex
	ports []*LoopbackPort
}

func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{}
}

// Port attaches a new node to the segment. depth bounds its receive queue; frames arriving on a
// full queue are dropped, like an overrun controller.
func (h *LoopbackHub) Port(depth int) *LoopbackPort {
	if depth <= 0 {
		depth = 64
	}
	p := &LoopbackPort{
		hub:    h,
		frames: make(chan can.Frame, depth),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.ports = append(h.ports, p)
	h.mu.Unlock()
	return p
}

func (h *LoopbackHub) deliver(from *LoopbackPort, f can.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.ports {
		if p == from {
			continue
		}
		select {
		case <-p.done:
		case p.frames <- f:
		default:
		}
	}
}

func (h *LoopbackHub) detach(p *LoopbackPort) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, q := range h.ports {
		if q == p {
			h.ports = append(h.ports[:i], h.ports[i+1:]...)
			return
		}
	}
}

type LoopbackPort struct {
	hub    *LoopbackHub
	frames chan can.Frame
	done   chan struct{}
	once   sync.Once
}

func (p *LoopbackPort) WriteFrame(ctx context.Context, f can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrBusClosed
	default:
	}
	p.hub.deliver(p, f)
	return nil
}

func (p *LoopbackPort) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-p.done:
		return can.Frame{}, ErrBusClosed
	case f := <-p.frames:
		return f, nil
	}
}

func (p *LoopbackPort) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.hub.detach(p)
	})
	return nil
}
