package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// ErrBusClosed is returned by ReadFrame once the transport has been closed.
var ErrBusClosed = errors.New("can bus closed")

// redialInterval is the pause between a failed socket and the next dial.
const redialInterval = 500 * time.Millisecond

// CANReader defines the interface for reading CAN frames
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

type dialFunc func(ctx context.Context) (net.Conn, error)

// SocketCANReader implements CANReader using Einride's socketcan.
// A single pump goroutine owns the receiver; ReadFrame only waits on its output.
// When the socket fails (EOF included) the error is handed to ReadFrame once
// and the pump dials a fresh socket. Only Close ends it.
type SocketCANReader struct {
	dial   dialFunc
	onConn func(net.Conn)
	retry  time.Duration

	mu   sync.Mutex
	conn net.Conn

	frames chan can.Frame
	errs   chan error
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func socketCANDialer(iface string) dialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		conn, err := socketcan.DialContext(ctx, "can", iface)
		if err != nil {
			return nil, fmt.Errorf("socketcan dial: %w", err)
		}
		return conn, nil
	}
}

// newSocketCANReader starts the pump on conn. onConn, when set, is told about
// every replacement socket.
func newSocketCANReader(conn net.Conn, dial dialFunc, onConn func(net.Conn)) *SocketCANReader {
	r := &SocketCANReader{
		dial:   dial,
		onConn: onConn,
		retry:  redialInterval,
		conn:   conn,
		frames: make(chan can.Frame, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.pump(ctx)
	return r
}

func (r *SocketCANReader) current() net.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

func (r *SocketCANReader) closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *SocketCANReader) report(err error) {
	select {
	case r.errs <- err:
	default:
	}
}

func (r *SocketCANReader) pump(ctx context.Context) {
	for {
		conn := r.current()
		recv := socketcan.NewReceiver(conn)
		for recv.Receive() {
			if recv.HasErrorFrame() {
				continue
			}
			select {
			case r.frames <- recv.Frame():
			case <-r.done:
				return
			}
		}
		if r.closed() {
			return
		}
		err := recv.Err()
		if err == nil {
			err = io.EOF
		}
		r.report(fmt.Errorf("socketcan receive: %w", err))
		_ = conn.Close()
		if !r.redial(ctx) {
			return
		}
	}
}

// redial retries until a socket comes up or the reader is closed.
func (r *SocketCANReader) redial(ctx context.Context) bool {
	for {
		select {
		case <-r.done:
			return false
		case <-time.After(r.retry):
		}
		conn, err := r.dial(ctx)
		if err != nil {
			if r.closed() {
				return false
			}
			r.report(err)
			continue
		}
		r.mu.Lock()
		if r.closed() {
			r.mu.Unlock()
			_ = conn.Close()
			return false
		}
		r.conn = conn
		r.mu.Unlock()
		if r.onConn != nil {
			r.onConn(conn)
		}
		return true
	}
}

// ReadFrame reads a single CAN frame (blocking)
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-r.done:
		return can.Frame{}, ErrBusClosed
	case frame := <-r.frames:
		return frame, nil
	case err := <-r.errs:
		return can.Frame{}, err
	}
}

// Close closes the CAN socket
func (r *SocketCANReader) Close() error {
	var err error
	r.once.Do(func() {
		r.mu.Lock()
		close(r.done)
		conn := r.conn
		r.mu.Unlock()
		r.cancel()
		if conn != nil {
			err = conn.Close()
		}
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
