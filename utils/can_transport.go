package utils

import (
	"context"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// Bus is a transport the node can both send on and receive from.
type Bus interface {
	CANWriter
	ReadFrame(ctx context.Context) (can.Frame, error)
}

// SocketCANWriter transmits on a socket it may share with a SocketCANReader.
type SocketCANWriter struct {
	mu   sync.Mutex
	conn net.Conn
	tx   *socketcan.Transmitter
}

func newSocketCANWriter(conn net.Conn) *SocketCANWriter {
	w := &SocketCANWriter{}
	w.use(conn)
	return w
}

// use points the writer at a replacement socket.
func (w *SocketCANWriter) use(conn net.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn = conn
	w.tx = socketcan.NewTransmitter(conn)
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	w.mu.Lock()
	tx := w.tx
	w.mu.Unlock()
	return tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SocketCANBus sends and receives on one raw socket, so the kernel does not
// hand the node its own frames back. The reader owns the socket and swaps the
// writer onto each replacement it dials.
type SocketCANBus struct {
	*SocketCANWriter
	*SocketCANReader
}

func NewSocketCANBus(ctx context.Context, iface string) (*SocketCANBus, error) {
	dial := socketCANDialer(iface)
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return newSocketCANBus(conn, dial), nil
}

func newSocketCANBus(conn net.Conn, dial dialFunc) *SocketCANBus {
	w := newSocketCANWriter(conn)
	r := newSocketCANReader(conn, dial, w.use)
	return &SocketCANBus{SocketCANWriter: w, SocketCANReader: r}
}

func (b *SocketCANBus) Close() error {
	return b.SocketCANReader.Close()
}
