package utils

import (
	"context"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// deadConn fails every read with err.
type deadConn struct {
	net.Conn
	err error
}

func (c deadConn) Read([]byte) (int, error) { return 0, c.err }

func TestSocketCANBus_RedialsAfterReceiveError(t *testing.T) {
	a0, _ := net.Pipe()
	a1, b1 := net.Pipe()
	defer b1.Close()

	dials := 0
	dial := func(context.Context) (net.Conn, error) {
		dials++
		return a1, nil
	}
	bus := newSocketCANBus(deadConn{Conn: a0, err: syscall.ENETDOWN}, dial)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := bus.ReadFrame(ctx)
	require.ErrorIs(t, err, syscall.ENETDOWN)
	assert.NotErrorIs(t, err, ErrBusClosed)

	in := can.Frame{ID: 0x624, Length: 3, Data: can.Data{0x01, 0x00, 0x02}}
	go func() { _ = socketcan.NewTransmitter(b1).TransmitFrame(ctx, in) }()

	got, err := bus.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.Equal(t, 1, dials)

	// The writer moved to the replacement socket along with the reader.
	echoed := make(chan can.Frame, 1)
	go func() {
		recv := socketcan.NewReceiver(b1)
		if recv.Receive() {
			echoed <- recv.Frame()
		}
	}()
	out := can.Frame{ID: 0x620, Length: 1, Data: can.Data{0x2A}}
	require.NoError(t, bus.WriteFrame(ctx, out))
	select {
	case f := <-echoed:
		assert.Equal(t, out, f)
	case <-ctx.Done():
		t.Fatal("frame not seen on the replacement socket")
	}

	require.NoError(t, bus.Close())
	_, err = bus.ReadFrame(ctx)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestSocketCANReader_EOFIsNotClosed(t *testing.T) {
	a0, _ := net.Pipe()
	dial := func(ctx context.Context) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := newSocketCANReader(deadConn{Conn: a0, err: io.EOF}, dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := r.ReadFrame(ctx)
	require.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, ErrBusClosed)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.ReadFrame(ctx)
	assert.ErrorIs(t, err, ErrBusClosed)
}
