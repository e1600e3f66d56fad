package utils

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.einride.tech/can"
)

// SLCAN bitrate commands, indexed by the Sn digit the adapter expects.
var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

var ErrSLCANSyntax = errors.New("slcan: malformed frame")

// SLCANBus talks to a serial-line CAN adapter using the Lawicel ASCII protocol.
type SLCANBus struct {
	port   io.ReadWriteCloser
	wmu    sync.Mutex
	frames chan can.Frame
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

// NewSLCANBus opens portName, sets the CAN bitrate and opens the channel.
func NewSLCANBus(portName string, baudRate, bitrate int) (*SLCANBus, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}

	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	b := newSLCANBus(port)
	// Close first in case the adapter was left open by a previous run.
	for _, cmd := range []string{"C\r", "S" + string(code) + "\r", "O\r"} {
		if _, err := io.WriteString(port, cmd); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("slcan init %q: %w", strings.TrimSpace(cmd), err)
		}
	}
	return b, nil
}

func newSLCANBus(port io.ReadWriteCloser) *SLCANBus {
	b := &SLCANBus{
		port:   port,
		frames: make(chan can.Frame, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b
}

func (b *SLCANBus) pump() {
	defer close(b.frames)
	rd := bufio.NewReader(b.port)
	for {
		line, err := rd.ReadString('\r')
		if err != nil {
			b.errs <- fmt.Errorf("slcan read: %w", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" || (line[0] != 't' && line[0] != 'T') {
			// acks (z/Z), BEL errors and status replies carry no frame
			continue
		}
		f, err := ParseSLCAN(line)
		if err != nil {
			continue
		}
		select {
		case b.frames <- f:
		case <-b.done:
			return
		}
	}
}

func (b *SLCANBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	_, err := io.WriteString(b.port, FormatSLCAN(frame))
	return err
}

func (b *SLCANBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-b.frames:
		if ok {
			return f, nil
		}
		select {
		case err := <-b.errs:
			return can.Frame{}, err
		default:
			return can.Frame{}, ErrBusClosed
		}
	}
}

func (b *SLCANBus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		b.wmu.Lock()
		_, _ = io.WriteString(b.port, "C\r")
		b.wmu.Unlock()
		err = b.port.Close()
	})
	return err
}

// FormatSLCAN renders a data frame as tIIILDD..\r (standard) or TIIIIIIIILDD..\r (extended).
func FormatSLCAN(f can.Frame) string {
	var sb strings.Builder
	if f.IsExtended {
		sb.WriteString(fmt.Sprintf("T%08X", f.ID))
	} else {
		sb.WriteString(fmt.Sprintf("t%03X", f.ID&0x7FF))
	}
	n := f.Length
	if n > 8 {
		n = 8
	}
	sb.WriteByte('0' + n)
	sb.WriteString(strings.ToUpper(hex.EncodeToString(f.Data[:n])))
	sb.WriteByte('\r')
	return sb.String()
}

// ParseSLCAN is the inverse of FormatSLCAN. The trailing \r is optional.
func ParseSLCAN(line string) (can.Frame, error) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return can.Frame{}, ErrSLCANSyntax
	}

	var f can.Frame
	idLen := 3
	switch line[0] {
	case 't':
	case 'T':
		idLen = 8
		f.IsExtended = true
	default:
		return can.Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
	}
	if len(line) < 1+idLen+1 {
		return can.Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
	}

	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return can.Frame{}, fmt.Errorf("%w: id: %v", ErrSLCANSyntax, err)
	}
	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return can.Frame{}, fmt.Errorf("%w: dlc %q", ErrSLCANSyntax, dlc)
	}
	n := int(dlc - '0')
	payload := line[2+idLen:]
	if len(payload) < 2*n {
		return can.Frame{}, fmt.Errorf("%w: payload too short", ErrSLCANSyntax)
	}
	data, err := hex.DecodeString(payload[:2*n])
	if err != nil {
		return can.Frame{}, fmt.Errorf("%w: payload: %v", ErrSLCANSyntax, err)
	}

	f.ID = uint32(id)
	f.Length = uint8(n)
	copy(f.Data[:], data)
	return f, nil
}
