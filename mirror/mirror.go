// Package mirror replicates the node's status and latest readings into a block of Modbus
// holding registers, for SCADA and bench tools that do not speak CAN.
package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"go.einride.tech/can"

	"blackbody-telemetry/control"
	"blackbody-telemetry/protocol"
	"blackbody-telemetry/utils"
)

type Config struct {
	UnitID        uint8
	StartRegister uint16
	Interval      time.Duration
}

// Mirror holds the register image. Observe and the tap update it from the dispatch loop;
// Run pushes it to the server.
type Mirror struct {
	cfg    Config
	layout Layout
	cli    Client
	codec  *protocol.Codec
	log    *utils.Logger

	mu       sync.Mutex
	regs     []uint16
	dirty    bool
	needFull bool

	writes   uint64
	failures uint64
}

var _ control.Observer = (*Mirror)(nil)

func New(cli Client, layout Layout, codec *protocol.Codec, cfg Config, log *utils.Logger) *Mirror {
	if codec == nil {
		codec = protocol.NewCodec(nil)
	}
	if log == nil {
		log = utils.Discard()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	regs := make([]uint16, layout.Size())
	nan := math32.NaN()
	for _, off := range layout.offsets {
		putFloat(regs, off, nan)
	}
	return &Mirror{
		cfg:      cfg,
		layout:   layout,
		cli:      cli,
		codec:    codec,
		log:      log,
		regs:     regs,
		dirty:    true,
		needFull: true,
	}
}

// Observe copies the controller status into the header.
func (m *Mirror) Observe(st control.Status) {
	invalid := st.Invalid
	if invalid > 0xFFFF {
		invalid = 0xFFFF
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(SlotState, uint16(st.State))
	m.set(SlotFaultCode, uint16(st.Fault))
	m.set(SlotHeartbeat, uint16(st.Heartbeat))
	m.set(SlotInvalidCount, uint16(invalid))
}

func (m *Mirror) set(slot int, v uint16) {
	if m.regs[slot] != v {
		m.regs[slot] = v
		m.dirty = true
	}
}

// Record stores a measurement. Invalid readings are stored as NaN.
func (m *Mirror) Record(meas protocol.Measurement) {
	off, ok := m.layout.Offset(meas.Group, meas.Channel)
	if !ok {
		return
	}
	v := meas.Value
	if !meas.Valid {
		v = math32.NaN()
	}
	m.mu.Lock()
	putFloat(m.regs, off, v)
	m.dirty = true
	m.mu.Unlock()
}

// Snapshot returns a copy of the register image.
func (m *Mirror) Snapshot() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint16(nil), m.regs...)
}

// Flush writes the block if anything changed since the last successful write, split into
// requests of at most MaxWriteRegisters. After a failed write the next attempt re-asserts
// the whole block.
func (m *Mirror) Flush() error {
	m.mu.Lock()
	if !m.dirty && !m.needFull {
		m.mu.Unlock()
		return nil
	}
	regs := append([]uint16(nil), m.regs...)
	m.dirty = false
	m.mu.Unlock()

	for off := 0; off < len(regs); off += MaxWriteRegisters {
		end := min(off+MaxWriteRegisters, len(regs))
		addr := m.cfg.StartRegister + uint16(off)
		if err := m.cli.WriteRegisters(m.cfg.UnitID, addr, regs[off:end]); err != nil {
			m.mu.Lock()
			m.needFull = true
			m.failures++
			m.mu.Unlock()
			return fmt.Errorf("mirror: write %d registers at %d: %w", end-off, addr, err)
		}
	}

	m.mu.Lock()
	m.needFull = false
	m.writes++
	m.mu.Unlock()
	return nil
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	var failing bool
	for {
		select {
		case <-ctx.Done():
			if err := m.Flush(); err != nil {
				m.log.Debug("final flush: %v", err)
			}
			return
		case <-ticker.C:
			err := m.Flush()
			switch {
			case err != nil && !failing:
				m.log.Warn("%v", err)
				failing = true
			case err == nil && failing:
				m.log.Info("mirror writes recovered")
				failing = false
			}
		}
	}
}

// Stats reports successful and failed block writes.
func (m *Mirror) Stats() (writes, failures uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes, m.failures
}

// Tap wraps w so every measurement frame sent through it is also recorded.
func (m *Mirror) Tap(w utils.CANWriter) utils.CANWriter {
	return &tap{next: w, m: m}
}

type tap struct {
	next utils.CANWriter
	m    *Mirror
}

func (t *tap) WriteFrame(ctx context.Context, f can.Frame) error {
	err := t.next.WriteFrame(ctx, f)
	if msg, ok := t.m.codec.Decode(f); ok {
		if meas, ok := msg.(protocol.Measurement); ok {
			t.m.Record(meas)
		}
	}
	return err
}

func (t *tap) Close() error { return t.next.Close() }
