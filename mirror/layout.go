package mirror

import (
	"math"
	"sort"

	"blackbody-telemetry/control"
	"blackbody-telemetry/protocol"
)

// Header registers at the start of the block.
const (
	SlotState        = 0 // 0 stopped, 1 running, 2 error
	SlotFaultCode    = 1 // latched fault, 0 when none
	SlotHeartbeat    = 2 // last heartbeat counter
	SlotInvalidCount = 3 // invalid measurements, saturates at 0xFFFF
	HeaderSlots      = 4
)

// MaxWriteRegisters is the Write Multiple Registers quantity limit. Larger blocks go out
// in several requests.
const MaxWriteRegisters = 123

type channelKey struct {
	group   protocol.GroupID
	channel uint8
}

// Layout places every channel of every group after the header, in group id order, two
// registers per channel holding the float32 value high word first.
type Layout struct {
	offsets map[channelKey]int
	size    int
}

func NewLayout(groups []control.ChannelGroup) Layout {
	sorted := append([]control.ChannelGroup(nil), groups...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	l := Layout{offsets: map[channelKey]int{}, size: HeaderSlots}
	for _, g := range sorted {
		for ch := 0; ch < g.Channels; ch++ {
			l.offsets[channelKey{g.ID, uint8(ch)}] = l.size
			l.size += 2
		}
	}
	return l
}

// RegisterCount is the size of the block for groups.
func RegisterCount(groups []control.ChannelGroup) int {
	return NewLayout(groups).size
}

func (l Layout) Size() int { return l.size }

// Offset returns the first register of a channel.
func (l Layout) Offset(g protocol.GroupID, ch uint8) (int, bool) {
	off, ok := l.offsets[channelKey{g, ch}]
	return off, ok
}

func putFloat(regs []uint16, off int, v float32) {
	b := math.Float32bits(v)
	regs[off] = uint16(b >> 16)
	regs[off+1] = uint16(b)
}

// Float reads back a value stored by the mirror.
func Float(regs []uint16, off int) float32 {
	return math.Float32frombits(uint32(regs[off])<<16 | uint32(regs[off+1]))
}
