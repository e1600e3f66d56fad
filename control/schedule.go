package control

import (
	"errors"
	"fmt"
	"sort"

	"blackbody-telemetry/protocol"
)

var (
	// ErrOverbooked means the requested rates do not fit in one cycle at the minimum slot spacing.
	ErrOverbooked = errors.New("control: schedule overbooked")
	ErrBadPeriod  = errors.New("control: cycle period must be positive")
)

// Slot is one sampling opportunity inside the cycle.
type Slot struct {
	OffsetMS uint32
	Group    protocol.GroupID
	Channel  uint8
}

// Schedule is the repeating sampling pattern. Slots are sorted by offset and no two share one.
type Schedule struct {
	PeriodMS uint32
	Slots    []Slot
}

func (s Schedule) Empty() bool { return len(s.Slots) == 0 }

// Count returns how many slots belong to one channel.
func (s Schedule) Count(g protocol.GroupID, ch uint8) int {
	n := 0
	for _, sl := range s.Slots {
		if sl.Group == g && sl.Channel == ch {
			n++
		}
	}
	return n
}

func (s Schedule) Equal(o Schedule) bool {
	if s.PeriodMS != o.PeriodMS || len(s.Slots) != len(o.Slots) {
		return false
	}
	for i := range s.Slots {
		if s.Slots[i] != o.Slots[i] {
			return false
		}
	}
	return true
}

// Obligations is the number of slots per cycle owed to one channel sampled at rateHz,
// rounded to nearest.
func Obligations(rateHz uint16, periodMS uint32) int {
	return int((uint64(rateHz)*uint64(periodMS) + 500) / 1000)
}

type obligation struct {
	group     protocol.GroupID
	channel   uint8
	weight    int64
	remaining int64
	credit    int64
}

// BuildSchedule lays out one cycle for every active channel of groups.
//
// Each active channel owes Obligations(rate, period) slots. With N slots in total, slot k sits at
// floor(k*period/N) and goes to the channel with the highest credit, where every pending channel
// earns its weight per slot and the winner pays N. Ties go to the lowest group id, then the lowest
// channel. This interleaves groups so no rate starves another and the result is deterministic.
func BuildSchedule(groups []ChannelGroup, periodMS, minSpacingMS uint32) (Schedule, error) {
	if periodMS == 0 {
		return Schedule{}, ErrBadPeriod
	}

	var obs []*obligation
	var total int64
	for _, g := range sortGroups(groups) {
		n := int64(Obligations(g.RateHz, periodMS))
		if n == 0 {
			continue
		}
		for ch := uint8(0); ch < 8; ch++ {
			if !g.Mask.Has(ch) {
				continue
			}
			obs = append(obs, &obligation{group: g.ID, channel: ch, weight: n, remaining: n})
			total += n
		}
	}

	s := Schedule{PeriodMS: periodMS}
	if total == 0 {
		return s, nil
	}
	spacing := uint64(minSpacingMS)
	if spacing == 0 {
		spacing = 1
	}
	if uint64(total)*spacing > uint64(periodMS) {
		return Schedule{}, fmt.Errorf("%w: %d slots of %dms in %dms", ErrOverbooked, total, spacing, periodMS)
	}

	s.Slots = make([]Slot, 0, total)
	for k := int64(0); k < total; k++ {
		var best *obligation
		for _, o := range obs {
			if o.remaining == 0 {
				continue
			}
			o.credit += o.weight
			if best == nil || o.credit > best.credit {
				best = o
			}
		}
		best.credit -= total
		best.remaining--
		s.Slots = append(s.Slots, Slot{
			OffsetMS: uint32(uint64(k) * uint64(periodMS) / uint64(total)),
			Group:    best.group,
			Channel:  best.channel,
		})
	}
	return s, nil
}

func sortGroups(groups []ChannelGroup) []ChannelGroup {
	out := append([]ChannelGroup(nil), groups...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
