package control

import (
	"errors"
	"fmt"
	"sort"

	"blackbody-telemetry/protocol"
)

var ErrUnknownGroup = errors.New("control: unknown channel group")

// ChannelGroup is the configuration shared by one family of sensors.
type ChannelGroup struct {
	ID       protocol.GroupID
	Name     string
	Channels int // physical channels on the bus, at most 8
	Mask     protocol.Mask
	RateHz   uint16
}

// ChannelTable holds every group, keyed by id.
type ChannelTable struct {
	groups map[protocol.GroupID]ChannelGroup
}

func NewChannelTable(groups ...ChannelGroup) (*ChannelTable, error) {
	t := &ChannelTable{groups: make(map[protocol.GroupID]ChannelGroup, len(groups))}
	for _, g := range groups {
		if _, ok := t.groups[g.ID]; ok {
			return nil, fmt.Errorf("control: duplicate channel group %d", g.ID)
		}
		if g.Channels <= 0 || g.Channels > 8 {
			return nil, fmt.Errorf("control: group %d: channels must be 1..8, got %d", g.ID, g.Channels)
		}
		g.Mask = g.Mask.Limit(g.Channels)
		t.groups[g.ID] = g
	}
	return t, nil
}

func (t *ChannelTable) Group(id protocol.GroupID) (ChannelGroup, bool) {
	g, ok := t.groups[id]
	return g, ok
}

// Groups returns every group ordered by id.
func (t *ChannelTable) Groups() []ChannelGroup {
	out := make([]ChannelGroup, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Preview returns the groups as they would be after Update, without changing the table.
func (t *ChannelTable) Preview(id protocol.GroupID, mask protocol.Mask, rateHz uint16) ([]ChannelGroup, error) {
	g, ok := t.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	out := t.Groups()
	for i := range out {
		if out[i].ID == id {
			out[i].Mask = mask.Limit(g.Channels)
			out[i].RateHz = rateHz
		}
	}
	return out, nil
}

// Update stores a new mask and rate for a group. Mask bits beyond the group's channel count
// are dropped. changed reports whether anything differs from before.
func (t *ChannelTable) Update(id protocol.GroupID, mask protocol.Mask, rateHz uint16) (bool, error) {
	g, ok := t.groups[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	mask = mask.Limit(g.Channels)
	if g.Mask == mask && g.RateHz == rateHz {
		return false, nil
	}
	g.Mask = mask
	g.RateHz = rateHz
	t.groups[id] = g
	return true, nil
}
