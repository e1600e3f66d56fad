package protocol

import (
	"fmt"
	"sort"
)

// Default identifiers of the board's message catalogue.
const (
	IDHeartbeat              uint32 = 0x620
	IDSetMode                uint32 = 0x621
	IDFault                  uint32 = 0x622
	IDAckFault               uint32 = 0x623
	IDTemperatureConfig      uint32 = 0x624
	IDIrradianceConfig       uint32 = 0x625
	IDTemperatureMeasurement uint32 = 0x626
	IDIrradianceMeasurement  uint32 = 0x627
)

// Route is what an identifier means: a kind, and for CONFIG/MEASUREMENT the group it carries.
type Route struct {
	Kind  Kind
	Group GroupID
}

// Catalogue is the bidirectional id <-> route table.
type Catalogue struct {
	byID    map[uint32]Route
	byRoute map[Route]uint32
}

func NewCatalogue() *Catalogue {
	return &Catalogue{
		byID:    map[uint32]Route{},
		byRoute: map[Route]uint32{},
	}
}

// DefaultCatalogue returns the identifiers used by the deployed boards.
func DefaultCatalogue() *Catalogue {
	c := NewCatalogue()
	_ = c.Add(IDHeartbeat, Route{Kind: KindHeartbeat})
	_ = c.Add(IDSetMode, Route{Kind: KindSetMode})
	_ = c.Add(IDFault, Route{Kind: KindFault})
	_ = c.Add(IDAckFault, Route{Kind: KindAckFault})
	_ = c.Add(IDTemperatureConfig, Route{Kind: KindConfig, Group: GroupTemperature})
	_ = c.Add(IDIrradianceConfig, Route{Kind: KindConfig, Group: GroupIrradiance})
	_ = c.Add(IDTemperatureMeasurement, Route{Kind: KindMeasurement, Group: GroupTemperature})
	_ = c.Add(IDIrradianceMeasurement, Route{Kind: KindMeasurement, Group: GroupIrradiance})
	return c
}

// Add registers id for r. Ids and routes must both be unique.
func (c *Catalogue) Add(id uint32, r Route) error {
	if id > 0x7FF {
		return fmt.Errorf("id 0x%X is not a standard 11-bit identifier", id)
	}
	if r.Kind == KindUnknown {
		return fmt.Errorf("id 0x%X: unknown kind", id)
	}
	if r.Kind != KindConfig && r.Kind != KindMeasurement {
		r.Group = 0
	}
	if prev, ok := c.byID[id]; ok {
		return fmt.Errorf("id 0x%X already mapped to %s", id, prev.Kind)
	}
	if prev, ok := c.byRoute[r]; ok {
		return fmt.Errorf("%s/%s already mapped to id 0x%X", r.Kind, r.Group, prev)
	}
	c.byID[id] = r
	c.byRoute[r] = id
	return nil
}

// Lookup resolves a received identifier.
func (c *Catalogue) Lookup(id uint32) (Route, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// ID returns the identifier used to send r.
func (c *Catalogue) ID(r Route) (uint32, bool) {
	if r.Kind != KindConfig && r.Kind != KindMeasurement {
		r.Group = 0
	}
	id, ok := c.byRoute[r]
	return id, ok
}

// IDs lists every mapped identifier in ascending order.
func (c *Catalogue) IDs() []uint32 {
	out := make([]uint32, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
