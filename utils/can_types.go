package utils

import (
	"fmt"
	"sort"

	"blackbody-telemetry/protocol"
)

// FrameDef is one row of the wire catalogue.
type FrameDef struct {
	ID        uint32
	Name      string
	Kind      protocol.Kind
	Group     protocol.GroupID
	DLC       int
	Direction string // "rx" or "tx", seen from the node
	CycleMS   int    // 0 for event-driven frames
	Comment   string
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Catalogue converts the loaded map into the codec's id table.
func (m *CANMap) Catalogue() (*protocol.Catalogue, error) {
	cat := protocol.NewCatalogue()
	ids := make([]uint32, 0, len(m.ByID))
	for id := range m.ByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		fd := m.ByID[id]
		if err := cat.Add(fd.ID, protocol.Route{Kind: fd.Kind, Group: fd.Group}); err != nil {
			return nil, fmt.Errorf("frame %s: %w", fd.Name, err)
		}
	}
	return cat, nil
}
