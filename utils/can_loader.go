package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"blackbody-telemetry/protocol"
)

func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCANMap(f)
}

// ReadCANMap parses a wire catalogue. Columns:
// direction, frame_id, frame_name, kind, group, cycle_ms, dlc, comment.
func ReadCANMap(in io.Reader) (*CANMap, error) {
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	req := []string{"direction", "frame_id", "frame_name", "kind", "group", "cycle_ms", "dlc", "comment"}
	for _, k := range req {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can_map.csv missing required column: %q", k)
		}
	}

	m := &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		frameID, err := parseHexOrDecUint32(rec[idx["frame_id"]])
		if err != nil {
			return nil, fmt.Errorf("invalid frame_id %q: %w", rec[idx["frame_id"]], err)
		}
		frameName := strings.TrimSpace(rec[idx["frame_name"]])

		kind, err := protocol.ParseKind(strings.ToUpper(strings.TrimSpace(rec[idx["kind"]])))
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", frameName, err)
		}

		direction := strings.ToLower(strings.TrimSpace(rec[idx["direction"]]))
		if direction != "rx" && direction != "tx" {
			return nil, fmt.Errorf("frame %s: direction must be rx or tx, got %q", frameName, direction)
		}

		group, err := parseUintField(rec[idx["group"]], 8)
		if err != nil {
			return nil, fmt.Errorf("frame %s: invalid group %q: %w", frameName, rec[idx["group"]], err)
		}
		dlc, err := parseUintField(rec[idx["dlc"]], 8)
		if err != nil {
			return nil, fmt.Errorf("frame %s: invalid dlc %q: %w", frameName, rec[idx["dlc"]], err)
		}
		cycle, err := parseUintField(rec[idx["cycle_ms"]], 31)
		if err != nil {
			return nil, fmt.Errorf("frame %s: invalid cycle_ms %q: %w", frameName, rec[idx["cycle_ms"]], err)
		}

		fd := &FrameDef{
			ID:        frameID,
			Name:      frameName,
			Kind:      kind,
			Group:     protocol.GroupID(group),
			DLC:       int(dlc),
			Direction: direction,
			CycleMS:   int(cycle),
			Comment:   strings.TrimSpace(rec[idx["comment"]]),
		}

		if fd.DLC < kind.PayloadLen() || fd.DLC > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): dlc %d does not fit a %s payload of %d bytes",
				frameName, frameID, fd.DLC, kind, kind.PayloadLen())
		}
		if _, ok := m.ByID[frameID]; ok {
			return nil, fmt.Errorf("frame %s (0x%X): duplicate frame_id", frameName, frameID)
		}
		if _, ok := m.ByName[frameName]; ok {
			return nil, fmt.Errorf("frame %s: duplicate frame_name", frameName)
		}

		m.ByID[frameID] = fd
		m.ByName[frameName] = fd
	}

	return m, nil
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

// parseUintField accepts a plain decimal that fits in bits.
func parseUintField(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, bits)
}
