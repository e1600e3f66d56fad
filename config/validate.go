package config

import (
	"fmt"

	"blackbody-telemetry/control"
	"blackbody-telemetry/mirror"
	"blackbody-telemetry/protocol"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate the configuration.
func Validate(cfg *Config) error {
	switch cfg.Bus.Transport {
	case TransportSocketCAN:
		if cfg.Bus.Interface == "" {
			return fmt.Errorf("bus: socketcan transport requires an interface")
		}
	case TransportSLCAN:
		if cfg.Bus.SerialPort == "" {
			return fmt.Errorf("bus: slcan transport requires a serial_port")
		}
		if cfg.Bus.SerialBaud <= 0 {
			return fmt.Errorf("bus: serial_baud must be positive, got %d", cfg.Bus.SerialBaud)
		}
	case TransportLoopback:
	default:
		return fmt.Errorf("bus: unknown transport %q", cfg.Bus.Transport)
	}

	if cfg.Cycle.PeriodMS == 0 {
		return fmt.Errorf("cycle: period_ms must be positive")
	}
	if cfg.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat: interval must be positive")
	}
	if cfg.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", cfg.QueueDepth)
	}

	if len(cfg.Groups) == 0 {
		return fmt.Errorf("groups: at least one group is required")
	}
	seen := make(map[uint8]string, len(cfg.Groups))
	for _, g := range cfg.Groups {
		if prev, ok := seen[g.ID]; ok {
			return fmt.Errorf("group %q: id %d already used by %q", g.Name, g.ID, prev)
		}
		seen[g.ID] = g.Name

		if g.Channels < 1 || g.Channels > 8 {
			return fmt.Errorf("group %q: channels must be 1..8, got %d", g.Name, g.Channels)
		}
		switch g.Sensor {
		case SensorRTD:
			if g.RTD.RefOhms <= 0 || g.RTD.NominalOhms <= 0 {
				return fmt.Errorf("group %q: rtd ref_ohms and nominal_ohms must be positive", g.Name)
			}
		case SensorTSL2591:
		default:
			return fmt.Errorf("group %q: unknown sensor %q", g.Name, g.Sensor)
		}
		if (g.BandMin != 0 || g.BandMax != 0) && g.BandMin >= g.BandMax {
			return fmt.Errorf("group %q: band_min %g must be below band_max %g", g.Name, g.BandMin, g.BandMax)
		}
		if g.Sim.FailRate < 0 || g.Sim.FailRate > 1 {
			return fmt.Errorf("group %q: sim fail_rate must be within 0..1", g.Name)
		}
	}

	// the startup table must be schedulable, a CONFIG frame would be refused otherwise
	if _, err := control.BuildSchedule(cfg.ChannelGroups(), cfg.Cycle.PeriodMS, cfg.Cycle.MinSlotSpacingMS); err != nil {
		return fmt.Errorf("groups: %w", err)
	}

	cat, err := cfg.LoadCatalogue()
	if err != nil {
		return fmt.Errorf("catalogue: %w", err)
	}
	for _, k := range []protocol.Kind{protocol.KindHeartbeat, protocol.KindSetMode, protocol.KindFault, protocol.KindAckFault} {
		if _, ok := cat.ID(protocol.Route{Kind: k}); !ok {
			return fmt.Errorf("catalogue: no %s frame", k)
		}
	}
	for _, g := range cfg.Groups {
		for _, k := range []protocol.Kind{protocol.KindConfig, protocol.KindMeasurement} {
			if _, ok := cat.ID(protocol.Route{Kind: k, Group: protocol.GroupID(g.ID)}); !ok {
				return fmt.Errorf("catalogue: group %q (id %d) has no %s frame", g.Name, g.ID, k)
			}
		}
	}

	if cfg.Mirror.Enabled {
		if cfg.Mirror.Address == "" {
			return fmt.Errorf("mirror: address is required when enabled")
		}
		if cfg.Mirror.Interval <= 0 {
			return fmt.Errorf("mirror: interval must be positive")
		}
		regs := mirror.RegisterCount(cfg.ChannelGroups())
		if int(cfg.Mirror.StartRegister)+regs > 0x10000 {
			return fmt.Errorf("mirror: %d registers from %d overflow the register space", regs, cfg.Mirror.StartRegister)
		}
	}

	return nil
}
