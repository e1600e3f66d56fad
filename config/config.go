package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"blackbody-telemetry/control"
	"blackbody-telemetry/protocol"
	"blackbody-telemetry/utils"
)

// Config represents the node configuration.
type Config struct {
	Bus        BusConfig       `yaml:"bus"`
	Catalogue  string          `yaml:"catalogue"` // can_map.csv path, empty for the built-in identifiers
	Cycle      CycleConfig     `yaml:"cycle"`
	Heartbeat  HeartbeatConfig `yaml:"heartbeat"`
	Groups     []GroupConfig   `yaml:"groups"`
	Log        LogConfig       `yaml:"log"`
	Mirror     MirrorConfig    `yaml:"mirror"`
	Sim        SimConfig       `yaml:"sim"`
	Autostart  bool            `yaml:"autostart"`
	QueueDepth int             `yaml:"queue_depth"`
}

// BusConfig selects the CAN transport.
type BusConfig struct {
	Transport  string `yaml:"transport"` // socketcan | slcan | loopback
	Interface  string `yaml:"interface"` // socketcan interface, e.g. can0
	SerialPort string `yaml:"serial_port"`
	SerialBaud int    `yaml:"serial_baud"`
	Bitrate    int    `yaml:"bitrate"` // CAN bitrate for slcan adapters
}

// CycleConfig sets the sampling cycle.
type CycleConfig struct {
	PeriodMS         uint32 `yaml:"period_ms"`
	MinSlotSpacingMS uint32 `yaml:"min_slot_spacing_ms"` // worst-case sensor transaction time
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// GroupConfig describes one sensor family and its startup acquisition settings.
type GroupConfig struct {
	ID         uint8       `yaml:"id"`
	Name       string      `yaml:"name"`
	Sensor     string      `yaml:"sensor"` // rtd | tsl2591
	Channels   int         `yaml:"channels"`
	Mask       uint8       `yaml:"mask"`
	RateHz     uint16      `yaml:"rate_hz"`
	BandMin    float32     `yaml:"band_min"`
	BandMax    float32     `yaml:"band_max"`
	SetupFault uint16      `yaml:"setup_fault"`
	RTD        RTDConfig   `yaml:"rtd"`
	Sim        GroupSimCfg `yaml:"sim"`
}

// RTDConfig holds the MAX31865 front-end values.
type RTDConfig struct {
	RefOhms     float32 `yaml:"ref_ohms"`
	NominalOhms float32 `yaml:"nominal_ohms"`
}

// GroupSimCfg shapes the simulated readings of one group.
type GroupSimCfg struct {
	Base      []float32 `yaml:"base"`
	Noise     float32   `yaml:"noise"`
	FailRate  float64   `yaml:"fail_rate"`
	SetupFail bool      `yaml:"setup_fail"`
}

type LogConfig struct {
	File   string `yaml:"file"`
	Level  string `yaml:"level"` // trace|debug|info|warn|error|critical
	Stdout bool   `yaml:"stdout"`
}

// MirrorConfig controls the Modbus TCP status mirror.
type MirrorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Address       string        `yaml:"address"` // host:port of the Modbus TCP server
	SlaveID       uint8         `yaml:"slave_id"`
	StartRegister uint16        `yaml:"start_register"`
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

type SimConfig struct {
	Seed    int64         `yaml:"seed"` // 0 seeds from the clock
	Latency time.Duration `yaml:"latency"`
}

const (
	SensorRTD     = "rtd"
	SensorTSL2591 = "tsl2591"

	TransportSocketCAN = "socketcan"
	TransportSLCAN     = "slcan"
	TransportLoopback  = "loopback"
)

// Default returns the configuration of the deployed boards.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Transport:  TransportSocketCAN,
			Interface:  "can0",
			SerialPort: "/dev/ttyACM0",
			SerialBaud: 115200,
			Bitrate:    500000,
		},
		Catalogue: "",
		Cycle: CycleConfig{
			PeriodMS:         1000,
			MinSlotSpacingMS: 10,
		},
		Heartbeat: HeartbeatConfig{Interval: time.Second},
		Groups:    DefaultGroups(),
		Log: LogConfig{
			File:   "telemetry_node.log",
			Level:  "info",
			Stdout: true,
		},
		Mirror: MirrorConfig{
			Enabled:       false,
			Address:       "127.0.0.1:502",
			SlaveID:       1,
			StartRegister: 0,
			Interval:      time.Second,
			Timeout:       2 * time.Second,
		},
		Autostart:  false,
		QueueDepth: 256,
	}
}

// DefaultGroups returns the two sensor families of the board: eight PT100 sensors on MAX31865
// converters sampled at 2 Hz, and one TSL2591 light sensor at 10 Hz.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			ID:         uint8(protocol.GroupTemperature),
			Name:       "temperature",
			Sensor:     SensorRTD,
			Channels:   8,
			Mask:       0xFF,
			RateHz:     2,
			BandMin:    -10,
			BandMax:    150000,
			SetupFault: uint16(control.FaultTemperatureSetup),
			RTD:        RTDConfig{RefOhms: 430, NominalOhms: 100},
			Sim:        GroupSimCfg{Base: []float32{25}, Noise: 0.5},
		},
		{
			ID:         uint8(protocol.GroupIrradiance),
			Name:       "irradiance",
			Sensor:     SensorTSL2591,
			Channels:   1,
			Mask:       0x01,
			RateHz:     10,
			SetupFault: uint16(control.FaultIrradianceSetup),
			Sim:        GroupSimCfg{Base: []float32{80}, Noise: 5},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills in anything a partial file left at zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Bus.Transport == "" {
		c.Bus.Transport = def.Bus.Transport
	}
	if c.Bus.Interface == "" {
		c.Bus.Interface = def.Bus.Interface
	}
	if c.Bus.SerialBaud == 0 {
		c.Bus.SerialBaud = def.Bus.SerialBaud
	}
	if c.Bus.Bitrate == 0 {
		c.Bus.Bitrate = def.Bus.Bitrate
	}
	if c.Cycle.PeriodMS == 0 {
		c.Cycle.PeriodMS = def.Cycle.PeriodMS
	}
	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = def.Heartbeat.Interval
	}
	if len(c.Groups) == 0 {
		c.Groups = def.Groups
	}
	for i := range c.Groups {
		g := &c.Groups[i]
		if g.Sensor == SensorRTD {
			if g.RTD.RefOhms == 0 {
				g.RTD.RefOhms = 430
			}
			if g.RTD.NominalOhms == 0 {
				g.RTD.NominalOhms = 100
			}
		}
		if g.Name == "" {
			g.Name = protocol.GroupID(g.ID).String()
		}
	}
	if c.Log.File == "" {
		c.Log.File = def.Log.File
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Mirror.SlaveID == 0 {
		c.Mirror.SlaveID = def.Mirror.SlaveID
	}
	if c.Mirror.Interval <= 0 {
		c.Mirror.Interval = def.Mirror.Interval
	}
	if c.Mirror.Timeout <= 0 {
		c.Mirror.Timeout = def.Mirror.Timeout
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
}

// ChannelGroups converts the groups into the controller's startup table rows.
func (c *Config) ChannelGroups() []control.ChannelGroup {
	out := make([]control.ChannelGroup, 0, len(c.Groups))
	for _, g := range c.Groups {
		out = append(out, control.ChannelGroup{
			ID:       protocol.GroupID(g.ID),
			Name:     g.Name,
			Channels: g.Channels,
			Mask:     protocol.Mask(g.Mask),
			RateHz:   g.RateHz,
		})
	}
	return out
}

// LoadCANMap reads the configured can_map.csv. It returns nil when the built-in
// identifiers are in use.
func (c *Config) LoadCANMap() (*utils.CANMap, error) {
	if c.Catalogue == "" {
		return nil, nil
	}
	m, err := utils.LoadCANMap(c.Catalogue)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}
	return m, nil
}

// LoadCatalogue returns the wire catalogue, from the CSV file when one is configured.
func (c *Config) LoadCatalogue() (*protocol.Catalogue, error) {
	m, err := c.LoadCANMap()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return protocol.DefaultCatalogue(), nil
	}
	return m.Catalogue()
}
