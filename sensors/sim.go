package sensors

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"
)

// ErrSimulatedFailure is what a Sim returns for an injected read failure.
var ErrSimulatedFailure = errors.New("sensors: simulated read failure")

// SimConfig describes a simulated sensor family.
type SimConfig struct {
	Channels  int       // number of channels on the bus
	Base      []float32 // physical value per channel; missing entries reuse the last one
	Noise     float32   // peak amplitude of the added disturbance
	FailRate  float64   // probability of a read failure, 0..1
	SetupFail bool      // make Setup report a dead sensor
	Latency   time.Duration
	Seed      int64
}

// Sim is a Driver that synthesizes raw counts from configured physical values, so the
// real conversion path runs on top of it.
type Sim struct {
	cfg    SimConfig
	encode func(v float32) []uint16

	mu    sync.Mutex
	rng   *rand.Rand
	reads uint64
	ready bool
}

var _ Driver = (*Sim)(nil)

// NewSimRTD simulates a bank of MAX31865 converters.
func NewSimRTD(cfg SimConfig, conv RTD) *Sim {
	return newSim(cfg, func(v float32) []uint16 { return []uint16{conv.Code(v)} })
}

// NewSimTSL2591 simulates TSL2591 light sensors.
func NewSimTSL2591(cfg SimConfig) *Sim {
	return newSim(cfg, TSL2591{}.Counts)
}

func newSim(cfg SimConfig, encode func(float32) []uint16) *Sim {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if len(cfg.Base) == 0 {
		cfg.Base = []float32{0}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sim{
		cfg:    cfg,
		encode: encode,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *Sim) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.SetupFail {
		return fmt.Errorf("sensors: simulated setup failure")
	}
	s.ready = true
	return nil
}

func (s *Sim) Sample(channel uint8) ([]uint16, error) {
	if s.cfg.Latency > 0 {
		time.Sleep(s.cfg.Latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil, fmt.Errorf("sensors: sample before setup")
	}
	if int(channel) >= s.cfg.Channels {
		return nil, fmt.Errorf("%w: %d", ErrNoChannel, channel)
	}
	s.reads++
	if s.cfg.FailRate > 0 && s.rng.Float64() < s.cfg.FailRate {
		return nil, ErrSimulatedFailure
	}

	base := s.cfg.Base[len(s.cfg.Base)-1]
	if int(channel) < len(s.cfg.Base) {
		base = s.cfg.Base[channel]
	}

	// slow drift plus white noise, both bounded by Noise
	phase := float32(s.reads) * 0.05
	drift := math32.Sin(phase+float32(channel)) * s.cfg.Noise * 0.5
	white := (float32(s.rng.Float64())*2 - 1) * s.cfg.Noise * 0.5

	return s.encode(base + drift + white), nil
}

// Reads reports how many samples were taken, failed ones included.
func (s *Sim) Reads() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
