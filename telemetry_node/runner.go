package main

import (
	"context"
	"fmt"

	"blackbody-telemetry/config"
	"blackbody-telemetry/control"
	"blackbody-telemetry/mirror"
	"blackbody-telemetry/protocol"
	"blackbody-telemetry/sensors"
	"blackbody-telemetry/utils"
)

type Runner struct {
	cfg    *config.Config
	log    *utils.Logger
	frames *utils.CANMap // nil with the built-in identifiers
	bus    utils.Bus
	hub    *utils.LoopbackHub // loopback transport only
	bench  *utils.LoopbackPort
	codec  *protocol.Codec
	queue  *control.Queue
	clock  *control.TimerClock
	ctrl   *control.Controller
	mirror *mirror.Mirror
	mcli   mirror.Client
}

func NewRunner(ctx context.Context, cfg *config.Config, log *utils.Logger) (*Runner, error) {
	frames, err := cfg.LoadCANMap()
	if err != nil {
		return nil, err
	}
	cat := protocol.DefaultCatalogue()
	if frames != nil {
		if cat, err = frames.Catalogue(); err != nil {
			return nil, fmt.Errorf("catalogue: %w", err)
		}
	}

	table, err := control.NewChannelTable(cfg.ChannelGroups()...)
	if err != nil {
		return nil, fmt.Errorf("channel table: %w", err)
	}

	r := &Runner{
		cfg:    cfg,
		log:    log,
		frames: frames,
		codec:  protocol.NewCodec(cat),
		queue:  control.NewQueue(cfg.QueueDepth),
	}
	r.clock = control.NewTimerClock(r.queue.Post)

	if err := r.openBus(ctx); err != nil {
		return nil, err
	}

	var out utils.CANWriter = r.bus
	if cfg.Mirror.Enabled {
		cli, err := mirror.NewTCPClient(cfg.Mirror.Address, cfg.Mirror.Timeout)
		if err != nil {
			// the mirror is auxiliary; the node runs without it
			log.Warn("Modbus mirror %s unavailable: %v", cfg.Mirror.Address, err)
		} else {
			r.mcli = cli
			r.mirror = mirror.New(cli, mirror.NewLayout(cfg.ChannelGroups()), r.codec, mirror.Config{
				UnitID:        cfg.Mirror.SlaveID,
				StartRegister: cfg.Mirror.StartRegister,
				Interval:      cfg.Mirror.Interval,
			}, log.With("mirror"))
			out = r.mirror.Tap(r.bus)
		}
	}

	opts := control.Options{
		PeriodMS:     cfg.Cycle.PeriodMS,
		MinSpacingMS: cfg.Cycle.MinSlotSpacingMS,
		Autostart:    cfg.Autostart,
		Codec:        r.codec,
		Indicators: control.Indicators{
			Heartbeat: &control.Latch{},
			Tracking:  &logIndicator{name: "tracking", log: log},
			Error:     &logIndicator{name: "error", log: log},
		},
		Log: log,
	}
	if r.mirror != nil {
		opts.Observer = r.mirror
	}
	r.ctrl = control.New(ctx, out, table, buildSensors(cfg), r.clock, opts)

	log.Info("Node ready: transport=%s period=%dms spacing=%dms groups=%d ids=%v",
		cfg.Bus.Transport, cfg.Cycle.PeriodMS, cfg.Cycle.MinSlotSpacingMS, len(cfg.Groups), hexIDs(cat.IDs()))
	r.logFrames()
	return r, nil
}

// logFrames lists the loaded can_map.csv, one line per frame.
func (r *Runner) logFrames() {
	if r.frames == nil || !r.log.Enabled(utils.DEBUG) {
		return
	}
	for _, name := range r.frames.FrameNames() {
		fd, err := r.frames.FrameByName(name)
		if err != nil {
			continue
		}
		r.log.Debug("frame %s 0x%03X %s %s group=%d dlc=%d cycle=%dms %s",
			fd.Name, fd.ID, fd.Direction, fd.Kind, fd.Group, fd.DLC, fd.CycleMS, fd.Comment)
	}
}

// frameName labels id with its can_map.csv name when one is loaded.
func (r *Runner) frameName(id uint32) string {
	if r.frames != nil {
		if fd, err := r.frames.FrameByID(id); err == nil {
			return fd.Name
		}
	}
	return fmt.Sprintf("0x%03X", id)
}

func (r *Runner) openBus(ctx context.Context) error {
	switch r.cfg.Bus.Transport {
	case config.TransportSocketCAN:
		bus, err := utils.NewSocketCANBus(ctx, r.cfg.Bus.Interface)
		if err != nil {
			return err
		}
		r.bus = bus
	case config.TransportSLCAN:
		bus, err := utils.NewSLCANBus(r.cfg.Bus.SerialPort, r.cfg.Bus.SerialBaud, r.cfg.Bus.Bitrate)
		if err != nil {
			return err
		}
		r.bus = bus
	case config.TransportLoopback:
		r.hub = utils.NewLoopbackHub()
		r.bus = r.hub.Port(r.cfg.QueueDepth)
		r.bench = r.hub.Port(r.cfg.QueueDepth)
	default:
		return fmt.Errorf("unknown transport %q", r.cfg.Bus.Transport)
	}
	return nil
}

// buildSensors binds every group to a simulated driver running the real conversion.
func buildSensors(cfg *config.Config) map[protocol.GroupID]control.Sensor {
	out := make(map[protocol.GroupID]control.Sensor, len(cfg.Groups))
	for _, g := range cfg.Groups {
		sim := sensors.SimConfig{
			Channels:  g.Channels,
			Base:      g.Sim.Base,
			Noise:     g.Sim.Noise,
			FailRate:  g.Sim.FailRate,
			SetupFail: g.Sim.SetupFail,
			Latency:   cfg.Sim.Latency,
		}
		if cfg.Sim.Seed != 0 {
			sim.Seed = cfg.Sim.Seed + int64(g.ID)
		}

		sn := control.Sensor{
			Band:       sensors.Band{Min: g.BandMin, Max: g.BandMax},
			SetupFault: control.FaultCode(g.SetupFault),
		}
		switch g.Sensor {
		case config.SensorRTD:
			conv := sensors.RTD{RefOhms: g.RTD.RefOhms, NominalOhms: g.RTD.NominalOhms}
			sn.Driver = sensors.NewSimRTD(sim, conv)
			sn.Converter = conv
		case config.SensorTSL2591:
			sn.Driver = sensors.NewSimTSL2591(sim)
			sn.Converter = sensors.TSL2591{}
		}
		out[protocol.GroupID(g.ID)] = sn
	}
	return out
}

func (r *Runner) Close() {
	if r.bench != nil {
		_ = r.bench.Close()
	}
	if r.bus != nil {
		_ = r.bus.Close()
	}
	if r.mcli != nil {
		_ = r.mcli.Close()
	}
}

// InjectFault raises the debug fault from outside the dispatch loop.
func (r *Runner) InjectFault() {
	if !r.queue.Post(control.LocalFault{Code: control.FaultDebug}) {
		r.log.Warn("event queue full, debug fault dropped")
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.ctrl.Boot()

	go control.RunReceiver(ctx, r.bus, r.queue, r.log.With("rx"))
	go control.RunHeartbeat(ctx, r.cfg.Heartbeat.Interval, r.queue)
	if r.mirror != nil {
		go r.mirror.Run(ctx)
	}
	if r.bench != nil {
		go r.monitor(ctx)
	}

	err := r.queue.Run(ctx, r.ctrl)
	r.clock.Disarm()

	st := r.ctrl.Status()
	r.log.Info("Stopped. state=%s fault=%d heartbeats=%d frames_sent=%d send_errors=%d sampled=%d invalid=%d stale=%d dropped_events=%d",
		st.State, st.Fault, st.Heartbeats, st.Sent, st.SendErrors, st.Sampled, st.Invalid, st.Stale, r.queue.Dropped())
	return err
}

// monitor prints what the node puts on the loopback segment, like candump on a real bus.
func (r *Runner) monitor(ctx context.Context) {
	log := r.log.With("bench")
	for {
		f, err := r.bench.ReadFrame(ctx)
		if err != nil {
			return
		}
		if !log.Enabled(utils.DEBUG) {
			continue
		}
		msg, ok := r.codec.Decode(f)
		if !ok {
			log.Trace("0x%03X % X", f.ID, f.Data[:f.Length])
			continue
		}
		log.Debug("%s %s %+v", r.frameName(f.ID), msg.Kind(), msg)
	}
}

// logIndicator stands in for a board LED by logging its edges.
type logIndicator struct {
	name string
	on   bool
	log  *utils.Logger
}

func (l *logIndicator) Set(on bool) {
	if on != l.on {
		l.log.Debug("indicator %s -> %v", l.name, on)
	}
	l.on = on
}

func hexIDs(ids []uint32) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("0x%03X", id)
	}
	return out
}

