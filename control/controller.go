package control

import (
	"context"
	"sort"
	"time"

	"go.einride.tech/can"

	"blackbody-telemetry/protocol"
	"blackbody-telemetry/utils"
)

// Options tune a Controller. Zero values fall back to the board defaults.
type Options struct {
	PeriodMS     uint32 // sampling cycle, default 1000
	MinSpacingMS uint32 // minimum gap between slots
	Autostart    bool   // request RUNNING at the end of Boot
	Codec        *protocol.Codec
	Indicators   Indicators
	Observer     Observer
	Now          func() time.Time
	Log          *utils.Logger
}

// Status is a point-in-time view of the controller for observers.
type Status struct {
	State      State
	Fault      FaultCode
	FaultAt    time.Time
	Heartbeats uint64
	Heartbeat  uint8 // counter of the last heartbeat sent
	Sent       uint64
	SendErrors uint64
	Ignored    uint64 // inbound frames that were not ours
	Sampled    uint64
	Invalid    uint64
	Stale      uint64
}

// Sender is the outbound side of the bus.
type Sender interface {
	WriteFrame(ctx context.Context, f can.Frame) error
}

// Observer receives a Status after every handled event.
type Observer interface {
	Observe(Status)
}

// Controller runs the node: it decodes inbound frames into commands, drives the mode state
// machine, and emits heartbeats, faults and measurements.
type Controller struct {
	ctx     context.Context
	out     Sender
	codec   *protocol.Codec
	table   *ChannelTable
	sensors map[protocol.GroupID]Sensor
	sched   *Scheduler
	faults  *FaultManager
	ind     Indicators
	obs     Observer
	opts    Options
	log     *utils.Logger

	state   State
	counter uint8
	beats   uint64
	beat    bool

	sent       uint64
	sendErrors uint64
	ignored    uint64
}

// New builds a controller in STOPPED. ctx bounds every outbound write; call Boot before
// handing events to it.
func New(ctx context.Context, out Sender, table *ChannelTable, sensors map[protocol.GroupID]Sensor, clock SlotClock, opts Options) *Controller {
	if opts.PeriodMS == 0 {
		opts.PeriodMS = 1000
	}
	if opts.Codec == nil {
		opts.Codec = protocol.NewCodec(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = utils.Discard()
	}
	c := &Controller{
		ctx:     ctx,
		out:     out,
		codec:   opts.Codec,
		table:   table,
		sensors: sensors,
		ind:     opts.Indicators.withDefaults(),
		obs:     opts.Observer,
		opts:    opts,
		log:     opts.Log.With("ctrl"),
		state:   Stopped,
	}
	c.sched = NewScheduler(clock, sensors, opts.PeriodMS, opts.MinSpacingMS, opts.Log.With("sched"))
	c.faults = newFaultManager(opts.Now, func(m protocol.Message) { c.send(m) }, c.fire, opts.Log.With("fault"))
	return c
}

// Boot applies the STOPPED outputs, sets up every sensor and, with Autostart, requests RUNNING.
// A sensor whose setup fails raises its setup fault, so autostart then lands in ERROR.
func (c *Controller) Boot() {
	c.enter(Stopped, evStop)

	ids := make([]protocol.GroupID, 0, len(c.sensors))
	for id := range c.sensors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		sn := c.sensors[id]
		if sn.Driver == nil {
			continue
		}
		if err := sn.Driver.Setup(); err != nil {
			code := sn.SetupFault
			if code == FaultNone {
				code = FaultDebug
			}
			c.log.Error("setup %s sensors: %v", id, err)
			c.faults.Raise(code)
			continue
		}
		c.log.Info("%s sensors ready", id)
	}

	if c.opts.Autostart {
		c.SetMode(true)
	}
	c.publish()
}

// Handle is the single entry point of the dispatch loop.
func (c *Controller) Handle(ev Event) {
	switch e := ev.(type) {
	case FrameReceived:
		c.HandleFrame(e.Frame)
	case SlotDue:
		if m, ok := c.sched.Fire(e); ok {
			c.send(m)
		}
	case HeartbeatDue:
		c.Heartbeat()
	case BusFailed:
		c.log.Error("bus receive: %v", e.Err)
		c.faults.Raise(FaultBusReceive)
	case LocalFault:
		c.faults.Raise(e.Code)
	default:
		c.log.Warn("unhandled event %T", ev)
	}
	c.publish()
}

// HandleFrame decodes one inbound frame and applies it. Frames that are not ours are dropped.
func (c *Controller) HandleFrame(f can.Frame) {
	msg, ok := c.codec.Decode(f)
	if !ok {
		c.ignored++
		c.log.Trace("ignored frame 0x%03X len=%d", f.ID, f.Length)
		return
	}
	switch m := msg.(type) {
	case protocol.SetMode:
		c.SetMode(m.Run)
	case protocol.AckFault:
		if !m.Confirm {
			c.log.Debug("unconfirmed ACK_FAULT ignored")
			return
		}
		c.AcknowledgeFault()
	case protocol.Fault:
		if m.Code == uint16(FaultNone) {
			return
		}
		c.RaiseFault(FaultCode(m.Code))
	case protocol.Config:
		_ = c.Configure(m)
	default:
		c.log.Trace("peer %s ignored", msg.Kind())
	}
}

func (c *Controller) SetMode(run bool) {
	if run {
		c.fire(evRun)
	} else {
		c.fire(evStop)
	}
}

func (c *Controller) RaiseFault(code FaultCode) bool {
	return c.faults.Raise(code)
}

func (c *Controller) AcknowledgeFault() bool {
	return c.faults.Acknowledge()
}

// Configure updates one group. A configuration that cannot be scheduled is rejected and the
// table keeps its previous contents. While RUNNING the schedule is rebuilt straight away.
func (c *Controller) Configure(m protocol.Config) error {
	groups, err := c.table.Preview(m.Group, m.Mask, m.RateHz)
	if err != nil {
		c.log.Warn("config rejected: %v", err)
		return err
	}
	if err := c.sched.Check(groups); err != nil {
		c.log.Warn("config %s mask=0x%02X rate=%dHz rejected: %v", m.Group, uint8(m.Mask), m.RateHz, err)
		return err
	}
	changed, err := c.table.Update(m.Group, m.Mask, m.RateHz)
	if err != nil || !changed {
		return err
	}
	g, _ := c.table.Group(m.Group)
	c.log.Info("config %s mask=0x%02X rate=%dHz", m.Group, uint8(g.Mask), g.RateHz)
	return c.sched.Reload(c.table.Groups())
}

// Heartbeat toggles the heartbeat line and sends the counter, in every state.
func (c *Controller) Heartbeat() {
	c.beat = !c.beat
	c.ind.Heartbeat.Set(c.beat)
	c.send(protocol.Heartbeat{Counter: c.counter})
	c.counter++
	c.beats++
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Table() *ChannelTable { return c.table }

func (c *Controller) Scheduler() *Scheduler { return c.sched }

func (c *Controller) Fault() (FaultRecord, bool) { return c.faults.Active() }

func (c *Controller) Status() Status {
	st := Status{
		State:      c.state,
		Heartbeats: c.beats,
		Sent:       c.sent,
		SendErrors: c.sendErrors,
		Ignored:    c.ignored,
		Sampled:    c.sched.sampled,
		Invalid:    c.sched.invalid,
		Stale:      c.sched.stale,
	}
	if c.beats > 0 {
		st.Heartbeat = c.counter - 1
	}
	if rec, ok := c.faults.Active(); ok {
		st.Fault = rec.Code
		st.FaultAt = rec.RaisedAt
	}
	return st
}

func (c *Controller) fire(ev fsmEvent) {
	to, ok := next(c.state, ev)
	if !ok {
		c.log.Debug("%s ignored in %s", ev, c.state)
		return
	}
	c.enter(to, ev)
}

// enter applies the outputs of state to. Re-entering the current state applies them again,
// which leaves everything as it was.
func (c *Controller) enter(to State, ev fsmEvent) {
	from := c.state
	c.state = to
	if from != to {
		c.log.Info("%s -> %s on %s", from, to, ev)
	}

	switch to {
	case Stopped:
		c.sched.Stop()
		c.ind.Tracking.Set(false)
		c.ind.Error.Set(false)
	case Running:
		c.ind.Error.Set(false)
		c.ind.Tracking.Set(true)
		if err := c.sched.Start(c.table.Groups()); err != nil {
			c.log.Error("cannot start sampling: %v", err)
			c.faults.Raise(FaultScheduleInfeasible)
		}
	case Error:
		c.sched.Stop()
		c.ind.Tracking.Set(false)
		c.ind.Error.Set(true)
	}
}

func (c *Controller) send(msg protocol.Message) bool {
	f, err := c.codec.Encode(msg)
	if err != nil {
		c.sendErrors++
		c.log.Error("encode %s: %v", msg.Kind(), err)
		return false
	}
	if err := c.out.WriteFrame(c.ctx, f); err != nil {
		c.sendErrors++
		c.log.Warn("send %s 0x%03X: %v", msg.Kind(), f.ID, err)
		return false
	}
	c.sent++
	return true
}

func (c *Controller) publish() {
	if c.obs != nil {
		c.obs.Observe(c.Status())
	}
}
