package control

import (
	"fmt"

	"blackbody-telemetry/protocol"
	"blackbody-telemetry/sensors"
	"blackbody-telemetry/utils"
)

// SlotClock delivers SlotDue events for an armed schedule until disarmed. Arm replaces whatever
// was armed before.
type SlotClock interface {
	Arm(generation uint64, s Schedule)
	Disarm()
}

// Sensor binds a group to the hardware that samples it.
type Sensor struct {
	Driver     sensors.Driver
	Converter  sensors.Converter
	Band       sensors.Band
	SetupFault FaultCode // raised at boot when Driver.Setup fails
}

// Scheduler owns the active schedule and turns due slots into measurements.
//
// Every Start, Stop and successful Reload bumps the generation. Slot events stamped with an
// older generation were queued before the change and are dropped.
type Scheduler struct {
	clock    SlotClock
	sensors  map[protocol.GroupID]Sensor
	periodMS uint32
	spacing  uint32
	log      *utils.Logger

	sched      Schedule
	generation uint64
	running    bool

	sampled uint64
	invalid uint64
	stale   uint64
}

func NewScheduler(clock SlotClock, sensors map[protocol.GroupID]Sensor, periodMS, minSpacingMS uint32, log *utils.Logger) *Scheduler {
	if log == nil {
		log = utils.Discard()
	}
	return &Scheduler{
		clock:    clock,
		sensors:  sensors,
		periodMS: periodMS,
		spacing:  minSpacingMS,
		log:      log,
	}
}

func (s *Scheduler) Running() bool      { return s.running }
func (s *Scheduler) Generation() uint64 { return s.generation }
func (s *Scheduler) Schedule() Schedule { return s.sched }

// Check reports whether groups can be scheduled, without touching the active schedule.
func (s *Scheduler) Check(groups []ChannelGroup) error {
	_, err := BuildSchedule(groups, s.periodMS, s.spacing)
	return err
}

// Start arms the schedule for groups. Starting again with an identical schedule keeps the
// running cycle.
func (s *Scheduler) Start(groups []ChannelGroup) error {
	sched, err := BuildSchedule(groups, s.periodMS, s.spacing)
	if err != nil {
		return err
	}
	if s.running && sched.Equal(s.sched) {
		return nil
	}
	s.arm(sched)
	return nil
}

// Reload recomputes the schedule after a table change. It only re-arms while running.
func (s *Scheduler) Reload(groups []ChannelGroup) error {
	if !s.running {
		return nil
	}
	sched, err := BuildSchedule(groups, s.periodMS, s.spacing)
	if err != nil {
		return err
	}
	if sched.Equal(s.sched) {
		return nil
	}
	s.arm(sched)
	return nil
}

func (s *Scheduler) arm(sched Schedule) {
	s.generation++
	s.sched = sched
	s.running = true
	s.log.Debug("schedule armed: gen=%d slots=%d period=%dms", s.generation, len(sched.Slots), sched.PeriodMS)
	s.clock.Arm(s.generation, sched)
}

// Stop disarms the clock and invalidates slot events already queued.
func (s *Scheduler) Stop() {
	if s.running {
		s.log.Debug("schedule stopped: gen=%d", s.generation)
	}
	s.generation++
	s.running = false
	s.sched = Schedule{}
	s.clock.Disarm()
}

// Fire samples the channel of a due slot. ok is false when the event is stale. A read or
// conversion failure still yields a measurement, marked invalid.
func (s *Scheduler) Fire(ev SlotDue) (protocol.Measurement, bool) {
	if !s.running || ev.Generation != s.generation || ev.Index < 0 || ev.Index >= len(s.sched.Slots) {
		s.stale++
		return protocol.Measurement{}, false
	}
	slot := s.sched.Slots[ev.Index]
	m := protocol.Measurement{Group: slot.Group, Channel: slot.Channel}

	v, err := s.sample(slot)
	s.sampled++
	if err != nil {
		s.invalid++
		s.log.Warn("sample %s/%d failed: %v", slot.Group, slot.Channel, err)
		return m, true
	}
	m.Value = v
	m.Valid = true
	return m, true
}

func (s *Scheduler) sample(slot Slot) (float32, error) {
	sn, ok := s.sensors[slot.Group]
	if !ok || sn.Driver == nil || sn.Converter == nil {
		return 0, fmt.Errorf("no sensor for group %s", slot.Group)
	}
	raw, err := sn.Driver.Sample(slot.Channel)
	if err != nil {
		return 0, err
	}
	v, err := sn.Converter.Convert(raw)
	if err != nil {
		return 0, err
	}
	if !sn.Band.Contains(v) {
		return v, fmt.Errorf("%.3f %s outside plausible band (%g, %g)", v, sn.Converter.Unit(), sn.Band.Min, sn.Band.Max)
	}
	return v, nil
}
