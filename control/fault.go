package control

import (
	"strconv"
	"time"

	"blackbody-telemetry/protocol"
	"blackbody-telemetry/utils"
)

// FaultCode is the 16-bit code carried by FAULT frames. 0 means no fault.
type FaultCode uint16

const (
	FaultNone               FaultCode = 0
	FaultDebug              FaultCode = 1
	FaultIrradianceSetup    FaultCode = 2
	FaultTemperatureSetup   FaultCode = 3
	FaultBusReceive         FaultCode = 4
	FaultScheduleInfeasible FaultCode = 5
)

func (c FaultCode) String() string {
	switch c {
	case FaultNone:
		return "none"
	case FaultDebug:
		return "debug"
	case FaultIrradianceSetup:
		return "irradiance_setup"
	case FaultTemperatureSetup:
		return "temperature_setup"
	case FaultBusReceive:
		return "bus_receive"
	case FaultScheduleInfeasible:
		return "schedule_infeasible"
	default:
		return "code_" + strconv.Itoa(int(c))
	}
}

// FaultRecord is the latched fault.
type FaultRecord struct {
	Code     FaultCode
	RaisedAt time.Time
}

// FaultManager latches the first fault until it is acknowledged. Later faults raised while one
// is latched are logged and otherwise discarded.
type FaultManager struct {
	active *FaultRecord
	now    func() time.Time
	send   func(protocol.Message)
	notify func(fsmEvent)
	log    *utils.Logger

	raised  uint64
	ignored uint64
}

func newFaultManager(now func() time.Time, send func(protocol.Message), notify func(fsmEvent), log *utils.Logger) *FaultManager {
	return &FaultManager{now: now, send: send, notify: notify, log: log}
}

// Raise latches code, announces it on the bus and drives the node into ERROR. It returns
// false when a fault was already latched.
func (f *FaultManager) Raise(code FaultCode) bool {
	if f.active != nil {
		f.ignored++
		f.log.Warn("fault %s (%d) ignored, %s (%d) still latched", code, code, f.active.Code, f.active.Code)
		return false
	}
	f.active = &FaultRecord{Code: code, RaisedAt: f.now()}
	f.raised++
	f.log.Error("fault raised: %s (%d)", code, code)
	f.send(protocol.Fault{Code: uint16(code)})
	f.notify(evFaultRaised)
	return true
}

// Acknowledge clears the latched fault. It returns false when there was none.
func (f *FaultManager) Acknowledge() bool {
	if f.active == nil {
		f.log.Debug("acknowledge with no latched fault")
		return false
	}
	f.log.Info("fault acknowledged: %s (%d) after %s", f.active.Code, f.active.Code, f.now().Sub(f.active.RaisedAt).Round(time.Millisecond))
	f.active = nil
	f.notify(evFaultAcknowledged)
	return true
}

// Active returns the latched fault, if any.
func (f *FaultManager) Active() (FaultRecord, bool) {
	if f.active == nil {
		return FaultRecord{}, false
	}
	return *f.active, true
}
