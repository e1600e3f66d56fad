// Package protocol maps CAN frames to the typed messages exchanged between the telemetry node
// and the bus master, and back.
//
// Payload layouts follow the board firmware byte for byte:
//
//	HEARTBEAT    [counter u8]
//	SET_MODE     [mode u8]                 0x01 = run
//	FAULT        [code u16 LE]
//	ACK_FAULT    [confirm u8]              0x01 = acknowledge
//	CONFIG       [mask u8][rate u16 BE]
//	MEASUREMENT  [channel u8][value f32 LE] NaN = invalid reading
package protocol

import "fmt"

// Kind identifies a message type on the wire.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindHeartbeat
	KindSetMode
	KindFault
	KindAckFault
	KindConfig
	KindMeasurement
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindSetMode:
		return "SET_MODE"
	case KindFault:
		return "FAULT"
	case KindAckFault:
		return "ACK_FAULT"
	case KindConfig:
		return "CONFIG"
	case KindMeasurement:
		return "MEASUREMENT"
	default:
		return "UNKNOWN"
	}
}

// ParseKind is the inverse of Kind.String. It is used by the catalogue loader.
func ParseKind(s string) (Kind, error) {
	for k := KindHeartbeat; k <= KindMeasurement; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown message kind %q", s)
}

// PayloadLen is the minimum payload length for a kind. Shorter frames are dropped.
func (k Kind) PayloadLen() int {
	switch k {
	case KindHeartbeat, KindSetMode, KindAckFault:
		return 1
	case KindFault:
		return 2
	case KindConfig:
		return 3
	case KindMeasurement:
		return 5
	default:
		return 0
	}
}

// GroupID identifies a channel group (one sensor family).
type GroupID uint8

const (
	GroupTemperature GroupID = 0
	GroupIrradiance  GroupID = 1
)

func (g GroupID) String() string {
	switch g {
	case GroupTemperature:
		return "temperature"
	case GroupIrradiance:
		return "irradiance"
	default:
		return fmt.Sprintf("group%d", uint8(g))
	}
}

// Mask is the active-channel bitset of a group. Bit i set means channel i is sampled.
type Mask uint8

func (m Mask) Has(channel uint8) bool {
	return channel < 8 && m>>channel&0x1 == 1
}

// Count returns the number of active channels.
func (m Mask) Count() int {
	n := 0
	for ch := uint8(0); ch < 8; ch++ {
		if m.Has(ch) {
			n++
		}
	}
	return n
}

// Limit clears every bit at or above channels.
func (m Mask) Limit(channels int) Mask {
	if channels >= 8 {
		return m
	}
	if channels <= 0 {
		return 0
	}
	return m & Mask(1<<channels-1)
}

// Message is any decoded or encodable bus message.
type Message interface {
	Kind() Kind
}

type Heartbeat struct {
	Counter uint8
}

type SetMode struct {
	Run bool
}

type Fault struct {
	Code uint16
}

type AckFault struct {
	Confirm bool
}

type Config struct {
	Group  GroupID
	Mask   Mask
	RateHz uint16
}

type Measurement struct {
	Group   GroupID
	Channel uint8
	Value   float32
	Valid   bool
}

func (Heartbeat) Kind() Kind   { return KindHeartbeat }
func (SetMode) Kind() Kind     { return KindSetMode }
func (Fault) Kind() Kind       { return KindFault }
func (AckFault) Kind() Kind    { return KindAckFault }
func (Config) Kind() Kind      { return KindConfig }
func (Measurement) Kind() Kind { return KindMeasurement }
