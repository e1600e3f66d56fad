package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"go.einride.tech/can"
)

// ErrNoRoute is returned when encoding a message the catalogue has no identifier for.
var ErrNoRoute = errors.New("protocol: no identifier for message")

// Codec converts between frames and messages. It holds no state besides the catalogue.
type Codec struct {
	cat *Catalogue
}

func NewCodec(cat *Catalogue) *Codec {
	if cat == nil {
		cat = DefaultCatalogue()
	}
	return &Codec{cat: cat}
}

func (c *Codec) Catalogue() *Catalogue { return c.cat }

// Decode turns a received frame into a message. ok is false for frames that are not ours:
// unknown identifiers, remote or extended frames, and payloads shorter than the kind needs.
// None of those are errors on a shared bus.
func (c *Codec) Decode(f can.Frame) (Message, bool) {
	if f.IsRemote || f.IsExtended {
		return nil, false
	}
	r, ok := c.cat.Lookup(f.ID)
	if !ok {
		return nil, false
	}
	if int(f.Length) < r.Kind.PayloadLen() || f.Length > 8 {
		return nil, false
	}
	d := f.Data[:f.Length]

	switch r.Kind {
	case KindHeartbeat:
		return Heartbeat{Counter: d[0]}, true
	case KindSetMode:
		return SetMode{Run: d[0] == 0x01}, true
	case KindFault:
		return Fault{Code: binary.LittleEndian.Uint16(d[0:2])}, true
	case KindAckFault:
		return AckFault{Confirm: d[0] == 0x01}, true
	case KindConfig:
		return Config{
			Group:  r.Group,
			Mask:   Mask(d[0]),
			RateHz: binary.BigEndian.Uint16(d[1:3]),
		}, true
	case KindMeasurement:
		v := math.Float32frombits(binary.LittleEndian.Uint32(d[1:5]))
		return Measurement{
			Group:   r.Group,
			Channel: d[0],
			Value:   v,
			Valid:   !math32.IsNaN(v),
		}, true
	}
	return nil, false
}

// Encode builds the frame for msg.
func (c *Codec) Encode(msg Message) (can.Frame, error) {
	r := Route{Kind: msg.Kind()}
	switch m := msg.(type) {
	case Config:
		r.Group = m.Group
	case Measurement:
		r.Group = m.Group
	}
	id, ok := c.cat.ID(r)
	if !ok {
		return can.Frame{}, fmt.Errorf("%w: %s/%s", ErrNoRoute, r.Kind, r.Group)
	}

	f := can.Frame{ID: id, Length: uint8(r.Kind.PayloadLen())}
	switch m := msg.(type) {
	case Heartbeat:
		f.Data[0] = m.Counter
	case SetMode:
		if m.Run {
			f.Data[0] = 0x01
		}
	case Fault:
		binary.LittleEndian.PutUint16(f.Data[0:2], m.Code)
	case AckFault:
		if m.Confirm {
			f.Data[0] = 0x01
		}
	case Config:
		f.Data[0] = uint8(m.Mask)
		binary.BigEndian.PutUint16(f.Data[1:3], m.RateHz)
	case Measurement:
		v := m.Value
		if !m.Valid {
			v = math32.NaN()
		}
		f.Data[0] = m.Channel
		binary.LittleEndian.PutUint32(f.Data[1:5], math.Float32bits(v))
	default:
		return can.Frame{}, fmt.Errorf("protocol: cannot encode %T", msg)
	}
	return f, nil
}
