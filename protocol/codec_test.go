package protocol

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func frame(id uint32, data ...byte) can.Frame {
	f := can.Frame{ID: id, Length: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

func TestDecode_Commands(t *testing.T) {
	c := NewCodec(nil)

	tests := []struct {
		name string
		in   can.Frame
		want Message
	}{
		{"set mode run", frame(IDSetMode, 0x01), SetMode{Run: true}},
		{"set mode stop", frame(IDSetMode, 0x00), SetMode{Run: false}},
		{"set mode other value stops", frame(IDSetMode, 0x02), SetMode{Run: false}},
		{"ack fault", frame(IDAckFault, 0x01), AckFault{Confirm: true}},
		{"ack fault unconfirmed", frame(IDAckFault, 0x00), AckFault{Confirm: false}},
		{"fault code little endian", frame(IDFault, 0x03, 0x01), Fault{Code: 0x0103}},
		{"heartbeat", frame(IDHeartbeat, 0x2A), Heartbeat{Counter: 42}},
		{
			"temperature config rate big endian",
			frame(IDTemperatureConfig, 0x0F, 0x00, 0x02),
			Config{Group: GroupTemperature, Mask: 0x0F, RateHz: 2},
		},
		{
			"irradiance config",
			frame(IDIrradianceConfig, 0x01, 0x01, 0x00),
			Config{Group: GroupIrradiance, Mask: 0x01, RateHz: 256},
		},
		{"padded frame", frame(IDSetMode, 0x01, 0, 0, 0, 0, 0, 0, 0), SetMode{Run: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Decode(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Ignored(t *testing.T) {
	c := NewCodec(nil)

	tests := []struct {
		name string
		in   can.Frame
	}{
		{"unknown id", frame(0x123, 0x01)},
		{"empty set mode", frame(IDSetMode)},
		{"short fault", frame(IDFault, 0x03)},
		{"short config", frame(IDIrradianceConfig, 0x01, 0x00)},
		{"short measurement", frame(IDIrradianceMeasurement, 0x00, 0x00, 0x00, 0x00)},
		{"remote frame", can.Frame{ID: IDSetMode, Length: 1, IsRemote: true}},
		{"extended frame", can.Frame{ID: IDSetMode, Length: 1, IsExtended: true, Data: can.Data{0x01}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := c.Decode(tt.in)
			assert.False(t, ok)
			assert.Nil(t, msg)
		})
	}
}

func TestMeasurement_RoundTrip(t *testing.T) {
	c := NewCodec(nil)

	values := []float32{0, 21.375, -9.5, 1234.5678, math.MaxFloat32}
	for _, v := range values {
		in := Measurement{Group: GroupTemperature, Channel: 5, Value: v, Valid: true}
		f, err := c.Encode(in)
		require.NoError(t, err)
		assert.Equal(t, IDTemperatureMeasurement, f.ID)
		assert.Equal(t, uint8(5), f.Length)

		out, ok := c.Decode(f)
		require.True(t, ok)
		m := out.(Measurement)
		assert.Equal(t, in.Channel, m.Channel)
		assert.InDelta(t, v, m.Value, 1e-6)
		assert.True(t, m.Valid)
	}
}

func TestMeasurement_InvalidTravelsAsNaN(t *testing.T) {
	c := NewCodec(nil)

	f, err := c.Encode(Measurement{Group: GroupIrradiance, Channel: 0, Value: 12, Valid: false})
	require.NoError(t, err)
	assert.Equal(t, IDIrradianceMeasurement, f.ID)

	out, ok := c.Decode(f)
	require.True(t, ok)
	m := out.(Measurement)
	assert.False(t, m.Valid)
	assert.True(t, math32.IsNaN(m.Value))
}

func TestEncode_Layouts(t *testing.T) {
	c := NewCodec(nil)

	f, err := c.Encode(Heartbeat{Counter: 255})
	require.NoError(t, err)
	assert.Equal(t, IDHeartbeat, f.ID)
	assert.Equal(t, []byte{0xFF}, f.Data[:f.Length])

	f, err = c.Encode(Fault{Code: 3})
	require.NoError(t, err)
	assert.Equal(t, IDFault, f.ID)
	assert.Equal(t, []byte{0x03, 0x00}, f.Data[:f.Length])

	f, err = c.Encode(Config{Group: GroupTemperature, Mask: 0xFF, RateHz: 0x0102})
	require.NoError(t, err)
	assert.Equal(t, IDTemperatureConfig, f.ID)
	assert.Equal(t, []byte{0xFF, 0x01, 0x02}, f.Data[:f.Length])

	f, err = c.Encode(SetMode{Run: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, f.Data[:f.Length])
}

func TestEncode_NoRoute(t *testing.T) {
	c := NewCodec(nil)
	_, err := c.Encode(Measurement{Group: GroupID(7), Valid: true})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestCatalogue_Add(t *testing.T) {
	cat := NewCatalogue()
	require.NoError(t, cat.Add(0x100, Route{Kind: KindHeartbeat}))

	assert.Error(t, cat.Add(0x100, Route{Kind: KindSetMode}), "duplicate id")
	assert.Error(t, cat.Add(0x101, Route{Kind: KindHeartbeat}), "duplicate route")
	assert.Error(t, cat.Add(0x800, Route{Kind: KindSetMode}), "extended id")
	assert.Error(t, cat.Add(0x102, Route{Kind: KindUnknown}))

	id, ok := cat.ID(Route{Kind: KindHeartbeat, Group: 3})
	assert.True(t, ok, "group is ignored for group-less kinds")
	assert.Equal(t, uint32(0x100), id)
}

func TestDefaultCatalogue_IDs(t *testing.T) {
	ids := DefaultCatalogue().IDs()
	assert.Equal(t, []uint32{0x620, 0x621, 0x622, 0x623, 0x624, 0x625, 0x626, 0x627}, ids)
}

func TestMask(t *testing.T) {
	m := Mask(0b1010_0101)
	assert.True(t, m.Has(0))
	assert.False(t, m.Has(1))
	assert.True(t, m.Has(7))
	assert.False(t, m.Has(8))
	assert.Equal(t, 4, m.Count())
	assert.Equal(t, Mask(0b0101), m.Limit(4))
	assert.Equal(t, Mask(0), m.Limit(0))
	assert.Equal(t, m, m.Limit(8))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("MEASUREMENT")
	require.NoError(t, err)
	assert.Equal(t, KindMeasurement, k)

	_, err = ParseKind("BOGUS")
	assert.Error(t, err)
}
