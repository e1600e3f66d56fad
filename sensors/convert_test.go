package sensors

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pt100 = RTD{RefOhms: 430, NominalOhms: 100}

func TestRTD_Convert(t *testing.T) {
	tests := []struct {
		name  string
		tempC float32
		delta float64
	}{
		{"freezing", 0, 0.05},
		{"room", 21.5, 0.05},
		{"hot", 150, 0.05},
		{"below zero", -10, 0.3},
		{"cold", -40, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pt100.Convert([]uint16{pt100.Code(tt.tempC)})
			require.NoError(t, err)
			assert.InDelta(t, tt.tempC, got, tt.delta)
		})
	}
}

func TestRTD_ResistanceAtZeroIsNominal(t *testing.T) {
	assert.InDelta(t, 100.0, pt100.Resistance(0), 1e-6)
	assert.InDelta(t, 138.51, pt100.Resistance(100), 0.01)
}

func TestRTD_CodeClamps(t *testing.T) {
	assert.Equal(t, uint16(0x7FFF), pt100.Code(5000))
	assert.Equal(t, uint16(0), pt100.Code(-5000))
}

func TestRTD_ShortReading(t *testing.T) {
	_, err := pt100.Convert(nil)
	assert.ErrorIs(t, err, ErrShortReading)
}

func TestTSL2591_Convert(t *testing.T) {
	c := TSL2591{}

	got, err := c.Convert([]uint16{6024, 1003})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got, 1e-4)

	got, err = c.Convert(c.Counts(80))
	require.NoError(t, err)
	assert.InDelta(t, 80.0, got, 0.01)

	// low gain saturates a little above 108 W/m^2
	assert.Equal(t, []uint16{0xFFFF, 0xFFFF}, c.Counts(2000))

	_, err = c.Convert([]uint16{1})
	assert.ErrorIs(t, err, ErrShortReading)
	assert.Equal(t, "W/m2", c.Unit())
}

func TestBand_Contains(t *testing.T) {
	rtd := Band{Min: -10, Max: 150000}

	tests := []struct {
		name string
		band Band
		v    float32
		want bool
	}{
		{"inside", rtd, 25, true},
		{"on lower bound", rtd, -10, false},
		{"below", rtd, -242, false},
		{"nan", rtd, math32.NaN(), false},
		{"inf", rtd, math32.Inf(1), false},
		{"wider lower bound", Band{Min: -300, Max: 150000}, -242, true},
		{"zero band accepts", Band{}, -1e6, true},
		{"zero band rejects nan", Band{}, math32.NaN(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.band.Contains(tt.v))
		})
	}
}
