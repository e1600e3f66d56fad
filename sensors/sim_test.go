package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSim_RequiresSetup(t *testing.T) {
	s := NewSimRTD(SimConfig{Channels: 2, Base: []float32{20}, Seed: 1}, pt100)
	_, err := s.Sample(0)
	assert.Error(t, err)

	require.NoError(t, s.Setup())
	raw, err := s.Sample(1)
	require.NoError(t, err)
	require.Len(t, raw, 1)

	v, err := pt100.Convert(raw)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, v, 0.1)
}

func TestSim_NoiseBounded(t *testing.T) {
	s := NewSimTSL2591(SimConfig{Channels: 1, Base: []float32{80}, Noise: 5, Seed: 7})
	require.NoError(t, s.Setup())

	for i := 0; i < 200; i++ {
		raw, err := s.Sample(0)
		require.NoError(t, err)
		v, err := TSL2591{}.Convert(raw)
		require.NoError(t, err)
		assert.InDelta(t, 80.0, v, 5.1)
	}
	assert.Equal(t, uint64(200), s.Reads())
}

func TestSim_Failures(t *testing.T) {
	s := NewSimRTD(SimConfig{Channels: 1, FailRate: 1, Seed: 3}, pt100)
	require.NoError(t, s.Setup())
	_, err := s.Sample(0)
	assert.ErrorIs(t, err, ErrSimulatedFailure)

	_, err = s.Sample(4)
	assert.ErrorIs(t, err, ErrNoChannel)

	dead := NewSimTSL2591(SimConfig{SetupFail: true})
	assert.Error(t, dead.Setup())
}
