package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackbody-telemetry/protocol"
)

const catalogueCSV = `direction,frame_id,frame_name,kind,group,cycle_ms,dlc,comment
tx,0x620,BB_HEARTBEAT,HEARTBEAT,0,1000,1,counter
rx,0x621,BB_SET_MODE,SET_MODE,0,0,1,
tx,0x622,BB_FAULT,FAULT,0,0,2,
rx,0x623,BB_ACK_FAULT,ACK_FAULT,0,0,1,
rx,0x624,BB_RTD_CONF,CONFIG,0,0,3,
rx,0x625,BB_IRR_CONF,CONFIG,1,0,3,
# measurement frames carry channel + float32
tx,0x626,BB_RTD_MEAS,MEASUREMENT,0,0,5,
tx,0x627,BB_IRR_MEAS,MEASUREMENT,1,0,5,
`

func TestReadCANMap(t *testing.T) {
	m, err := ReadCANMap(strings.NewReader(catalogueCSV))
	require.NoError(t, err)
	assert.Len(t, m.ByID, 8)

	fd, err := m.FrameByName("BB_IRR_CONF")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x625), fd.ID)
	assert.Equal(t, protocol.KindConfig, fd.Kind)
	assert.Equal(t, protocol.GroupIrradiance, fd.Group)
	assert.Equal(t, "rx", fd.Direction)

	fd, err = m.FrameByID(0x620)
	require.NoError(t, err)
	assert.Equal(t, 1000, fd.CycleMS)

	_, err = m.FrameByID(0x700)
	assert.Error(t, err)
}

func TestCANMap_CatalogueMatchesDefault(t *testing.T) {
	m, err := ReadCANMap(strings.NewReader(catalogueCSV))
	require.NoError(t, err)
	cat, err := m.Catalogue()
	require.NoError(t, err)

	def := protocol.DefaultCatalogue()
	for _, id := range def.IDs() {
		want, _ := def.Lookup(id)
		got, ok := cat.Lookup(id)
		require.True(t, ok, "id 0x%X", id)
		assert.Equal(t, want, got)
	}
}

func TestReadCANMap_Errors(t *testing.T) {
	header := "direction,frame_id,frame_name,kind,group,cycle_ms,dlc,comment\n"
	tests := []struct {
		name string
		in   string
	}{
		{"missing column", "direction,frame_id\n"},
		{"bad id", header + "tx,zz,X,HEARTBEAT,0,0,1,\n"},
		{"bad kind", header + "tx,0x10,X,BOGUS,0,0,1,\n"},
		{"bad direction", header + "up,0x10,X,HEARTBEAT,0,0,1,\n"},
		{"dlc too small", header + "tx,0x10,X,MEASUREMENT,0,0,4,\n"},
		{"dlc too large", header + "tx,0x10,X,HEARTBEAT,0,0,9,\n"},
		{"duplicate id", header + "tx,0x10,X,HEARTBEAT,0,0,1,\nrx,0x10,Y,SET_MODE,0,0,1,\n"},
		{"non-numeric group", header + "rx,0x625,X,CONFIG,irr,0,3,\n"},
		{"group out of range", header + "tx,0x627,X,MEASUREMENT,257,0,5,\n"},
		{"negative group", header + "tx,0x627,X,MEASUREMENT,-1,0,5,\n"},
		{"non-numeric dlc", header + "tx,0x10,X,HEARTBEAT,0,0,one,\n"},
		{"non-numeric cycle", header + "tx,0x10,X,HEARTBEAT,0,1s,1,\n"},
		{"duplicate name", header + "tx,0x10,X,HEARTBEAT,0,0,1,\nrx,0x11,X,SET_MODE,0,0,1,\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCANMap(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestCANMap_CatalogueDuplicateRoute(t *testing.T) {
	in := "direction,frame_id,frame_name,kind,group,cycle_ms,dlc,comment\n" +
		"tx,0x10,A,MEASUREMENT,1,0,5,\n" +
		"tx,0x11,B,MEASUREMENT,1,0,5,\n"
	m, err := ReadCANMap(strings.NewReader(in))
	require.NoError(t, err)
	_, err = m.Catalogue()
	assert.Error(t, err)
}
