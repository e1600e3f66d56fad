package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func TestLoopbackHub_DeliversToOthersOnly(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Port(4)
	b := hub.Port(4)
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f := can.Frame{ID: 0x620, Length: 1, Data: can.Data{7}}
	require.NoError(t, a.WriteFrame(ctx, f))

	got, err := b.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	_, err = a.ReadFrame(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopbackPort_Closed(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Port(1)
	b := hub.Port(1)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	ctx := context.Background()
	assert.NoError(t, a.WriteFrame(ctx, can.Frame{ID: 1}))
	assert.ErrorIs(t, b.WriteFrame(ctx, can.Frame{ID: 1}), ErrBusClosed)
	_, err := b.ReadFrame(ctx)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestLoopbackPort_OverrunDrops(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Port(1)
	b := hub.Port(1)
	ctx := context.Background()

	require.NoError(t, a.WriteFrame(ctx, can.Frame{ID: 1}))
	require.NoError(t, a.WriteFrame(ctx, can.Frame{ID: 2}))

	got, err := b.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.ID)
}
