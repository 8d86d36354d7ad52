package bridge_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/busrt/busrt/frame"
	"github.com/busrt/busrt/transport"
	"github.com/busrt/busrt/transport/bridge"
)

func relayFrame(tag byte) frame.Frame {
	return frame.Frame{
		Priority: frame.PriorityNominal,
		Port:     10,
		Source:   1,
		End:      true,
		Payload:  []byte{tag},
	}
}

func TestBridgeRelaysInOrder(t *testing.T) {
	a, b, err := bridge.New(8)
	require.NoError(t, err)

	for _, tag := range []byte{'x', 'y', 'z'} {
		ok, err := a.Send(0, relayFrame(tag))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 3, b.PendingCount())

	var got []byte
	for {
		f, ok, err := b.Receive(0)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, f.Payload[0])
	}
	require.Equal(t, []byte{'x', 'y', 'z'}, got)

	require.Equal(t, uint64(3), a.Stats().Relayed)
}

func TestBridgeBoundedRefusal(t *testing.T) {
	a, _, err := bridge.New(1)
	require.NoError(t, err)

	ok, err := a.Send(0, relayFrame('a'))
	require.NoError(t, err)
	require.True(t, ok)

	// A full lane refuses the frame instead of blocking or growing.
	ok, err = a.Send(0, relayFrame('b'))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(1), a.Stats().Refused)
}

func TestBridgeWait(t *testing.T) {
	a, b, err := bridge.New(4)
	require.NoError(t, err)

	mask, err := b.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint32(0), mask)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = a.Send(0, relayFrame('a'))
	}()

	mask, err = b.Wait(time.Second)
	require.NoError(t, err)
	require.Equal(t, uint32(1), mask)
}

func TestBridgeClose(t *testing.T) {
	a, b, err := bridge.New(4)
	require.NoError(t, err)

	a.Close()

	_, err = a.Wait(time.Millisecond)
	require.ErrorIs(t, err, transport.ErrDriverDown)

	_, _, err = b.Receive(0)
	require.ErrorIs(t, err, transport.ErrDriverDown)

	_, err = b.Send(0, relayFrame('a'))
	require.ErrorIs(t, err, transport.ErrDriverDown)
}

func TestBridgeSingleInterface(t *testing.T) {
	a, _, err := bridge.New(4)
	require.NoError(t, err)

	require.Equal(t, 1, a.InterfaceCount())

	_, err = a.Send(1, relayFrame('a'))
	require.Error(t, err)
}
