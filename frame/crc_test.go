package frame_test

import (
	"testing"

	"github.com/busrt/busrt/frame"
	"github.com/stretchr/testify/require"
)

func TestChecksumVectors(t *testing.T) {
	// Standard CRC-16/CCITT-FALSE check value.
	require.Equal(t, uint16(0x29B1), frame.Checksum([]byte("123456789")))
	require.Equal(t, uint16(0xFFFF), frame.NewCRC16().Value())
}

func TestChecksumResidue(t *testing.T) {
	payload := []byte("multi-frame transfer payload")
	crc := frame.Checksum(payload)

	running := frame.NewCRC16().Update(payload)
	running = running.Update([]byte{byte(crc >> 8), byte(crc)})
	require.True(t, running.Residue())

	// A single flipped payload bit must break the residue.
	payload[0] ^= 0x01
	running = frame.NewCRC16().Update(payload)
	running = running.Update([]byte{byte(crc >> 8), byte(crc)})
	require.False(t, running.Residue())
}

func TestChecksumIncrementalMatchesOneShot(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x11, 0x22}

	running := frame.NewCRC16()
	for _, b := range data {
		running = running.Update([]byte{b})
	}
	require.Equal(t, frame.Checksum(data), running.Value())
}
