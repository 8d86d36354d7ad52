package blockpool_test

import (
	"math/rand"
	"testing"

	"github.com/busrt/busrt/blockpool"
	"github.com/stretchr/testify/require"
)

func TestPoolAccounting(t *testing.T) {
	const capacity = 16

	pool, err := blockpool.NewPool(64, capacity)
	require.NoError(t, err)
	require.Equal(t, capacity, pool.Capacity())
	require.Equal(t, 0, pool.UsedCount())
	require.Equal(t, capacity, pool.FreeCount())
	require.Equal(t, 0, pool.PeakUsedCount())

	rng := rand.New(rand.NewSource(1))
	var owned []blockpool.Block
	peak := 0

	for i := 0; i < 10000; i++ {
		if len(owned) == 0 || (rng.Intn(2) == 0 && len(owned) < capacity) {
			block, err := pool.Allocate()
			require.NoError(t, err)
			require.False(t, block.IsNil())
			owned = append(owned, block)
		} else {
			victim := rng.Intn(len(owned))
			require.NoError(t, pool.Free(owned[victim]))
			owned = append(owned[:victim], owned[victim+1:]...)
		}

		if len(owned) > peak {
			peak = len(owned)
		}

		require.Equal(t, capacity, pool.UsedCount()+pool.FreeCount())
		require.Equal(t, len(owned), pool.UsedCount())
		require.Equal(t, peak, pool.PeakUsedCount())
	}

	require.NoError(t, pool.Validate())
}

func TestPoolExhaustion(t *testing.T) {
	const capacity = 8

	pool, err := blockpool.NewPool(32, capacity)
	require.NoError(t, err)

	blocks := make([]blockpool.Block, 0, capacity)
	for i := 0; i < capacity; i++ {
		block, err := pool.Allocate()
		require.NoError(t, err)
		blocks = append(blocks, block)
	}

	block, err := pool.Allocate()
	require.ErrorIs(t, err, blockpool.ErrExhausted)
	require.True(t, block.IsNil())

	// The free list must remain structurally valid after exhaustion: a free
	// followed by an allocate succeeds and returns the just-freed block.
	require.NoError(t, pool.Free(blocks[3]))
	require.NoError(t, pool.Validate())

	block, err = pool.Allocate()
	require.NoError(t, err)
	require.Equal(t, blocks[3].Index(), block.Index())

	require.Equal(t, capacity, pool.PeakUsedCount())
}

func TestPoolBlockSizeAlignment(t *testing.T) {
	pool, err := blockpool.NewPool(13, 4)
	require.NoError(t, err)
	require.Equal(t, 16, pool.BlockSize())

	block, err := pool.Allocate()
	require.NoError(t, err)
	require.Len(t, block.Bytes(), 16)
}

func TestPoolRejectsBadSizing(t *testing.T) {
	_, err := blockpool.NewPool(0, 4)
	require.Error(t, err)

	_, err = blockpool.NewPool(64, 0)
	require.Error(t, err)
}

func TestPoolFreeRejectsForeignBlock(t *testing.T) {
	pool, err := blockpool.NewPool(64, 4)
	require.NoError(t, err)

	require.Error(t, pool.Free(blockpool.NilBlock))
}

func TestPoolStatistics(t *testing.T) {
	pool, err := blockpool.NewPool(64, 4)
	require.NoError(t, err)

	block, err := pool.Allocate()
	require.NoError(t, err)

	var stats blockpool.Statistics
	stats.Clear()
	pool.AddStatistics(&stats)
	require.Equal(t, blockpool.Statistics{
		Capacity:  4,
		BlockSize: 64,
		Used:      1,
		Free:      3,
		PeakUsed:  1,
	}, stats)

	require.NoError(t, pool.Free(block))

	other, err := blockpool.NewPool(64, 2)
	require.NoError(t, err)
	other.AddStatistics(&stats)
	require.Equal(t, 6, stats.Capacity)
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, blockpool.CheckPow2(64, "block size"))
	require.ErrorIs(t, blockpool.CheckPow2(48, "block size"), blockpool.PowerOfTwoError)
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, 64, blockpool.AlignUp(33, 64))
	require.Equal(t, 64, blockpool.AlignUp(64, 64))
	require.Equal(t, 0, blockpool.AlignUp(0, 64))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 0, blockpool.AlignDown(33, 64))
	require.Equal(t, 64, blockpool.AlignDown(64, 64))
	require.Equal(t, 64, blockpool.AlignDown(127, 64))
}
