package blockpool

import (
	"github.com/cockroachdb/errors"
)

const (
	// BlockAlignment is the boundary every block size is rounded up to. Keeping
	// blocks word-aligned lets codecs read payload buffers without byte shuffling.
	BlockAlignment uint = 8

	freeListEnd int32 = -1
)

// Block is a handle to one fixed-size unit of a Pool's backing arena. At any time a
// Block is either free (on the pool's free list) or owned by exactly one consumer-
// ownership is never shared or aliased. The handle stays cheap to copy: it is an
// index plus a subslice of the arena, never an independent heap allocation.
type Block struct {
	index int32
	bytes []byte
}

// NilBlock is the Block value returned from failed allocations. Its IsNil method
// returns true.
var NilBlock = Block{index: freeListEnd}

// Bytes returns the block's backing storage. The returned slice is only valid while
// the caller owns the block- retaining it past Pool.Free is a consumer bug.
func (b Block) Bytes() []byte { return b.bytes }

// Index returns the block's position within its pool's arena.
func (b Block) Index() int32 { return b.index }

// IsNil returns true for handles that do not refer to an arena block.
func (b Block) IsNil() bool { return b.index < 0 }

// Pool is a deterministic fixed-block allocator. It owns one contiguous arena
// partitioned at construction into capacity blocks of identical size; Allocate and
// Free are O(1) free-list operations that touch a constant number of words, which is
// what makes the pool usable under hard deadlines. Fixed block size means zero
// fragmentation under arbitrary allocation patterns.
//
// The pool is not internally synchronized. Each execution context owns its own Pool
// instance rather than sharing one under a lock, so allocation can never participate
// in a priority inversion.
type Pool struct {
	arena     []byte
	blockSize int
	capacity  int

	// next holds the free-list links, indexed by block. A block's link is only
	// meaningful while the block is free.
	next     []int32
	freeHead int32

	used     int
	peakUsed int
}

// NewPool builds a pool of capacity blocks of at least blockSize bytes each.
// blockSize is rounded up to BlockAlignment. The arena is allocated once here and
// never resized; every dynamic structure in the node draws from it afterward.
func NewPool(blockSize, capacity int) (*Pool, error) {
	if blockSize <= 0 {
		return nil, errors.Newf("block size must be positive, but was %d", blockSize)
	}
	if capacity <= 0 {
		return nil, errors.Newf("pool capacity must be positive, but was %d", capacity)
	}

	blockSize = AlignUp(blockSize, BlockAlignment)

	p := &Pool{
		arena:     make([]byte, blockSize*capacity),
		blockSize: blockSize,
		capacity:  capacity,
		next:      make([]int32, capacity),
		freeHead:  0,
	}

	for i := 0; i < capacity-1; i++ {
		p.next[i] = int32(i + 1)
	}
	p.next[capacity-1] = freeListEnd

	for i := 0; i < capacity; i++ {
		writeCanary(p.blockBytes(int32(i)))
	}

	return p, nil
}

// Allocate pops the free-list head in O(1). When the free list is empty it returns
// NilBlock and ErrExhausted- a transient condition, not a fatal one. Callers must
// respond by discarding the in-flight operation (drop the incoming transfer, fail
// the publish call) rather than retrying indefinitely.
func (p *Pool) Allocate() (Block, error) {
	if p.freeHead == freeListEnd {
		return NilBlock, ErrExhausted
	}

	index := p.freeHead
	p.freeHead = p.next[index]
	p.next[index] = index

	block := Block{index: index, bytes: p.blockBytes(index)}
	checkCanary(block.bytes, index)
	clearCanary(block.bytes)

	p.used++
	if p.used > p.peakUsed {
		p.peakUsed = p.used
	}

	return block, nil
}

// Free pushes block onto the free-list head in O(1). Freeing the same block twice is
// undefined by contract; builds with the debug_busrt tag write a canary into freed
// blocks so that double frees are caught for diagnostics, but correctness never
// depends on detection.
func (p *Pool) Free(block Block) error {
	if block.index < 0 || int(block.index) >= p.capacity {
		return errors.Newf("block index %d is not part of this pool (capacity %d)", block.index, p.capacity)
	}

	checkDoubleFree(p.blockBytes(block.index), block.index)
	writeCanary(p.blockBytes(block.index))
	p.next[block.index] = p.freeHead
	p.freeHead = block.index
	p.used--

	return nil
}

// UsedCount returns the number of currently owned blocks. O(1).
func (p *Pool) UsedCount() int { return p.used }

// FreeCount returns the number of blocks on the free list. O(1).
func (p *Pool) FreeCount() int { return p.capacity - p.used }

// PeakUsedCount returns the historical maximum of UsedCount, monotonically
// non-decreasing for the pool's lifetime. O(1).
func (p *Pool) PeakUsedCount() int { return p.peakUsed }

// Capacity returns the total number of blocks in the pool.
func (p *Pool) Capacity() int { return p.capacity }

// BlockSize returns the usable size in bytes of every block, after alignment
// rounding.
func (p *Pool) BlockSize() int { return p.blockSize }

// Validate performs internal consistency checks on the free list. When the pool is
// functioning correctly it should not be possible for this method to return an
// error, but it assists in diagnosing consumer bugs such as double frees.
func (p *Pool) Validate() error {
	seen := make([]bool, p.capacity)
	length := 0

	for index := p.freeHead; index != freeListEnd; index = p.next[index] {
		if index < 0 || int(index) >= p.capacity {
			return errors.Newf("free list contains out-of-range block index %d", index)
		}
		if seen[index] {
			return errors.Newf("free list visits block %d twice- the list has a cycle or a block was freed twice", index)
		}
		seen[index] = true
		length++
	}

	if length != p.FreeCount() {
		return errors.Newf("free list has %d blocks, but the pool counters indicate %d should be free", length, p.FreeCount())
	}

	return nil
}

func (p *Pool) blockBytes(index int32) []byte {
	offset := int(index) * p.blockSize
	return p.arena[offset : offset+p.blockSize : offset+p.blockSize]
}
