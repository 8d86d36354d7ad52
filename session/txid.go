package session

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"

	"github.com/busrt/busrt/blockpool"
	"github.com/busrt/busrt/frame"
)

// TransferIDMap is a bounded table of per-(port, source) transfer sequence
// counters. The transmit path uses it to stamp successive transfers with
// consecutive modulo-32 identifiers; the receive path uses a second instance to
// remember the last delivered identifier per key so duplicates are suppressed.
//
// Entries are created lazily on first contact with a key and persist for the
// node's lifetime- the key space is bounded by network size, so entries are never
// reclaimed. If that assumption is violated, Next and Record return ErrTableFull
// rather than evicting, since evicting a counter silently corrupts sequencing.
//
// Counter storage lives in pool blocks, like every other dynamic structure in the
// node: the map value is a block handle and the counter occupies the block's first
// bytes.
type TransferIDMap struct {
	pool     *blockpool.Pool
	entries  *swiss.Map[frame.SessionKey, blockpool.Block]
	capacity int
}

const (
	entryOffsetLast = 0
)

// NewTransferIDMap builds a map bounded to capacity keys, drawing entry storage
// from pool.
func NewTransferIDMap(pool *blockpool.Pool, capacity int) (*TransferIDMap, error) {
	if pool == nil {
		return nil, errors.New("a TransferIDMap requires a backing block pool")
	}
	if capacity <= 0 {
		return nil, errors.Newf("transfer-id capacity must be positive, but was %d", capacity)
	}

	return &TransferIDMap{
		pool:     pool,
		entries:  swiss.NewMap[frame.SessionKey, blockpool.Block](uint32(capacity)),
		capacity: capacity,
	}, nil
}

// Next returns the transfer identifier to use for the next outbound transfer on
// key and advances the counter. The first transfer on a key is always 0.
func (m *TransferIDMap) Next(key frame.SessionKey) (frame.TransferID, error) {
	if block, ok := m.entries.Get(key); ok {
		last := frame.TransferID(block.Bytes()[entryOffsetLast])
		next := last.Next()
		block.Bytes()[entryOffsetLast] = byte(next)
		return next, nil
	}

	if err := m.insert(key, 0); err != nil {
		return 0, err
	}
	return 0, nil
}

// Record remembers id as the most recent transfer observed on key.
func (m *TransferIDMap) Record(key frame.SessionKey, id frame.TransferID) error {
	if block, ok := m.entries.Get(key); ok {
		block.Bytes()[entryOffsetLast] = byte(id)
		return nil
	}

	return m.insert(key, id)
}

// Last returns the most recent transfer identifier used or observed on key, if
// the key has been seen at all.
func (m *TransferIDMap) Last(key frame.SessionKey) (frame.TransferID, bool) {
	block, ok := m.entries.Get(key)
	if !ok {
		return 0, false
	}
	return frame.TransferID(block.Bytes()[entryOffsetLast]), true
}

// Len returns the number of tracked keys.
func (m *TransferIDMap) Len() int {
	return m.entries.Count()
}

// Capacity returns the maximum number of tracked keys.
func (m *TransferIDMap) Capacity() int {
	return m.capacity
}

func (m *TransferIDMap) insert(key frame.SessionKey, id frame.TransferID) error {
	if m.entries.Count() >= m.capacity {
		return errors.Wrapf(ErrTableFull, "transfer-id map already tracks %d keys", m.capacity)
	}

	block, err := m.pool.Allocate()
	if err != nil {
		return err
	}

	block.Bytes()[entryOffsetLast] = byte(id)
	m.entries.Put(key, block)
	return nil
}
