// Package node implements the scheduling core of a bus participant: the spin
// loop that interleaves inbound draining, multi-frame reassembly, timer expiry,
// and outbound draining within bounded time and memory. A Node owns its entire
// stack- pool, session tables, outbound queue, timers- and shares nothing with
// other execution contexts except the bus driver it is attached to.
package node

import (
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/busrt/busrt/blockpool"
	"github.com/busrt/busrt/config"
	"github.com/busrt/busrt/frame"
	"github.com/busrt/busrt/session"
	"github.com/busrt/busrt/transport"
	"github.com/busrt/busrt/txqueue"
)

// Handler is a subscriber callback. It runs synchronously inside the spin cycle;
// the transfer's payload is valid only until the callback returns.
type Handler func(transfer session.Transfer)

type subscription struct {
	extent  int
	handler Handler
}

// Options carries the construction constants for one Node. All capacities are
// fixed for the node's lifetime.
type Options struct {
	// NodeID is this node's identity on the bus; outbound transfers carry it as
	// their source.
	NodeID frame.NodeID

	// BlockSize is the pool block size in bytes, which bounds the largest
	// subscribable extent (see Subscribe). Rounded up to the pool's alignment.
	BlockSize int
	// PoolCapacity is the number of blocks in the node's pool. See
	// config.Sizing for the minimum safe sizing arithmetic.
	PoolCapacity int

	// ReceiverCapacity bounds simultaneously reassembling transfers.
	ReceiverCapacity int
	// TransferIDCapacity bounds tracked sequencing keys, per direction.
	TransferIDCapacity int
	// TimerCapacity bounds concurrently scheduled timers.
	TimerCapacity int

	// ReassemblyTimeout purges transfers whose last frame is older than this.
	ReassemblyTimeout time.Duration
	// TxTTL drops outbound frames that could not be transmitted within this.
	TxTTL time.Duration

	// OverflowPolicy selects the receiver table's behavior at capacity.
	OverflowPolicy session.OverflowPolicy
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	options, _ := FromConfig(config.Default())
	return options
}

// FromConfig maps a validated configuration onto construction options.
func FromConfig(cfg config.NodeConfig) (Options, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return Options{}, err
	}

	return Options{
		NodeID:             frame.NodeID(cfg.NodeID),
		BlockSize:          cfg.BlockSize,
		PoolCapacity:       cfg.PoolCapacity,
		ReceiverCapacity:   cfg.ReceiverCapacity,
		TransferIDCapacity: cfg.TransferIDCapacity,
		TimerCapacity:      cfg.TimerCapacity,
		ReassemblyTimeout:  cfg.ReassemblyTimeout.Std(),
		TxTTL:              cfg.TxTTL.Std(),
		OverflowPolicy:     policy,
	}, nil
}

// Node is one execution context's scheduler. It is not internally synchronized:
// a Node and everything it owns must be confined to a single goroutine. The
// dual-context topology runs two Nodes on two goroutines, connected only through
// the transport/bridge package.
type Node struct {
	id     frame.NodeID
	driver transport.Driver
	clk    clock.Clock
	logger *slog.Logger

	pool      *blockpool.Pool
	receivers *session.ReceiverTable
	txIDs     *session.TransferIDMap
	outbound  *txqueue.Queue
	timers    *timerTable

	subscriptions *swiss.Map[frame.PortID, subscription]

	txTTL time.Duration
	diag  Diagnostics
}

// New constructs a node attached to driver, with all deadline math driven by
// clk. A nil logger discards log output.
func New(driver transport.Driver, clk clock.Clock, logger *slog.Logger, options Options) (*Node, error) {
	if driver == nil {
		return nil, errors.New("a node requires a bus driver")
	}
	if clk == nil {
		return nil, errors.New("a node requires a clock")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}
	if options.TimerCapacity <= 0 {
		return nil, errors.Newf("timer capacity must be positive, but was %d", options.TimerCapacity)
	}
	if options.TxTTL <= 0 {
		return nil, errors.Newf("transmit TTL must be positive, but was %s", options.TxTTL)
	}

	pool, err := blockpool.NewPool(options.BlockSize, options.PoolCapacity)
	if err != nil {
		return nil, err
	}

	rxSeen, err := session.NewTransferIDMap(pool, options.TransferIDCapacity)
	if err != nil {
		return nil, err
	}

	receivers, err := session.NewReceiverTable(session.ReceiverTableConfig{
		Pool:       pool,
		Capacity:   options.ReceiverCapacity,
		Timeout:    options.ReassemblyTimeout,
		Policy:     options.OverflowPolicy,
		Sequencing: rxSeen,
	})
	if err != nil {
		return nil, err
	}

	txIDs, err := session.NewTransferIDMap(pool, options.TransferIDCapacity)
	if err != nil {
		return nil, err
	}

	outbound, err := txqueue.New(pool)
	if err != nil {
		return nil, err
	}

	return &Node{
		id:            options.NodeID,
		driver:        driver,
		clk:           clk,
		logger:        logger,
		pool:          pool,
		receivers:     receivers,
		txIDs:         txIDs,
		outbound:      outbound,
		timers:        newTimerTable(options.TimerCapacity),
		subscriptions: swiss.NewMap[frame.PortID, subscription](16),
		txTTL:         options.TxTTL,
	}, nil
}

// ID returns this node's bus identity.
func (n *Node) ID() frame.NodeID { return n.id }

// UsedBlocks returns the pool's currently owned block count. O(1).
func (n *Node) UsedBlocks() int { return n.pool.UsedCount() }

// FreeBlocks returns the pool's free block count. O(1).
func (n *Node) FreeBlocks() int { return n.pool.FreeCount() }

// PeakUsedBlocks returns the pool's historical maximum of UsedBlocks. O(1).
func (n *Node) PeakUsedBlocks() int { return n.pool.PeakUsedCount() }

// Subscribe associates a port with a callback invoked on transfer completion.
// extent is the maximum serialized payload length the subscription accepts;
// longer transfers are truncated to it. A multi-frame reassembly buffer must
// also hold the transfer CRC, so extent is bounded by the pool's block size
// minus frame.CRCSize.
func (n *Node) Subscribe(port frame.PortID, extent int, handler Handler) error {
	if handler == nil {
		return errors.New("a subscription requires a handler")
	}
	if extent <= 0 {
		return errors.Newf("subscription extent must be positive, but was %d", extent)
	}
	if extent+frame.CRCSize > n.pool.BlockSize() {
		return errors.Newf("subscription extent %d does not fit a %d-byte pool block alongside the %d-byte transfer CRC",
			extent, n.pool.BlockSize(), frame.CRCSize)
	}
	if _, exists := n.subscriptions.Get(port); exists {
		return errors.Newf("port %d already has a subscription; unsubscribe it first", port)
	}

	n.subscriptions.Put(port, subscription{extent: extent, handler: handler})
	return nil
}

// Unsubscribe removes the subscription on port, reporting whether one existed.
// In-progress reassemblies for the port are left to age out via the reassembly
// timeout.
func (n *Node) Unsubscribe(port frame.PortID) bool {
	return n.subscriptions.Delete(port)
}

// ScheduleTimer registers a callback to fire after delay, then every period if
// period is non-zero. Timers fire inside spin cycles, in non-decreasing deadline
// order with ties broken by registration order.
func (n *Node) ScheduleTimer(delay, period time.Duration, fn TimerFunc) (TimerID, error) {
	if fn == nil {
		return 0, errors.New("a timer requires a callback")
	}
	if period < 0 {
		return 0, errors.Newf("timer period must be non-negative, but was %s", period)
	}

	return n.timers.schedule(n.clk.Now(), delay, period, fn)
}

// CancelTimer removes a scheduled timer, reporting whether it was still live.
func (n *Node) CancelTimer(id TimerID) bool {
	return n.timers.cancel(id)
}
